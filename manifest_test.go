package mathwalk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `title: Neural Network Math
packages: [numpy]
steps:
  - title: Dot Product
    script: scripts/step1_dot_product.star
    explanation: |
      <p>Multiply then sum.</p>
  - title: Identity
    markdown: "An **identity** matrix."
    code: |
      import numpy as np
      print(np.eye(2))
`

func TestParseManifest(t *testing.T) {
	tut, err := ParseManifest([]byte(sampleManifest), "steps.yaml")
	require.NoError(t, err)

	assert.Equal(t, "Neural Network Math", tut.Title)
	assert.Equal(t, []string{"numpy"}, tut.Packages)
	require.Len(t, tut.Steps, 2)

	assert.Equal(t, "Dot Product", tut.Steps[0].Title)
	assert.Equal(t, "scripts/step1_dot_product.star", tut.Steps[0].Script)
	assert.Equal(t, "<p>Multiply then sum.</p>", tut.Steps[0].Explanation)
	assert.Equal(t, 4, tut.Steps[0].Line)

	assert.Equal(t, "import numpy as np\nprint(np.eye(2))\n", tut.Steps[1].Code)
	assert.Contains(t, tut.Steps[1].Explanation, "<strong>identity</strong>")
	assert.True(t, tut.Steps[1].HasInlineCode())
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"no steps", "title: Empty\n", "no steps"},
		{"missing title", "steps:\n  - code: print(1)\n", "has no title"},
		{"code and script", "steps:\n  - title: X\n    code: print(1)\n    script: a.star\n", "both 'code' and 'script'"},
		{"no code", "steps:\n  - title: X\n", "has no example code"},
		{"bad yaml", "steps: [\n", "Invalid manifest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.content), "steps.yaml")
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Message, tt.wantMsg)
		})
	}
}
