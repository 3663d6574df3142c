package mathwalk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleLesson = "---\n" +
	"title: Neural Network Math\n" +
	"runtime: starlark\n" +
	"packages: [numpy]\n" +
	"---\n" +
	"\n" +
	"# Ignored Heading\n" +
	"\n" +
	"Intro prose.\n" +
	"\n" +
	"## Dot Product\n" +
	"\n" +
	"The **dot product** multiplies and sums.\n" +
	"\n" +
	"```python step\n" +
	"import numpy as np\n" +
	"print(np.dot([1, 2], [3, 4]))\n" +
	"```\n" +
	"\n" +
	"## The `softmax` Function\n" +
	"\n" +
	"Turns scores into probabilities.\n" +
	"\n" +
	"```python step script=scripts/softmax.star\n" +
	"```\n" +
	"\n" +
	"```text\n" +
	"not a step block\n" +
	"```\n"

func TestParseFrontmatter(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantFM   Frontmatter
		wantBody string
	}{
		{
			name:    "complete frontmatter",
			content: "---\ntitle: \"Softmax\"\nruntime: exec\npackages:\n  - numpy\n---\n\n## Step",
			wantFM: Frontmatter{
				Title:    "Softmax",
				Runtime:  "exec",
				Packages: []string{"numpy"},
			},
			wantBody: "## Step",
		},
		{
			name:     "no frontmatter",
			content:  "## Step\n\nSome content",
			wantFM:   Frontmatter{},
			wantBody: "## Step\n\nSome content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, remaining, err := extractFrontmatter([]byte(tt.content))
			if err != nil {
				t.Fatalf("extractFrontmatter() error = %v", err)
			}
			if fm.Title != tt.wantFM.Title {
				t.Errorf("Title = %q, want %q", fm.Title, tt.wantFM.Title)
			}
			if fm.Runtime != tt.wantFM.Runtime {
				t.Errorf("Runtime = %q, want %q", fm.Runtime, tt.wantFM.Runtime)
			}
			if strings.Join(fm.Packages, ",") != strings.Join(tt.wantFM.Packages, ",") {
				t.Errorf("Packages = %v, want %v", fm.Packages, tt.wantFM.Packages)
			}
			if body := strings.TrimSpace(string(remaining)); body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestParseFrontmatterUnclosed(t *testing.T) {
	_, err := ParseMarkdown([]byte("---\ntitle: x\n\n## Step\n"), "lesson.md")
	if err == nil {
		t.Fatal("expected error for unclosed frontmatter")
	}
	if !strings.Contains(err.Error(), "frontmatter") {
		t.Errorf("error should mention frontmatter, got: %v", err)
	}
}

func TestParseMarkdown(t *testing.T) {
	tut, err := ParseMarkdown([]byte(sampleLesson), "lesson.md")
	if err != nil {
		t.Fatalf("ParseMarkdown() error = %v", err)
	}

	if tut.Title != "Neural Network Math" {
		t.Errorf("Title = %q", tut.Title)
	}
	if tut.Runtime != "starlark" {
		t.Errorf("Runtime = %q", tut.Runtime)
	}
	if len(tut.Packages) != 1 || tut.Packages[0] != "numpy" {
		t.Errorf("Packages = %v", tut.Packages)
	}
	if len(tut.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(tut.Steps))
	}

	dot := tut.Steps[0]
	if dot.Title != "Dot Product" {
		t.Errorf("step 0 title = %q", dot.Title)
	}
	if dot.Line != 11 {
		t.Errorf("step 0 line = %d, want 11", dot.Line)
	}
	if want := "import numpy as np\nprint(np.dot([1, 2], [3, 4]))\n"; dot.Code != want {
		t.Errorf("step 0 code = %q, want %q", dot.Code, want)
	}
	if !dot.HasInlineCode() {
		t.Error("step 0 should have inline code")
	}
	if !strings.Contains(dot.Explanation, "<strong>dot product</strong>") {
		t.Errorf("step 0 explanation not rendered: %q", dot.Explanation)
	}
	if strings.Contains(dot.Explanation, "np.dot") {
		t.Errorf("step code leaked into explanation: %q", dot.Explanation)
	}
	if strings.Contains(dot.Explanation, "Intro prose") {
		t.Errorf("prose before the first step leaked into explanation: %q", dot.Explanation)
	}

	softmax := tut.Steps[1]
	if softmax.Title != "The softmax Function" {
		t.Errorf("step 1 title = %q", softmax.Title)
	}
	if softmax.Script != "scripts/softmax.star" {
		t.Errorf("step 1 script = %q", softmax.Script)
	}
	if softmax.Code != "" || softmax.HasInlineCode() {
		t.Errorf("step 1 should only reference a script, code = %q", softmax.Code)
	}
	if !strings.Contains(softmax.Explanation, "not a step block") {
		t.Errorf("plain code blocks should stay in the explanation: %q", softmax.Explanation)
	}
}

func TestParseMarkdownTitleFallback(t *testing.T) {
	content := "# From Heading\n\n## One\n\n```python step\nprint(1)\n```\n"
	tut, err := ParseMarkdown([]byte(content), "lesson.md")
	if err != nil {
		t.Fatalf("ParseMarkdown() error = %v", err)
	}
	if tut.Title != "From Heading" {
		t.Errorf("Title = %q, want %q", tut.Title, "From Heading")
	}

	tut, err = ParseMarkdown([]byte("## One\n\n```python step\nprint(1)\n```\n"), "lesson.md")
	if err != nil {
		t.Fatalf("ParseMarkdown() error = %v", err)
	}
	if tut.Title != "Tutorial" {
		t.Errorf("Title = %q, want default", tut.Title)
	}
}

func TestParseMarkdownErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "no steps",
			content: "# Only a title\n\nSome prose.\n",
			wantMsg: "no steps",
		},
		{
			name:    "missing step block",
			content: "## Lonely\n\n```python\nprint(1)\n```\n",
			wantMsg: "has no example code",
		},
		{
			name:    "two step blocks",
			content: "## Twice\n\n```python step\nprint(1)\n```\n\n```python step\nprint(2)\n```\n",
			wantMsg: "more than one step code block",
		},
		{
			name:    "inline code and script",
			content: "## Both\n\n```python step script=a.star\nprint(1)\n```\n",
			wantMsg: "both inline code and script=a.star",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMarkdown([]byte(tt.content), "lesson.md")
			if err == nil {
				t.Fatal("expected error")
			}
			pe, ok := err.(*ParseError)
			if !ok {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if !strings.Contains(pe.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want substring %q", pe.Message, tt.wantMsg)
			}
		})
	}
}

func TestParseFileSetsRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lessons.md")
	if err := os.WriteFile(path, []byte(sampleLesson), 0o644); err != nil {
		t.Fatal(err)
	}

	tut, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if tut.Root != dir {
		t.Errorf("Root = %q, want %q", tut.Root, dir)
	}
	if tut.SourceFile != path {
		t.Errorf("SourceFile = %q, want %q", tut.SourceFile, path)
	}
}
