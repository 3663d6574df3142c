package mathwalk

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the YAML form of a tutorial (steps.yaml).
type Manifest struct {
	Title    string         `yaml:"title"`
	Runtime  string         `yaml:"runtime"`
	Packages []string       `yaml:"packages"`
	Steps    []ManifestStep `yaml:"steps"`
}

// ManifestStep is one entry of a manifest's step list. Explanation is trusted
// HTML used verbatim; Markdown, when set instead, is rendered with goldmark.
type ManifestStep struct {
	Title       string `yaml:"title"`
	Explanation string `yaml:"explanation"`
	Markdown    string `yaml:"markdown"`
	Code        string `yaml:"code"`
	Script      string `yaml:"script"`

	line int
}

// UnmarshalYAML records the line each step starts on for diagnostics.
func (s *ManifestStep) UnmarshalYAML(node *yaml.Node) error {
	type plain ManifestStep
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = ManifestStep(p)
	s.line = node.Line
	return nil
}

// ParseManifestFile parses a YAML manifest file into a Tutorial.
func ParseManifestFile(path string) (*Tutorial, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	t, err := ParseManifest(content, absPath)
	if err != nil {
		return nil, err
	}
	t.Root = filepath.Dir(absPath)
	return t, nil
}

// ParseManifest parses YAML manifest content.
func ParseManifest(content []byte, sourceFile string) (*Tutorial, error) {
	var m Manifest
	if err := yaml.Unmarshal(content, &m); err != nil {
		line := 1
		if te, ok := err.(*yaml.TypeError); ok && len(te.Errors) > 0 {
			fmt.Sscanf(te.Errors[0], "line %d:", &line)
		} else {
			fmt.Sscanf(err.Error(), "yaml: line %d:", &line)
		}
		return nil, NewParseError(sourceFile, line, fmt.Sprintf("Invalid manifest: %v", err)).
			WithHint("A manifest is a mapping with 'title' and a 'steps' list")
	}

	if len(m.Steps) == 0 {
		return nil, NewParseError(sourceFile, 1, "Manifest has no steps").
			WithHint("Add at least one entry under 'steps:' with a title and either 'code' or 'script'")
	}

	md := newMarkdown()
	t := &Tutorial{
		Title:      m.Title,
		Runtime:    m.Runtime,
		Packages:   m.Packages,
		SourceFile: sourceFile,
	}
	if t.Title == "" {
		t.Title = "Tutorial"
	}

	for i, ms := range m.Steps {
		if strings.TrimSpace(ms.Title) == "" {
			return nil, NewParseError(sourceFile, ms.line, fmt.Sprintf("Step %d has no title", i+1))
		}
		if ms.Code != "" && ms.Script != "" {
			return nil, NewParseError(sourceFile, ms.line,
				fmt.Sprintf("Step %q sets both 'code' and 'script'", ms.Title)).
				WithHint("Use either inline code or a script reference, not both")
		}
		if ms.Code == "" && ms.Script == "" {
			return nil, NewParseError(sourceFile, ms.line,
				fmt.Sprintf("Step %q has no example code", ms.Title)).
				WithHint("Set 'code' to inline source or 'script' to a file path or URL")
		}

		explanation := ms.Explanation
		if explanation == "" && ms.Markdown != "" {
			var buf bytes.Buffer
			if err := md.Convert([]byte(ms.Markdown), &buf); err != nil {
				return nil, NewParseError(sourceFile, ms.line, fmt.Sprintf("Failed to render step %q: %v", ms.Title, err))
			}
			explanation = buf.String()
		}

		step := Step{
			Title:       strings.TrimSpace(ms.Title),
			Explanation: strings.TrimSpace(explanation),
			Script:      ms.Script,
			Line:        ms.line,
		}
		if ms.Code != "" {
			step.Code = normalizeCode(ms.Code)
		}
		t.Steps = append(t.Steps, step)
	}

	return t, nil
}
