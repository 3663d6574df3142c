package mathwalk

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Frontmatter represents the YAML frontmatter at the top of a lesson file.
type Frontmatter struct {
	Title    string   `yaml:"title"`
	Runtime  string   `yaml:"runtime"`
	Packages []string `yaml:"packages"`
}

// stepMarker is the fence flag that turns a code block into a step's example.
const stepMarker = "step"

// stepBlock is a fenced code block carrying a step's example code.
type stepBlock struct {
	Language string
	Script   string
	Content  string
	Line     int
}

// newMarkdown returns the goldmark instance used for lesson explanations.
// Lesson content is authored, so raw HTML in explanations is passed through.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
}

// ParseFile parses a Markdown lesson file into a Tutorial.
func ParseFile(path string) (*Tutorial, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	t, err := ParseMarkdown(content, absPath)
	if err != nil {
		return nil, err
	}
	t.Root = filepath.Dir(absPath)
	return t, nil
}

// ParseMarkdown parses Markdown lesson content. Each level-two heading starts
// a step; a fenced block flagged "step" supplies the step's code, either
// inline or through script=path metadata.
func ParseMarkdown(content []byte, sourceFile string) (*Tutorial, error) {
	fm, remaining, err := extractFrontmatter(content)
	if err != nil {
		return nil, NewParseError(sourceFile, 1, fmt.Sprintf("Failed to parse frontmatter: %v", err)).
			WithHint("Frontmatter must start with '---' and end with a line containing only '---'")
	}
	lineOffset := bytes.Count(content[:len(content)-len(remaining)], []byte("\n"))

	md := newMarkdown()
	doc := md.Parser().Parse(text.NewReader(remaining))

	lineOf := func(offset int) int {
		if offset > len(remaining) {
			offset = len(remaining)
		}
		return lineOffset + bytes.Count(remaining[:offset], []byte("\n")) + 1
	}

	t := &Tutorial{
		Title:      fm.Title,
		Runtime:    fm.Runtime,
		Packages:   fm.Packages,
		SourceFile: sourceFile,
	}

	// Group top-level nodes into sections, one per level-two heading.
	type section struct {
		heading *ast.Heading
		nodes   []ast.Node
	}
	var sections []*section
	var current *section
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			if h.Level == 1 && t.Title == "" {
				t.Title = nodeText(h, remaining)
			}
			if h.Level == 2 {
				current = &section{heading: h}
				sections = append(sections, current)
				continue
			}
		}
		if current != nil {
			current.nodes = append(current.nodes, n)
		}
	}

	if len(sections) == 0 {
		return nil, NewParseError(sourceFile, lineOffset+1, "Lesson file has no steps").
			WithHint("Start each step with a level-two heading, e.g. '## Step 1: Dot Product'")
	}

	for i, sec := range sections {
		stepLine := lineOf(nodeOffset(sec.heading))
		step := Step{
			Title: strings.TrimSpace(nodeText(sec.heading, remaining)),
			Line:  stepLine,
		}
		if step.Title == "" {
			return nil, NewParseError(sourceFile, stepLine, "Step heading is empty")
		}

		var block *stepBlock
		body := ast.NewDocument()
		for _, n := range sec.nodes {
			if fenced, ok := n.(*ast.FencedCodeBlock); ok {
				sb := parseStepBlock(fenced, remaining)
				if sb != nil {
					sb.Line = lineOf(nodeOffset(fenced))
					if block != nil {
						return nil, NewParseError(sourceFile, sb.Line,
							fmt.Sprintf("Step %q has more than one step code block", step.Title)).
							WithRelated(fmt.Sprintf("First step block is at line %d", block.Line))
					}
					block = sb
					continue
				}
			}
			n.Parent().RemoveChild(n.Parent(), n)
			body.AppendChild(body, n)
		}

		if block == nil {
			return nil, NewParseError(sourceFile, stepLine,
				fmt.Sprintf("Step %q has no example code", step.Title)).
				WithHint("Add a fenced block with the 'step' flag, e.g. ```python step")
		}
		if block.Script != "" && strings.TrimSpace(block.Content) != "" {
			return nil, NewParseError(sourceFile, block.Line,
				fmt.Sprintf("Step %q has both inline code and script=%s", step.Title, block.Script)).
				WithHint("Use either inline code or a script reference, not both")
		}
		if block.Script != "" {
			step.Script = block.Script
		} else {
			step.Code = normalizeCode(block.Content)
		}

		var buf bytes.Buffer
		if err := md.Renderer().Render(&buf, remaining, body); err != nil {
			return nil, NewParseError(sourceFile, stepLine, fmt.Sprintf("Failed to render step %d: %v", i+1, err))
		}
		step.Explanation = strings.TrimSpace(buf.String())

		t.Steps = append(t.Steps, step)
	}

	if t.Title == "" {
		t.Title = "Tutorial"
	}

	return t, nil
}

// extractFrontmatter extracts YAML frontmatter from the beginning of content.
// Returns the parsed frontmatter and the remaining content.
func extractFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}

	endIdx := bytes.Index(content[4:], []byte("\n---\n"))
	if endIdx == -1 {
		return nil, nil, fmt.Errorf("unclosed frontmatter")
	}

	yamlContent := content[4 : 4+endIdx]
	remaining := content[4+endIdx+5:]

	var fm Frontmatter
	if err := yaml.Unmarshal(yamlContent, &fm); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &fm, remaining, nil
}

// parseStepBlock returns the step block for a fenced block flagged "step".
// Info string format: "python step script=scripts/dot.star"
func parseStepBlock(fenced *ast.FencedCodeBlock, source []byte) *stepBlock {
	if fenced.Info == nil {
		return nil
	}
	parts := strings.Fields(string(fenced.Info.Segment.Value(source)))
	if len(parts) < 2 {
		return nil
	}

	sb := &stepBlock{Language: parts[0]}
	isStep := false
	for _, part := range parts[1:] {
		if k, v, ok := strings.Cut(part, "="); ok {
			if k == "script" {
				sb.Script = strings.Trim(v, `"'`)
			}
			continue
		}
		if part == stepMarker {
			isStep = true
		}
	}
	if !isStep {
		return nil
	}

	var buf bytes.Buffer
	lines := fenced.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	sb.Content = buf.String()
	return sb
}

// nodeText concatenates the text segments below n.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// nodeOffset returns the byte offset of the first source line of a block node.
func nodeOffset(n ast.Node) int {
	if fenced, ok := n.(*ast.FencedCodeBlock); ok && fenced.Info != nil {
		return fenced.Info.Segment.Start
	}
	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		return lines.At(0).Start
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			return t.Segment.Start
		}
	}
	return 0
}
