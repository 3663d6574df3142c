// Package mathwalk provides the lesson model for step-by-step interactive
// tutorials whose example code runs in an embedded interpreter.
//
// A tutorial is an ordered list of steps. Each step carries a title, trusted
// explanation markup, and either inline example code or a reference to a
// script that is resolved when the step is visited.
package mathwalk

import "strings"

// Step is one unit of a tutorial.
type Step struct {
	Title       string
	Explanation string // Trusted, pre-rendered HTML
	Code        string // Inline code; empty when Script is set
	Script      string // Code reference (relative path or http(s) URL)
	Line        int    // Line in the source file where the step starts
}

// HasInlineCode reports whether the step's code is available without a fetch.
func (s Step) HasInlineCode() bool {
	return s.Script == ""
}

// Tutorial is a parsed lesson file.
type Tutorial struct {
	Title      string
	Runtime    string   // Interpreter backend override (empty = config default)
	Packages   []string // Dependencies loaded into the interpreter at startup
	Steps      []Step
	Root       string // Directory that script references resolve against
	SourceFile string
}

// Registry builds the step registry for the tutorial.
func (t *Tutorial) Registry() (*Registry, error) {
	return NewRegistry(t.Steps)
}

// normalizeCode strips a single trailing newline run so inline code and
// fetched scripts display identically.
func normalizeCode(code string) string {
	return strings.TrimRight(code, "\n") + "\n"
}
