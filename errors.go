package mathwalk

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ParseError represents a detailed lesson parsing error with context.
type ParseError struct {
	File    string // Source file path
	Line    int    // Line number (1-indexed)
	Message string // Error message
	Hint    string // Helpful suggestion
	Related string // Related information (e.g., "Step 2 starts at line 14")
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return e.Format()
}

// Format returns a formatted error message with surrounding source lines.
func (e *ParseError) Format() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("❌ Error in %s\n\n", e.File))
	b.WriteString(fmt.Sprintf("Line %d: %s\n", e.Line, e.Message))

	if context := e.codeContext(); context != "" {
		b.WriteString(context)
	}

	if e.Hint != "" {
		b.WriteString(fmt.Sprintf("\n💡 Tip: %s\n", e.Hint))
	}

	if e.Related != "" {
		b.WriteString(fmt.Sprintf("\n🔗 %s\n", e.Related))
	}

	return b.String()
}

// codeContext reads the source file and returns two lines either side of
// the error line.
func (e *ParseError) codeContext() string {
	if e.File == "" || e.Line < 1 {
		return ""
	}

	file, err := os.Open(e.File)
	if err != nil {
		return ""
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if e.Line > len(lines) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	start := max(1, e.Line-2)
	end := min(len(lines), e.Line+2)
	for i := start; i <= end; i++ {
		marker := "  "
		if i == e.Line {
			marker = "> "
		}
		b.WriteString(fmt.Sprintf("%s%3d | %s\n", marker, i, lines[i-1]))
	}

	return b.String()
}

// NewParseError creates a new ParseError.
func NewParseError(file string, line int, message string) *ParseError {
	return &ParseError{
		File:    file,
		Line:    line,
		Message: message,
	}
}

// WithHint adds a helpful hint to the error.
func (e *ParseError) WithHint(hint string) *ParseError {
	e.Hint = hint
	return e
}

// WithRelated adds related information to the error.
func (e *ParseError) WithRelated(related string) *ParseError {
	e.Related = related
	return e
}
