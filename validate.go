package mathwalk

import (
	"context"
	"fmt"
	"strings"
)

// Fetcher resolves a step's script reference to source text.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

// Validate checks the tutorial's steps and returns every problem found.
// When fetcher is non-nil, each script reference is resolved as well.
func (t *Tutorial) Validate(ctx context.Context, fetcher Fetcher) []error {
	var errs []error

	if len(t.Steps) == 0 {
		return []error{NewParseError(t.SourceFile, 1, "Tutorial has no steps")}
	}

	for i, s := range t.Steps {
		if strings.TrimSpace(s.Title) == "" {
			errs = append(errs, NewParseError(t.SourceFile, s.Line, fmt.Sprintf("Step %d has no title", i+1)))
		}
		if s.Code != "" && s.Script != "" {
			errs = append(errs, NewParseError(t.SourceFile, s.Line,
				fmt.Sprintf("Step %q has both inline code and a script reference", s.Title)))
			continue
		}
		if s.Script == "" || fetcher == nil {
			continue
		}
		if _, err := fetcher.Fetch(ctx, s.Script); err != nil {
			errs = append(errs, NewParseError(t.SourceFile, s.Line,
				fmt.Sprintf("Step %q: cannot load %s: %v", s.Title, s.Script, err)).
				WithHint("Script paths are relative to the lesson file's directory"))
		}
	}

	return errs
}
