package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolvePath joins rel onto root and rejects anything that would escape
// root: absolute paths and ".." traversal.
func ResolvePath(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("absolute paths are not allowed: %q", rel)
	}

	cleanRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root: %w", err)
	}
	full := filepath.Join(cleanRoot, filepath.FromSlash(rel))

	within, err := filepath.Rel(cleanRoot, full)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the lesson directory: %q", rel)
	}
	return full, nil
}
