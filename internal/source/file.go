package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/livetemplate/mathwalk/internal/security"
)

// maxScriptSize caps how much of a script is read.
const maxScriptSize = 1 << 20

// FileSource reads scripts relative to a lesson directory.
type FileSource struct {
	root string
}

// NewFileSource creates a file source rooted at dir.
func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

// Fetch reads the script at ref, a slash-separated path under the root.
func (s *FileSource) Fetch(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := security.ResolvePath(s.root, ref)
	if err != nil {
		return "", &ValidationError{Ref: ref, Reason: err.Error()}
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Ref: ref}
		}
		return "", NewSourceError(ref, "open", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", NewSourceError(ref, "stat", err)
	}
	if info.IsDir() {
		return "", &ValidationError{Ref: ref, Reason: "is a directory"}
	}

	data, err := io.ReadAll(io.LimitReader(f, maxScriptSize+1))
	if err != nil {
		return "", NewSourceError(ref, "read", err)
	}
	if len(data) > maxScriptSize {
		return "", &ValidationError{Ref: ref, Reason: fmt.Sprintf("larger than %d bytes", maxScriptSize)}
	}
	return string(data), nil
}
