package mathwalk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Lesson file names looked up, in order, when loading a directory.
var lessonFiles = []string{"lessons.md", "steps.yaml", "steps.yml", "index.md"}

// Load parses a tutorial from a lesson file or from a directory holding one.
// YAML files are read as manifests, anything else as Markdown.
func Load(path string) (*Tutorial, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.IsDir() {
		file, err := FindLessonFile(path)
		if err != nil {
			return nil, err
		}
		path = file
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseManifestFile(path)
	default:
		return ParseFile(path)
	}
}

// FindLessonFile returns the lesson file inside dir.
func FindLessonFile(dir string) (string, error) {
	for _, name := range lessonFiles {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no lesson file in %s (looked for %s)", dir, strings.Join(lessonFiles, ", "))
}
