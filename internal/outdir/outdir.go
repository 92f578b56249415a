// Package outdir resolves the fixed file layout of a book's output
// directory: state, registry, style guide, human-readable
// catalogs and the generated image files all live under one root.
package outdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// StateFileName is the durable pipeline state document.
	StateFileName = ".state.json"

	// RegistryFileName is the entity registry snapshot.
	RegistryFileName = ".entity-registry.json"

	// StyleGuideFileName holds the bootstrapped visual style guide, if any.
	StyleGuideFileName = ".style-guide.json"

	// ProgressFileName is the human-readable append log.
	ProgressFileName = "progress.md"

	// ChaptersFileName holds the per-chapter scene catalog.
	ChaptersFileName = "Chapters.md"

	// ElementsFileName holds the entity catalog.
	ElementsFileName = "Elements.md"

	// ContentsFileName is the top-level index.
	ContentsFileName = "Contents.md"
)

// Dir represents a single book's output directory.
type Dir struct {
	path string
}

// New creates a Dir rooted at path. path must be non-empty; unlike the
// shelf home directory this has no process-wide default, since a run
// always operates on one book at a time.
func New(path string) (*Dir, error) {
	if path == "" {
		return nil, fmt.Errorf("output directory path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	return &Dir{path: abs}, nil
}

// Path returns the root path of the output directory.
func (d *Dir) Path() string { return d.path }

// StatePath returns the path to the durable state document.
func (d *Dir) StatePath() string { return filepath.Join(d.path, StateFileName) }

// RegistryPath returns the path to the entity registry snapshot.
func (d *Dir) RegistryPath() string { return filepath.Join(d.path, RegistryFileName) }

// StyleGuidePath returns the path to the persisted style guide.
func (d *Dir) StyleGuidePath() string { return filepath.Join(d.path, StyleGuideFileName) }

// ProgressPath returns the path to the human-readable progress log.
func (d *Dir) ProgressPath() string { return filepath.Join(d.path, ProgressFileName) }

// ChaptersPath returns the path to the scene catalog markdown file.
func (d *Dir) ChaptersPath() string { return filepath.Join(d.path, ChaptersFileName) }

// ElementsPath returns the path to the entity catalog markdown file.
func (d *Dir) ElementsPath() string { return filepath.Join(d.path, ElementsFileName) }

// ContentsPath returns the path to the top-level index.
func (d *Dir) ContentsPath() string { return filepath.Join(d.path, ContentsFileName) }

// ImagePath returns the path for a generated scene image.
func (d *Dir) ImagePath(chapterNum int, slug string, sceneNum int) string {
	return filepath.Join(d.path, fmt.Sprintf("chapter_%d_%s_scene_%d.png", chapterNum, slug, sceneNum))
}

// EnsureExists creates the output directory if it doesn't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Exists returns true if the output directory is present on disk.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// StateExists returns true if a state document has already been persisted.
func (d *Dir) StateExists() bool {
	_, err := os.Stat(d.StatePath())
	return err == nil
}
