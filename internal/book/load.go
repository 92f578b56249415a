package book

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackzampolin/illustra/internal/tokens"
)

// Load reads a book descriptor from a JSON file at path. The file is
// expected to already hold parsed chapters (title, content, page
// range) — turning an EPUB/PDF/MOBI source into this shape is the job
// of an external collaborator, not this package. EstimatedTokens is
// filled in here from each chapter's Content when the input omits it,
// so hand-authored or externally-produced descriptors don't need to
// precompute it themselves.
func Load(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("book: reading %s: %w", path, err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("book: parsing %s: %w", path, err)
	}

	if d.SourcePath == "" {
		d.SourcePath = path
	}
	for i, c := range d.Chapters {
		if c.EstimatedTokens == 0 && c.Content != "" {
			d.Chapters[i].EstimatedTokens = tokens.Estimate(c.Content)
		}
	}

	return d, nil
}
