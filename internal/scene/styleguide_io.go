package scene

import (
	"encoding/json"
	"fmt"

	"github.com/jackzampolin/illustra/internal/atomicfile"
	"github.com/jackzampolin/illustra/internal/filelock"
)

// SaveStyleGuide persists guide to path atomically under the file lock.
func SaveStyleGuide(path string, guide StyleGuide) error {
	data, err := json.MarshalIndent(guide, "", "  ")
	if err != nil {
		return fmt.Errorf("scene: marshal style guide: %w", err)
	}
	return filelock.WithLock(path, func() error {
		return atomicfile.Write(path, data, 0o644)
	})
}

// LoadStyleGuide reads a previously persisted style guide from path.
// The caller should treat a missing file as "not yet bootstrapped"
// rather than an error.
func LoadStyleGuide(path string) (StyleGuide, error) {
	var guide StyleGuide
	err := filelock.WithLock(path, func() error {
		data, readErr := readFile(path)
		if readErr != nil {
			return readErr
		}
		return json.Unmarshal(data, &guide)
	})
	if err != nil {
		return StyleGuide{}, err
	}
	return guide, nil
}
