// Package atomicfile writes file contents so that a concurrent reader
// never observes a truncated or half-written result.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrCrossDevice is returned when the temp file and the destination
// path do not share a filesystem, so the final rename cannot be atomic.
var ErrCrossDevice = errors.New("atomicfile: destination is on a different device than its directory")

// Write writes data to path via a sibling temp file plus rename.
// A reader either observes path's prior contents intact or the new
// contents intact; there is no partially-written intermediate state.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: failed to create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("atomicfile: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Ensure the temp file is cleaned up on any failure path below.
	succeeded := false
	defer func() {
		if !succeeded {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("atomicfile: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("atomicfile: failed to flush temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomicfile: failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("atomicfile: failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		if errors.Is(err, syscall.EXDEV) {
			return fmt.Errorf("%w: %v", ErrCrossDevice, err)
		}
		return fmt.Errorf("atomicfile: failed to rename into place: %w", err)
	}

	succeeded = true
	return nil
}

// Append reads the existing contents of path (if any), appends data, and
// rewrites the whole file atomically. Used by sinks that must not lose
// the prior log tail if a write is interrupted mid-flight.
func Append(path string, data []byte, perm os.FileMode) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("atomicfile: failed to read existing file: %w", err)
	}
	combined := make([]byte, 0, len(existing)+len(data))
	combined = append(combined, existing...)
	combined = append(combined, data...)
	return Write(path, combined, perm)
}
