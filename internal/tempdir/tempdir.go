// Package tempdir manages uniquely named scratch directories that are
// removed recursively when released.
package tempdir

import (
	"fmt"
	"os"
)

// Dir is a scoped temporary directory. The zero value is invalid; use New.
type Dir struct {
	path string
}

// New creates a uniquely named directory under the system temp root.
func New(pattern string) (*Dir, error) {
	if pattern == "" {
		pattern = "fourdst-*"
	}
	path, err := os.MkdirTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path. Empty after Remove.
func (d *Dir) Path() string { return d.path }

// Remove deletes the directory and everything under it. Safe to call more
// than once.
func (d *Dir) Remove() error {
	if d == nil || d.path == "" {
		return nil
	}
	err := os.RemoveAll(d.path)
	d.path = ""
	if err != nil {
		return fmt.Errorf("failed to remove temp directory: %w", err)
	}
	return nil
}
