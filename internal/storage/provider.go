// Package storage provides read access to a student's submission tree and
// the create-if-absent writes used by the error-image cache.
package storage

import (
	"fmt"
	"path/filepath"
)

// Matcher reports whether a file base name is wanted by a search.
type Matcher func(name string) bool

// Provider is the interface for submission tree operations.
type Provider interface {
	// Root returns the absolute path of the tree.
	Root() string
	// Find walks the tree, skipping ignored directories at any depth, and
	// returns the sorted absolute paths of regular files whose base name matches.
	Find(match Matcher) ([]string, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Exists reports whether path (relative to root) exists.
	Exists(path string) bool
	// WriteOnce atomically creates path (relative to root) with content
	// unless it already exists. It reports whether the file was written.
	WriteOnce(path string, content []byte) (bool, error)
}

// Name matches files whose base name equals name exactly.
func Name(name string) Matcher {
	return func(n string) bool { return n == name }
}

// Glob matches base names against a shell pattern (see path/filepath.Match).
func Glob(pattern string) (Matcher, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("storage: pattern %q: %w", pattern, err)
	}
	return func(n string) bool {
		ok, _ := filepath.Match(pattern, n)
		return ok
	}, nil
}
