package diff

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/pixgrade/internal/apperr"
	"github.com/starford/pixgrade/internal/storage"
)

// Cache persists error images inside each submission tree. Entries are
// created once and never refreshed; delete the folder to regenerate.
type Cache struct {
	Dir    string // subfolder under the submission root, e.g. "__error_images"
	Suffix string // appended to the reference stem, e.g. ".error.png"
}

// RelPath returns the cache entry path relative to the submission root.
func (c Cache) RelPath(refName string) string {
	stem := strings.TrimSuffix(refName, filepath.Ext(refName))
	return filepath.Join(c.Dir, stem+c.Suffix)
}

// Path returns the absolute cache entry path for a student root.
func (c Cache) Path(studentRoot, refName string) string {
	return filepath.Join(studentRoot, c.RelPath(refName))
}

// Store writes the error image for res unless the entry already exists.
// It reports whether a file was written. Failures wrap apperr.ErrCacheWrite.
func (c Cache) Store(tree storage.Provider, refName string, res Result) (bool, error) {
	if res.ShapeMismatch {
		return false, nil
	}
	rel := c.RelPath(refName)
	if tree.Exists(rel) {
		return false, nil
	}
	data, err := ErrorImage(res).EncodePNG()
	if err != nil {
		return false, fmt.Errorf("diff: %s: %v: %w", rel, err, apperr.ErrCacheWrite)
	}
	written, err := tree.WriteOnce(rel, data)
	if err != nil {
		return false, fmt.Errorf("diff: %s: %v: %w", rel, err, apperr.ErrCacheWrite)
	}
	return written, nil
}
