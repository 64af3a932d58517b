// Package grading scores student submissions against reference images.
package grading

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/pixgrade/internal/raster"
)

// Reference is one instructor-provided expected output image.
type Reference struct {
	Name     string
	Homework int
	Problem  int
	Tag      string
	Raster   *raster.Raster
}

// ParseName splits a canonical "hw_<homework>_<problem>_<tag>" filename.
// The tag is everything after the third separator with the extension removed.
func ParseName(name string) (homework, problem int, tag string, err error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.SplitN(stem, "_", 4)
	if len(parts) != 4 || parts[0] != "hw" || parts[3] == "" {
		return 0, 0, "", fmt.Errorf("grading: %q does not match hw_<homework>_<problem>_<tag>", name)
	}
	homework, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, "", fmt.Errorf("grading: %q: homework: %w", name, err)
	}
	problem, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, "", fmt.Errorf("grading: %q: problem: %w", name, err)
	}
	if problem < 1 {
		return 0, 0, "", fmt.Errorf("grading: %q: problem numbers start at 1", name)
	}
	return homework, problem, parts[3], nil
}

// LoadReferences decodes every canonically named image in dir, sorted by
// name. Files with other names are skipped with a warning; a reference that
// fails to decode is an error because it would silently change the grading.
func LoadReferences(dir string, logger *slog.Logger) ([]Reference, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("grading: read reference dir: %w", err)
	}
	var refs []Reference
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		hw, problem, tag, err := ParseName(e.Name())
		if err != nil {
			logger.Warn("grading: skipping reference", slog.String("name", e.Name()), slog.String("error", err.Error()))
			continue
		}
		r, err := raster.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("grading: load reference %s: %w", e.Name(), err)
		}
		refs = append(refs, Reference{Name: e.Name(), Homework: hw, Problem: problem, Tag: tag, Raster: r})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	if len(refs) == 0 {
		return nil, fmt.Errorf("grading: no reference images in %s", dir)
	}
	return refs, nil
}

// NumProblems returns the highest problem number among refs.
func NumProblems(refs []Reference) int {
	n := 0
	for _, r := range refs {
		n = max(n, r.Problem)
	}
	return n
}
