// Package discover collects each student's custom image into one folder for
// quick review.
package discover

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/starford/pixgrade/internal/storage"
)

// DefaultPattern selects the free-form image of problem 7.
const DefaultPattern = "*1_7*.png"

// Match is one student's discovery result. Rel is empty when nothing matched.
type Match struct {
	Student string
	Rel     string
}

// Result lists every student in name order.
type Result struct {
	Matches []Match
	Missing int
}

// Finder copies the first matching file of every student to an output folder.
type Finder struct {
	Pattern string
	Ignore  []string
	Logger  *slog.Logger
}

// Run searches each student folder under submissionsDir and copies the
// lexically first match to outDir/<student>.png. Per-student failures are
// logged and count as missing.
func (f *Finder) Run(submissionsDir, outDir string) (Result, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pattern := f.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	match, err := storage.Glob(pattern)
	if err != nil {
		return Result{}, err
	}
	students, err := storage.ListStudents(submissionsDir)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, student := range students {
		rel, err := f.copyFirst(filepath.Join(submissionsDir, student), student, outDir, match)
		if err != nil {
			logger.Warn("discover: copy failed", slog.String("student", student), slog.String("error", err.Error()))
			rel = ""
		}
		if rel == "" {
			res.Missing++
		}
		res.Matches = append(res.Matches, Match{Student: student, Rel: rel})
	}
	return res, nil
}

func (f *Finder) copyFirst(root, student, outDir string, match storage.Matcher) (string, error) {
	tree, err := storage.NewFS(root, storage.WithIgnore(f.Ignore...))
	if err != nil {
		return "", err
	}
	paths, err := tree.Find(match)
	if err != nil || len(paths) == 0 {
		return "", err
	}
	rel, err := filepath.Rel(tree.Root(), paths[0])
	if err != nil {
		return "", err
	}
	data, err := tree.Read(rel)
	if err != nil {
		return "", err
	}
	if err := storage.WriteFile(filepath.Join(outDir, student+".png"), data); err != nil {
		return "", err
	}
	return rel, nil
}

// Write prints one line per student, the found path aligned after the
// name, followed by the missing count.
func Write(w io.Writer, res Result) {
	width := 0
	for _, m := range res.Matches {
		width = max(width, len(m.Student))
	}
	for _, m := range res.Matches {
		if m.Rel == "" {
			fmt.Fprintln(w, m.Student)
			continue
		}
		fmt.Fprintf(w, "%-*s  %s\n", width, m.Student, filepath.ToSlash(m.Rel))
	}
	fmt.Fprintf(w, "Missing %d/%d custom images\n", res.Missing, len(res.Matches))
}
