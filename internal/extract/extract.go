// Package extract unpacks a Canvas "download all submissions" archive into
// one folder per student.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/pixgrade/internal/apperr"
	"github.com/starford/pixgrade/internal/storage"
)

// maxEntrySize bounds a single decompressed entry.
const maxEntrySize = 1 << 30

// Entry is a de-mangled archive member name:
// <name>[_LATE]_<student id>_<submission id>_<file>[-N].<ext>
type Entry struct {
	Student      string
	StudentID    string
	SubmissionID string
	Late         bool
	// File is the submitted file name with any resubmission index removed.
	File string
}

// ParseEntry splits a Canvas member name.
func ParseEntry(name string) (Entry, error) {
	parts := strings.Split(path.Base(name), "_")
	e := Entry{Student: parts[0]}
	rest := parts[1:]
	if len(rest) > 0 && rest[0] == "LATE" {
		e.Late = true
		rest = rest[1:]
	}
	if e.Student == "" || len(rest) < 3 {
		return Entry{}, fmt.Errorf("extract: %q: %w", name, apperr.ErrInvalidName)
	}
	e.StudentID, e.SubmissionID = rest[0], rest[1]
	e.File = stripIndex(strings.Join(rest[2:], "_"))
	if e.File == "" {
		return Entry{}, fmt.Errorf("extract: %q: %w", name, apperr.ErrInvalidName)
	}
	return e, nil
}

// stripIndex removes a trailing "-N" that Canvas appends to resubmissions.
func stripIndex(file string) string {
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	digits := strings.TrimRight(stem, "0123456789")
	if len(digits) < len(stem) && strings.HasSuffix(digits, "-") {
		stem = strings.TrimSuffix(digits, "-")
	}
	return stem + ext
}

// Stats summarizes an extraction.
type Stats struct {
	Entries  int
	Files    int
	Students int
	Failed   []string
}

// Extractor writes archive members into Out/<student>/.
type Extractor struct {
	Out    string
	Logger *slog.Logger
	// Verbose, when non-nil, receives one "member  ->  student/file" line per entry.
	Verbose io.Writer
}

// Extract unpacks the archive at zipPath. Per-entry failures are logged and
// collected in Stats.Failed (a nested archive with some rejected members is
// listed there even though its safe members were written); only failure to open the archive or create the
// output folder is returned.
func (x *Extractor) Extract(ctx context.Context, zipPath string) (Stats, error) {
	logger := x.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(zipPath); err != nil {
		return Stats{}, fmt.Errorf("extract: %s: %w", zipPath, apperr.ErrMissingInput)
	}
	if err := os.MkdirAll(x.Out, 0o755); err != nil {
		return Stats{}, fmt.Errorf("extract: create output: %w", err)
	}

	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return Stats{}, fmt.Errorf("extract: open %s: %w", zipPath, err)
	}
	defer zr.Close()

	var stats Stats
	ids := make(map[string]string)
	students := make(map[string]struct{})

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		stats.Entries++

		e, err := ParseEntry(f.Name)
		if err != nil {
			logger.Warn("extract: skipping entry", slog.String("entry", f.Name), slog.String("error", err.Error()))
			stats.Failed = append(stats.Failed, f.Name)
			continue
		}

		dir := e.Student
		if id, ok := ids[e.Student]; !ok {
			ids[e.Student] = e.StudentID
		} else if id != e.StudentID {
			logger.Warn("extract: two students with the same name",
				slog.String("student", e.Student),
				slog.String("first_id", id),
				slog.String("second_id", e.StudentID))
			dir = e.Student + "_" + e.StudentID
		}
		dst := filepath.Join(x.Out, dir)
		students[dir] = struct{}{}

		if x.Verbose != nil {
			fmt.Fprintf(x.Verbose, "%s  ->  %s/%s\n", f.Name, dir, e.File)
		}

		n, err := x.extractMember(f, dst, e.File)
		stats.Files += n
		if err != nil {
			logger.Warn("extract: entry failed", slog.String("entry", f.Name), slog.String("error", err.Error()))
			stats.Failed = append(stats.Failed, f.Name)
			continue
		}
	}
	stats.Students = len(students)
	logger.Info("extract: done",
		slog.Int("entries", stats.Entries),
		slog.Int("files", stats.Files),
		slog.Int("students", stats.Students),
		slog.Int("failed", len(stats.Failed)))
	return stats, nil
}

// extractMember writes one archive member into dst and returns how many
// files were produced. Nested archives are unpacked in place.
func (x *Extractor) extractMember(f *zip.File, dst, file string) (int, error) {
	data, err := readMember(f)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, fmt.Errorf("create student dir: %w", err)
	}
	if strings.EqualFold(filepath.Ext(file), ".zip") {
		return unpackNested(data, dst)
	}
	target, err := safeJoin(dst, file)
	if err != nil {
		return 0, err
	}
	if err := storage.WriteFile(target, data); err != nil {
		return 0, err
	}
	return 1, nil
}

// unpackNested extracts every safe member of a nested archive. Unsafe or
// unreadable members are skipped and reported together.
func unpackNested(data []byte, dst string) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open nested archive: %w", err)
	}
	n := 0
	var errs []error
	for _, f := range zr.File {
		target, err := safeJoin(dst, f.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		content, err := readMember(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := storage.WriteFile(target, content); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("read %s: entry larger than %d bytes", f.Name, maxEntrySize)
	}
	return data, nil
}

// safeJoin joins an archive path onto dst, rejecting absolute paths and
// paths that climb out of dst.
func safeJoin(dst, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(name) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%q: %w", name, apperr.ErrUnsafePath)
	}
	target := filepath.Join(dst, filepath.FromSlash(name))
	rel, err := filepath.Rel(dst, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", name, apperr.ErrUnsafePath)
	}
	return target, nil
}
