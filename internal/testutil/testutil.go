// Package testutil provides shared test helpers for building reference and
// submission trees on disk.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/pixgrade/internal/raster"
)

// Solid returns an 8-bit RGB raster filled with v.
func Solid(w, h int, v uint16) *raster.Raster {
	r := raster.New(w, h, 3, 8)
	for i := range r.Pix {
		r.Pix[i] = v
	}
	return r
}

// WritePNG encodes r to root/rel, creating parent directories.
func WritePNG(t *testing.T, root, rel string, r *raster.Raster) string {
	t.Helper()
	data, err := r.EncodePNG()
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// WriteFile writes raw content to root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// Course is a reference dir plus a submissions dir with one folder per student.
type Course struct {
	RefDir  string
	SubsDir string
}

// NewCourse creates empty reference and submissions directories.
func NewCourse(t *testing.T) Course {
	t.Helper()
	base := t.TempDir()
	c := Course{RefDir: filepath.Join(base, "refs"), SubsDir: filepath.Join(base, "subs")}
	for _, d := range []string{c.RefDir, c.SubsDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

// Ref writes a reference image.
func (c Course) Ref(t *testing.T, name string, r *raster.Raster) {
	t.Helper()
	WritePNG(t, c.RefDir, name, r)
}

// Submit writes a student's image at rel inside the student's folder.
func (c Course) Submit(t *testing.T, student, rel string, r *raster.Raster) string {
	t.Helper()
	return WritePNG(t, filepath.Join(c.SubsDir, student), rel, r)
}

// Student creates an empty student folder.
func (c Course) Student(t *testing.T, student string) string {
	t.Helper()
	p := filepath.Join(c.SubsDir, student)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}
