package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/pixgrade/internal/apperr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseEntry(t *testing.T) {
	tests := []struct {
		name string
		want Entry
	}{
		{"doejane_1234_5678_hw_1_1_a.png", Entry{Student: "doejane", StudentID: "1234", SubmissionID: "5678", File: "hw_1_1_a.png"}},
		{"doejane_LATE_1234_5678_hw_1_1_a-2.png", Entry{Student: "doejane", StudentID: "1234", SubmissionID: "5678", Late: true, File: "hw_1_1_a.png"}},
		{"doejane_1234_5678_report-final.pdf", Entry{Student: "doejane", StudentID: "1234", SubmissionID: "5678", File: "report-final.pdf"}},
		{"doejane_1234_5678_code-12.zip", Entry{Student: "doejane", StudentID: "1234", SubmissionID: "5678", File: "code.zip"}},
		{"doejane_1234_5678_v2", Entry{Student: "doejane", StudentID: "1234", SubmissionID: "5678", File: "v2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEntry(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseEntry mismatch (-want +got):\n%s", diff)
			}
		})
	}

	for _, bad := range []string{"readme.txt", "doejane_1234_5678", "doejane_LATE_1234_x", "_1_2_f.png"} {
		if _, err := ParseEntry(bad); !errors.Is(err, apperr.ErrInvalidName) {
			t.Errorf("ParseEntry(%q) err = %v", bad, err)
		}
	}
}

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	nested := buildZip(t, map[string][]byte{
		"project/out/hw_1_2_b.png": []byte("b"),
		"../escape.txt":            []byte("x"),
	})
	archive := buildZip(t, map[string][]byte{
		"doejane_1234_5678_hw_1_1_a-1.png": []byte("a"),
		"doejane_1234_5679_code.zip":       buildZip(t, map[string][]byte{"src/main.cpp": []byte("int main")}),
		"smithbo_LATE_42_9_hw_1_1_a.png":   []byte("late"),
		"smithbo_77_10_hw_1_1_a.png":       []byte("other smith"),
		"leeann_5_6_bundle.zip":            nested,
		"notes.txt":                        []byte("stray"),
	})

	dir := t.TempDir()
	zipPath := filepath.Join(dir, "submissions.zip")
	if err := os.WriteFile(zipPath, archive, 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	var verbose bytes.Buffer
	x := &Extractor{Out: out, Logger: quietLogger(), Verbose: &verbose}
	stats, err := x.Extract(context.Background(), zipPath)
	if err != nil {
		t.Fatal(err)
	}

	read := func(rel string) string {
		t.Helper()
		data, err := os.ReadFile(filepath.Join(out, rel))
		if err != nil {
			t.Errorf("missing %s: %v", rel, err)
			return ""
		}
		return string(data)
	}
	if got := read("doejane/hw_1_1_a.png"); got != "a" {
		t.Errorf("doejane image = %q", got)
	}
	if got := read("doejane/src/main.cpp"); got != "int main" {
		t.Errorf("nested file = %q", got)
	}

	// Zip member order decides which smithbo keeps the bare name.
	late, other := read("smithbo/hw_1_1_a.png"), ""
	if _, err := os.Stat(filepath.Join(out, "smithbo_77")); err == nil {
		other = read("smithbo_77/hw_1_1_a.png")
	} else {
		other = late
		late = read("smithbo_42/hw_1_1_a.png")
	}
	if late != "late" || other != "other smith" {
		t.Errorf("same-name students not separated: %q %q", late, other)
	}

	if _, err := os.Stat(filepath.Join(out, "escape.txt")); err == nil {
		t.Error("zip-slip entry escaped the output folder")
	}
	if got := read("leeann/project/out/hw_1_2_b.png"); got != "b" {
		t.Errorf("nested bundle = %q", got)
	}
	if !containsFailure(stats, "leeann_5_6_bundle.zip") {
		t.Errorf("rejected nested member not reported: %+v", stats)
	}

	if !containsFailure(stats, "notes.txt") {
		t.Errorf("stray entry not reported: %+v", stats)
	}
	if stats.Entries != 6 || stats.Students != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if !strings.Contains(verbose.String(), "doejane_1234_5678_hw_1_1_a-1.png  ->  doejane/hw_1_1_a.png") {
		t.Errorf("verbose output = %q", verbose.String())
	}
}

func containsFailure(s Stats, name string) bool {
	for _, f := range s.Failed {
		if f == name {
			return true
		}
	}
	return false
}

func TestExtractMissingArchive(t *testing.T) {
	x := &Extractor{Out: t.TempDir(), Logger: quietLogger()}
	_, err := x.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.zip"))
	if !errors.Is(err, apperr.ErrMissingInput) {
		t.Errorf("err = %v", err)
	}
}

func TestSafeJoin(t *testing.T) {
	dst := t.TempDir()
	for _, bad := range []string{"../x", "a/../../x", "/etc/passwd", `..\x`} {
		if _, err := safeJoin(dst, bad); !errors.Is(err, apperr.ErrUnsafePath) {
			t.Errorf("safeJoin(%q) err = %v", bad, err)
		}
	}
	got, err := safeJoin(dst, "a/b.png")
	if err != nil || got != filepath.Join(dst, "a", "b.png") {
		t.Errorf("safeJoin = %q, %v", got, err)
	}
}
