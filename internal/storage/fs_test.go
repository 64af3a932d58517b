package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func tempTree(t *testing.T, opts ...Option) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, opts...)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func touch(t *testing.T, root, rel string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFind_NestedMatches(t *testing.T) {
	s := tempTree(t)
	a := touch(t, s.Root(), "deep/er/still/hw_1_1_a.png")
	b := touch(t, s.Root(), "hw_1_1_a.png")
	touch(t, s.Root(), "hw_1_1_b.png")

	got, err := s.Find(Name("hw_1_1_a.png"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := []string{a, b}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Find mismatch (-want +got):\n%s", diff)
	}
}

func TestFind_SkipsIgnoredDirsAtAnyDepth(t *testing.T) {
	s := tempTree(t, WithIgnore(".git", "__MACOSX", "handouts"))
	keep := touch(t, s.Root(), "src/out/img.png")
	touch(t, s.Root(), "__MACOSX/src/out/img.png")
	touch(t, s.Root(), "src/handouts/img.png")
	touch(t, s.Root(), "a/b/.git/objects/img.png")

	got, err := s.Find(Name("img.png"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]string{keep}, got); diff != "" {
		t.Errorf("Find mismatch (-want +got):\n%s", diff)
	}
}

func TestFind_CaseSensitive(t *testing.T) {
	s := tempTree(t)
	touch(t, s.Root(), "HW_1_1_A.PNG")
	got, err := s.Find(Name("hw_1_1_a.png"))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no match, got %v", got)
	}
}

func TestWriteOnce_SecondCallIsNoop(t *testing.T) {
	s := tempTree(t)
	written, err := s.WriteOnce("__error_images/a.error.png", []byte("first"))
	if err != nil || !written {
		t.Fatalf("first WriteOnce = %v, %v", written, err)
	}
	p := filepath.Join(s.Root(), "__error_images", "a.error.png")
	before, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)
	written, err = s.WriteOnce("__error_images/a.error.png", []byte("second"))
	if err != nil {
		t.Fatalf("second WriteOnce: %v", err)
	}
	if written {
		t.Error("second WriteOnce should not write")
	}
	after, _ := os.Stat(p)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Errorf("mtime changed: %v -> %v", before.ModTime(), after.ModTime())
	}
	got, _ := s.Read("__error_images/a.error.png")
	if string(got) != "first" {
		t.Errorf("content = %q, want first", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), "__error_images", ".pixgrade-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestWriteOnce_ConcurrentWritersCreateOnce(t *testing.T) {
	s := tempTree(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	writes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.WriteOnce("cache/x.png", []byte("x"))
			if err != nil {
				t.Errorf("WriteOnce: %v", err)
				return
			}
			if ok {
				mu.Lock()
				writes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if writes != 1 {
		t.Errorf("writes = %d, want 1", writes)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempTree(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.png",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if _, err := s.WriteOnce(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if s.Exists(p) {
			t.Errorf("Exists(%q) should be false", p)
		}
	}
}

func TestWriteFile_Replaces(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "grades.csv")
	if err := WriteFile(p, []byte("a")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(p, []byte("b")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, _ := os.ReadFile(p)
	if string(got) != "b" {
		t.Errorf("content = %q", got)
	}
}

func TestListStudents_SortedDirsOnly(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"zed", "amy", "bob"} {
		if err := os.Mkdir(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	touch(t, dir, "notes.txt")

	got, err := ListStudents(dir)
	if err != nil {
		t.Fatalf("ListStudents: %v", err)
	}
	if diff := cmp.Diff([]string{"amy", "bob", "zed"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "pixgrade-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
