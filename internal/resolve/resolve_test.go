package resolve

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/pixgrade/internal/apperr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func touch(t *testing.T, root, rel string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func testResolver() *Resolver {
	return New(
		[]string{".git", "handouts", "__MACOSX"},
		map[string][]string{"hw_1_6_alpha_circles.png": {"hw_1_6_alpha_cirlces.png", "alpha.png"}},
		quietLogger(),
	)
}

func TestResolve_Found(t *testing.T) {
	root := t.TempDir()
	want := touch(t, root, "project/build/output/hw_1_1_a.png")

	res := testResolver().Resolve(root, "hw_1_1_a.png")
	if res.Status != Found || res.Path != want || res.Matched != "hw_1_1_a.png" {
		t.Fatalf("got %+v", res)
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v", res.Err())
	}
}

func TestResolve_NotFound(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "hw_1_1_b.png")

	res := testResolver().Resolve(root, "hw_1_1_a.png")
	if res.Status != NotFound {
		t.Fatalf("status = %v", res.Status)
	}
	if !errors.Is(res.Err(), apperr.ErrNotFound) {
		t.Errorf("Err() = %v", res.Err())
	}
}

func TestResolve_DuplicatesAreAmbiguous(t *testing.T) {
	root := t.TempDir()
	a := touch(t, root, "v1/hw_1_1_a.png")
	b := touch(t, root, "v2/hw_1_1_a.png")

	res := testResolver().Resolve(root, "hw_1_1_a.png")
	if res.Status != Ambiguous {
		t.Fatalf("status = %v, want ambiguous", res.Status)
	}
	if res.Path != "" {
		t.Errorf("ambiguous result must not pick a path, got %q", res.Path)
	}
	if diff := cmp.Diff([]string{a, b}, res.Paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(res.Err(), apperr.ErrAmbiguous) {
		t.Errorf("Err() = %v", res.Err())
	}
}

func TestResolve_AmbiguousPrimarySkipsAliases(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/hw_1_6_alpha_circles.png")
	touch(t, root, "b/hw_1_6_alpha_circles.png")
	touch(t, root, "hw_1_6_alpha_cirlces.png")

	res := testResolver().Resolve(root, "hw_1_6_alpha_circles.png")
	if res.Status != Ambiguous {
		t.Fatalf("status = %v, want ambiguous", res.Status)
	}
}

func TestResolve_AliasFallback(t *testing.T) {
	root := t.TempDir()
	want := touch(t, root, "out/hw_1_6_alpha_cirlces.png")

	res := testResolver().Resolve(root, "hw_1_6_alpha_circles.png")
	if res.Status != Found || res.Path != want {
		t.Fatalf("got %+v", res)
	}
	if res.Name != "hw_1_6_alpha_circles.png" || res.Matched != "hw_1_6_alpha_cirlces.png" {
		t.Errorf("name/matched = %q/%q", res.Name, res.Matched)
	}
}

func TestResolve_AliasOrderRespected(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "alpha.png")
	want := touch(t, root, "x/hw_1_6_alpha_cirlces.png")

	res := testResolver().Resolve(root, "hw_1_6_alpha_circles.png")
	if res.Path != want {
		t.Fatalf("expected first alias to win, got %+v", res)
	}
}

func TestResolve_IgnoredDirsExcluded(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "__MACOSX/hw_1_1_a.png")
	touch(t, root, "deep/handouts/hw_1_1_a.png")
	want := touch(t, root, "deep/mine/hw_1_1_a.png")

	res := testResolver().Resolve(root, "hw_1_1_a.png")
	if res.Status != Found || res.Path != want {
		t.Fatalf("got %+v", res)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/hw_1_2_x.png")
	touch(t, root, "b/hw_1_2_x.png")
	touch(t, root, "c/hw_1_3_x.png")

	r := testResolver()
	for _, name := range []string{"hw_1_2_x.png", "hw_1_3_x.png", "hw_9_9_none.png"} {
		first := r.Resolve(root, name)
		for i := 0; i < 3; i++ {
			if diff := cmp.Diff(first, r.Resolve(root, name)); diff != "" {
				t.Errorf("%s: result changed (-first +again):\n%s", name, diff)
			}
		}
	}
}

func TestResolve_MissingRoot(t *testing.T) {
	res := testResolver().Resolve(filepath.Join(t.TempDir(), "nobody"), "hw_1_1_a.png")
	if res.Status != NotFound {
		t.Errorf("status = %v", res.Status)
	}
}
