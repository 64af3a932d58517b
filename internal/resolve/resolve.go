// Package resolve locates a reference image's counterpart inside a student's
// submission tree.
package resolve

import (
	"fmt"
	"log/slog"

	"github.com/starford/pixgrade/internal/apperr"
	"github.com/starford/pixgrade/internal/storage"
)

// Status is the outcome of a lookup.
type Status int

const (
	NotFound Status = iota
	Found
	Ambiguous
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Result is the outcome of resolving one filename in one tree.
type Result struct {
	Status Status
	// Name is the queried canonical filename.
	Name string
	// Matched is the name that produced the result (Name or one of its aliases).
	Matched string
	// Path is set when Status is Found.
	Path string
	// Paths lists every candidate when Status is Ambiguous.
	Paths []string
}

// Err converts a non-Found result into the matching apperr sentinel.
func (r Result) Err() error {
	switch r.Status {
	case Found:
		return nil
	case Ambiguous:
		return fmt.Errorf("%s: %d candidates %v: %w", r.Name, len(r.Paths), r.Paths, apperr.ErrAmbiguous)
	default:
		return fmt.Errorf("%s: %w", r.Name, apperr.ErrNotFound)
	}
}

// Resolver finds submitted files by exact name, falling back to an alias table.
type Resolver struct {
	ignore  []string
	aliases map[string][]string
	logger  *slog.Logger
}

// New creates a Resolver. ignore lists directory base names excluded at any
// depth; aliases maps a canonical filename to ordered fallback names.
func New(ignore []string, aliases map[string][]string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{ignore: ignore, aliases: aliases, logger: logger}
}

// Open returns a storage provider for a submission root honoring the
// resolver's ignore list.
func (r *Resolver) Open(root string) (storage.Provider, error) {
	return storage.NewFS(root, storage.WithIgnore(r.ignore...))
}

// Resolve searches root for name. See ResolveIn.
func (r *Resolver) Resolve(root, name string) Result {
	tree, err := r.Open(root)
	if err != nil {
		r.logger.Warn("resolve: open tree failed", slog.String("root", root), slog.String("error", err.Error()))
		return Result{Status: NotFound, Name: name}
	}
	return r.ResolveIn(tree, name)
}

// ResolveIn searches tree for name. Several files with the primary name are
// Ambiguous and never narrowed down. Only when the primary name has no match
// are the aliases tried, in order; the first alias with any match decides.
func (r *Resolver) ResolveIn(tree storage.Provider, name string) Result {
	candidates := append([]string{name}, r.aliases[name]...)
	for _, candidate := range candidates {
		paths, err := tree.Find(storage.Name(candidate))
		if err != nil {
			r.logger.Warn("resolve: search failed",
				slog.String("root", tree.Root()),
				slog.String("name", candidate),
				slog.String("error", err.Error()))
			continue
		}
		switch len(paths) {
		case 0:
			continue
		case 1:
			return Result{Status: Found, Name: name, Matched: candidate, Path: paths[0]}
		default:
			return Result{Status: Ambiguous, Name: name, Matched: candidate, Paths: paths}
		}
	}
	return Result{Status: NotFound, Name: name}
}
