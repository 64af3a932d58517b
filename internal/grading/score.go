package grading

import (
	"fmt"
	"sort"

	"github.com/starford/pixgrade/internal/apperr"
	"github.com/starford/pixgrade/internal/diff"
	"github.com/starford/pixgrade/internal/resolve"
)

// Kind classifies the comparison of one reference image for one student.
type Kind int

const (
	Compared Kind = iota
	Missing
	Ambiguous
	ShapeMismatch
	DecodeFailure
)

func (k Kind) String() string {
	switch k {
	case Compared:
		return "compared"
	case Missing:
		return "missing"
	case Ambiguous:
		return "ambiguous"
	case ShapeMismatch:
		return "shape_mismatch"
	case DecodeFailure:
		return "decode_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for c := Compared; c <= DecodeFailure; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("grading: unknown outcome kind %q", text)
}

// Outcome is the per-reference result fed to Score.
type Outcome struct {
	Kind        Kind     `json:"kind"`
	MaxAbsError float64  `json:"max_abs_error"`
	Path        string   `json:"path,omitempty"`
	Candidates  []string `json:"candidates,omitempty"`
	Detail      string   `json:"detail,omitempty"`
}

// Err maps a non-compared outcome to its apperr sentinel.
func (o Outcome) Err() error {
	switch o.Kind {
	case Missing:
		return apperr.ErrNotFound
	case Ambiguous:
		return apperr.ErrAmbiguous
	case ShapeMismatch:
		return apperr.ErrShapeMismatch
	case DecodeFailure:
		return apperr.ErrDecode
	default:
		return nil
	}
}

// FromResolve builds the outcome for an unresolved lookup.
func FromResolve(res resolve.Result) Outcome {
	switch res.Status {
	case resolve.Ambiguous:
		return Outcome{Kind: Ambiguous, Candidates: res.Paths}
	case resolve.NotFound:
		return Outcome{Kind: Missing}
	default:
		return Outcome{Kind: Compared, Path: res.Path}
	}
}

// FromDiff builds the outcome of a comparison of the file at path.
func FromDiff(path string, d diff.Result) Outcome {
	if d.ShapeMismatch {
		return Outcome{Kind: ShapeMismatch, Path: path}
	}
	return Outcome{Kind: Compared, Path: path, MaxAbsError: d.MaxAbsError}
}

// Verdict is the scoring decision for one student.
type Verdict struct {
	// Complete is true when every reference was compared.
	Complete bool `json:"complete"`
	// Missing lists references with no submitted file.
	Missing []string `json:"missing,omitempty"`
	// Incomplete lists every reference that blocked completeness, missing ones included.
	Incomplete []string `json:"incomplete,omitempty"`
	// Errors holds per-problem max abs errors in reference order.
	Errors map[int][]float64 `json:"errors"`
	// Passed is set only for complete submissions.
	Passed map[int]bool `json:"passed"`
}

// PassedProblems returns the passing problem numbers in ascending order.
func (v Verdict) PassedProblems() []int {
	var out []int
	for p, ok := range v.Passed {
		if ok {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

// Score applies the completeness rule and the tolerance. A single
// unresolved image anywhere makes the whole submission incomplete and no
// problem is scored. Otherwise a problem passes when it has at least one
// reference and every max abs error is strictly below tolerance.
func Score(refs []Reference, outcomes map[string]Outcome, tolerance float64) Verdict {
	v := Verdict{
		Complete: true,
		Errors:   make(map[int][]float64),
		Passed:   make(map[int]bool),
	}
	for _, ref := range refs {
		o, ok := outcomes[ref.Name]
		if !ok {
			o = Outcome{Kind: Missing}
		}
		if o.Kind != Compared {
			v.Complete = false
			v.Incomplete = append(v.Incomplete, ref.Name)
			if o.Kind == Missing {
				v.Missing = append(v.Missing, ref.Name)
			}
			continue
		}
		v.Errors[ref.Problem] = append(v.Errors[ref.Problem], o.MaxAbsError)
	}
	if !v.Complete {
		return v
	}

	for p := 1; p <= NumProblems(refs); p++ {
		errs := v.Errors[p]
		pass := len(errs) > 0
		for _, e := range errs {
			if e >= tolerance {
				pass = false
				break
			}
		}
		v.Passed[p] = pass
	}
	return v
}
