package grading

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/starford/pixgrade/internal/apperr"
	"github.com/starford/pixgrade/internal/diff"
	"github.com/starford/pixgrade/internal/raster"
	"github.com/starford/pixgrade/internal/resolve"
	"github.com/starford/pixgrade/internal/sheet"
	"github.com/starford/pixgrade/internal/storage"
)

// Options tunes a Grader.
type Options struct {
	Tolerance float64
	Workers   int
	// Cache, when non-nil, receives an error image for every compared pair.
	Cache *diff.Cache
}

// Grader evaluates submission trees against a fixed reference set.
type Grader struct {
	refs     []Reference
	resolver *resolve.Resolver
	opts     Options
	logger   *slog.Logger
}

// NewGrader creates a Grader.
func NewGrader(refs []Reference, resolver *resolve.Resolver, opts Options, logger *slog.Logger) *Grader {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Grader{refs: refs, resolver: resolver, opts: opts, logger: logger}
}

// References returns the reference set.
func (g *Grader) References() []Reference {
	return g.refs
}

// Tolerance returns the configured pass threshold.
func (g *Grader) Tolerance() float64 {
	return g.opts.Tolerance
}

// Report is the grading result of one student.
type Report struct {
	Student  string             `json:"student"`
	Outcomes map[string]Outcome `json:"outcomes"`
	Verdict  Verdict            `json:"verdict"`
}

// Summary is the result of a batch run.
type Summary struct {
	Reports []Report
	Unknown []string
	Awarded int
}

// Evaluate compares every reference against the student's tree. Per-image
// failures become outcomes and are logged; only context cancellation is
// returned as an error.
func (g *Grader) Evaluate(ctx context.Context, student, root string) (map[string]Outcome, error) {
	log := g.logger.With(slog.String("student", student))
	outcomes := make(map[string]Outcome, len(g.refs))

	tree, err := g.resolver.Open(root)
	if err != nil {
		log.Warn("grading: submission tree unavailable", slog.String("error", err.Error()))
		for _, ref := range g.refs {
			outcomes[ref.Name] = Outcome{Kind: Missing}
		}
		return outcomes, nil
	}

	for _, ref := range g.refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcomes[ref.Name] = g.compare(log, tree, ref)
	}
	return outcomes, nil
}

func (g *Grader) compare(log *slog.Logger, tree storage.Provider, ref Reference) Outcome {
	res := g.resolver.ResolveIn(tree, ref.Name)
	switch res.Status {
	case resolve.Ambiguous:
		log.Warn("grading: found multiple submissions",
			slog.String("reference", ref.Name),
			slog.Any("paths", res.Paths))
		return FromResolve(res)
	case resolve.NotFound:
		log.Debug("grading: missing", slog.String("reference", ref.Name))
		return FromResolve(res)
	}

	sub, err := raster.Load(res.Path)
	if err != nil {
		log.Warn("grading: cannot decode submission",
			slog.String("reference", ref.Name),
			slog.String("path", res.Path),
			slog.String("error", err.Error()))
		return Outcome{Kind: DecodeFailure, Path: res.Path, Detail: err.Error()}
	}

	d := diff.Compare(ref.Raster, sub)
	if d.ShapeMismatch {
		detail := fmt.Sprintf("%s != %s", ref.Raster.Shape(), sub.Shape())
		log.Warn("grading: image size mismatch",
			slog.String("reference", ref.Name),
			slog.String("path", res.Path),
			slog.String("shapes", detail))
		o := FromDiff(res.Path, d)
		o.Detail = detail
		return o
	}

	if g.opts.Cache != nil {
		if _, err := g.opts.Cache.Store(tree, ref.Name, d); err != nil {
			log.Warn("grading: error image not cached",
				slog.String("reference", ref.Name),
				slog.String("error", err.Error()))
		}
	}
	return FromDiff(res.Path, d)
}

// Inspect evaluates and scores a single student without touching a sheet.
func (g *Grader) Inspect(ctx context.Context, submissionsDir, student string) (Report, error) {
	outcomes, err := g.Evaluate(ctx, student, filepath.Join(submissionsDir, student))
	if err != nil {
		return Report{}, err
	}
	return Report{
		Student:  student,
		Outcomes: outcomes,
		Verdict:  Score(g.refs, outcomes, g.opts.Tolerance),
	}, nil
}

// Run grades every student directory under submissionsDir and awards
// passing problems on sh. Students are evaluated concurrently; the sheet is
// only written from this goroutine, in student order, after all workers finish.
func (g *Grader) Run(ctx context.Context, submissionsDir string, sh *sheet.Sheet) (*Summary, error) {
	students, err := storage.ListStudents(submissionsDir)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	reports := make([]*Report, len(students))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)
	for i, student := range students {
		if _, ok := sh.Row(student); !ok {
			g.logger.Warn("grading: unknown student",
				slog.String("student", student),
				slog.String("error", apperr.ErrUnknownStudent.Error()))
			summary.Unknown = append(summary.Unknown, student)
			continue
		}
		eg.Go(func() error {
			r, err := g.Inspect(egCtx, submissionsDir, student)
			if err != nil {
				return err
			}
			reports[i] = &r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("grading: %w", err)
	}

	for _, r := range reports {
		if r == nil {
			continue
		}
		summary.Reports = append(summary.Reports, *r)
		if !r.Verdict.Complete {
			if len(r.Verdict.Missing) > 0 {
				g.logger.Warn("grading: missing", slog.String("student", r.Student), slog.Any("references", r.Verdict.Missing))
			}
			continue
		}
		for _, p := range r.Verdict.PassedProblems() {
			if err := sh.Award(r.Student, p); err != nil {
				g.logger.Warn("grading: award failed",
					slog.String("student", r.Student),
					slog.Int("problem", p),
					slog.String("error", err.Error()))
				continue
			}
			summary.Awarded++
		}
	}
	return summary, nil
}
