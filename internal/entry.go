// Package internal wires configuration, logging and the grading packages
// into the pixgrade commands.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/pixgrade/internal/api"
	"github.com/starford/pixgrade/internal/apperr"
	"github.com/starford/pixgrade/internal/diff"
	"github.com/starford/pixgrade/internal/discover"
	"github.com/starford/pixgrade/internal/extract"
	"github.com/starford/pixgrade/internal/grading"
	"github.com/starford/pixgrade/internal/mcpserver"
	"github.com/starford/pixgrade/internal/report"
	"github.com/starford/pixgrade/internal/resolve"
	"github.com/starford/pixgrade/internal/sheet"
	"github.com/starford/pixgrade/internal/sse"
	"github.com/starford/pixgrade/internal/storage"
	"github.com/starford/pixgrade/internal/viewer"
)

func newApplication(opts ...Option) (*application, error) {
	app := &application{out: os.Stdout, logOut: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config
	handlerOpts := &slog.HandlerOptions{Level: cfg.App.LogLevel}
	var handler slog.Handler
	if cfg.App.LogFormat == LogFormatJSON {
		handler = slog.NewJSONHandler(app.logOut, handlerOpts)
	} else {
		handler = slog.NewTextHandler(app.logOut, handlerOpts)
	}
	app.logger = slog.New(handler)
	slog.SetDefault(app.logger)
	return app, nil
}

// ignoreDirs is the configured ignore list plus the error-image folder, so
// cached images never stand in for a submission.
func (a *application) ignoreDirs() []string {
	g := a.config.Grading
	return append(append([]string(nil), g.IgnoreDirs...), g.ErrorImageDir)
}

func (a *application) resolver() *resolve.Resolver {
	return resolve.New(a.ignoreDirs(), a.config.Grading.Aliases, a.logger)
}

func (a *application) cache() *diff.Cache {
	return &diff.Cache{Dir: a.config.Grading.ErrorImageDir, Suffix: a.config.Grading.ErrorImageSuffix}
}

func requireDir(path, what string) error {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s %q: %w", what, path, apperr.ErrMissingInput)
	}
	return nil
}

func requireFile(path, what string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%s %q: %w", what, path, apperr.ErrMissingInput)
	}
	return nil
}

// GradeArgs are the inputs of a batch grading run.
type GradeArgs struct {
	RefDir         string
	SubmissionsDir string
	SheetPath      string
	OutputPath     string
}

// RunGrade compares every submission against the references, awards passing
// problems on a copy of the score sheet and prints a summary.
func RunGrade(ctx context.Context, args GradeArgs, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	if err := requireDir(args.RefDir, "reference dir"); err != nil {
		return err
	}
	if err := requireDir(args.SubmissionsDir, "submissions dir"); err != nil {
		return err
	}
	if err := requireFile(args.SheetPath, "score sheet"); err != nil {
		return err
	}

	logger.Info("grading started",
		slog.String("references", args.RefDir),
		slog.String("submissions", args.SubmissionsDir),
		slog.Float64("tolerance", cfg.Grading.Tolerance),
		slog.Int("workers", cfg.Grading.Workers))

	refs, err := grading.LoadReferences(args.RefDir, logger)
	if err != nil {
		return err
	}
	sh, err := sheet.Load(args.SheetPath, grading.NumProblems(refs), logger)
	if err != nil {
		return err
	}

	gopts := grading.Options{Tolerance: cfg.Grading.Tolerance, Workers: cfg.Grading.Workers}
	if cfg.Grading.WriteErrorImages {
		gopts.Cache = app.cache()
	}
	grader := grading.NewGrader(refs, app.resolver(), gopts, logger)

	summary, err := grader.Run(ctx, args.SubmissionsDir, sh)
	if err != nil {
		return err
	}
	if err := sh.Write(args.OutputPath); err != nil {
		return fmt.Errorf("write score sheet: %w", err)
	}
	logger.Info("grading finished", slog.String("output", args.OutputPath))

	return report.Write(app.out, summary)
}

// ViewArgs are the inputs of the interactive viewer.
type ViewArgs struct {
	RefDir         string
	SubmissionsDir string
	// Student is the starting student, by folder name or zero-based index.
	Student string
}

// RunView serves the interactive viewer until the grader quits, a signal
// arrives or ctx is cancelled.
func RunView(ctx context.Context, args ViewArgs, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	if err := requireDir(args.RefDir, "reference dir"); err != nil {
		return err
	}
	if err := requireDir(args.SubmissionsDir, "submissions dir"); err != nil {
		return err
	}
	refs, err := grading.LoadReferences(args.RefDir, logger)
	if err != nil {
		return err
	}
	students, err := storage.ListStudents(args.SubmissionsDir)
	if err != nil {
		return err
	}

	session, err := viewer.NewSession(viewer.SessionConfig{
		SubmissionsDir: args.SubmissionsDir,
		Students:       students,
		References:     refs,
		Resolver:       app.resolver(),
		Cache:          app.cache(),
		Opener:         viewer.CommandOpener{Command: cfg.Viewer.OpenCommand},
		Placeholder:    viewer.Placeholder(cfg.Viewer.PlaceholderWidth, cfg.Viewer.PlaceholderHeight),
		MaxZoom:        cfg.Viewer.MaxZoom,
		PollInterval:   cfg.Viewer.PollInterval,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	session.Start(args.Student)

	broker := sse.NewBroker(cfg.Viewer.PollInterval)
	defer broker.Close()

	events := make(chan viewer.Event)
	surface := api.NewSurface(broker)
	h := api.NewHandler(surface, events)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/", h.Index)
	r.Mount("/api", api.NewRouter(h, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gCtx)
	defer stopLoop()

	notifier := viewer.NewNotifier(64)
	if cfg.Viewer.Watch {
		ignore := app.ignoreDirs()
		g.Go(func() error {
			if err := viewer.Watch(loopCtx, args.SubmissionsDir, ignore, logger, notifier.Notify); err != nil {
				logger.Warn("watcher unavailable", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// The session loop owns all viewer state. Quitting it stops everything.
	g.Go(func() error {
		defer stopLoop()
		defer surface.Close()
		return session.Loop(loopCtx, events, notifier.C, surface)
	})

	g.Go(func() error {
		logger.Info("viewer ready", slog.String("url", "http://"+cfg.App.HTTP.Address()+"/"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			stopLoop()
		case <-loopCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Close the broker first so streaming /api/events handlers return.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("viewer error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("viewer stopped")
	return nil
}

// RunMCP serves the inspection tools over stdio.
func RunMCP(ctx context.Context, refDir, submissionsDir, version string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	if err := requireDir(refDir, "reference dir"); err != nil {
		return err
	}
	if err := requireDir(submissionsDir, "submissions dir"); err != nil {
		return err
	}
	refs, err := grading.LoadReferences(refDir, app.logger)
	if err != nil {
		return err
	}
	resolver := app.resolver()
	grader := grading.NewGrader(refs, resolver, grading.Options{
		Tolerance: app.config.Grading.Tolerance,
		Workers:   1,
	}, app.logger)

	app.logger.Info("mcp server starting", slog.Int("references", len(refs)))
	return mcpserver.New(grader, resolver, submissionsDir, version).ServeStdio()
}

// RunExtract unpacks a Canvas submissions archive.
func RunExtract(ctx context.Context, zipPath, outDir string, verbose bool, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	x := &extract.Extractor{Out: outDir, Logger: app.logger}
	if verbose {
		x.Verbose = app.out
	}
	stats, err := x.Extract(ctx, zipPath)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.out, "extracted %d files for %d students (%d entries, %d failed)\n",
		stats.Files, stats.Students, stats.Entries, len(stats.Failed))
	return err
}

// RunFindCustom copies each student's custom image into outDir.
func RunFindCustom(ctx context.Context, submissionsDir, outDir, pattern string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	if err := requireDir(submissionsDir, "submissions dir"); err != nil {
		return err
	}
	f := &discover.Finder{Pattern: pattern, Ignore: app.ignoreDirs(), Logger: app.logger}
	res, err := f.Run(submissionsDir, outDir)
	if err != nil {
		return err
	}
	discover.Write(app.out, res)
	return nil
}
