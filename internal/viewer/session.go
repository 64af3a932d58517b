package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starford/pixgrade/internal/diff"
	"github.com/starford/pixgrade/internal/grading"
	"github.com/starford/pixgrade/internal/raster"
	"github.com/starford/pixgrade/internal/resolve"
)

// Snapshot describes the displayed frame.
type Snapshot struct {
	Title        string   `json:"title"`
	Student      string   `json:"student"`
	StudentIndex int      `json:"student_index"`
	NumStudents  int      `json:"num_students"`
	Reference    string   `json:"reference"`
	RefIndex     int      `json:"ref_index"`
	NumRefs      int      `json:"num_refs"`
	Mode         string   `json:"mode"`
	Zoom         int      `json:"zoom"`
	Status       string   `json:"status"`
	Path         string   `json:"path,omitempty"`
	MaxAbsError  *float64 `json:"max_abs_error,omitempty"`
}

// Surface displays frames produced by a Session.
type Surface interface {
	Show(snap Snapshot, frame image.Image) error
}

// Opener reveals a path in the OS file browser.
type Opener interface {
	Open(path string) error
}

// SessionConfig wires a Session.
type SessionConfig struct {
	SubmissionsDir string
	Students       []string
	References     []grading.Reference
	Resolver       *resolve.Resolver
	// Cache, when non-nil, stores the error image of every compared pair.
	Cache        *diff.Cache
	Opener       Opener
	Placeholder  image.Image
	MaxZoom      int
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Session owns the viewer state and the derived images of the current pair.
// It is not safe for concurrent use; Loop is its only driver.
type Session struct {
	cfg    SessionConfig
	state  State
	bounds Bounds
	logger *slog.Logger

	// derived state of the current pair
	sub      *raster.Raster
	errImage *raster.Raster
	maxErr   *float64
	path     string
	status   string
}

// NewSession validates cfg and returns a session positioned at the first
// image of the first student. Call Reload before the first Frame.
func NewSession(cfg SessionConfig) (*Session, error) {
	if len(cfg.Students) == 0 {
		return nil, errors.New("viewer: no student submissions")
	}
	if len(cfg.References) == 0 {
		return nil, errors.New("viewer: no reference images")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("viewer: resolver is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Placeholder == nil {
		cfg.Placeholder = Placeholder(DefaultPlaceholderWidth, DefaultPlaceholderHeight)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	s := &Session{
		cfg:    cfg,
		logger: cfg.Logger,
		bounds: Bounds{Students: len(cfg.Students), Images: len(cfg.References), MaxZoom: cfg.MaxZoom},
	}
	s.state = s.state.Normalize(s.bounds)
	return s, nil
}

// Start positions the cursor on a student given by name or zero-based index.
// Unknown names are logged and leave the cursor at the first student.
func (s *Session) Start(student string) {
	if student == "" {
		return
	}
	for i, name := range s.cfg.Students {
		if name == student {
			s.state.StudentIndex = i
			return
		}
	}
	if idx, err := strconv.Atoi(student); err == nil {
		s.state.StudentIndex = idx
		s.state = s.state.Normalize(s.bounds)
		return
	}
	s.logger.Warn("viewer: unknown start student", slog.String("student", student))
}

// State returns the current cursor.
func (s *Session) State() State {
	return s.state
}

func (s *Session) student() string {
	return s.cfg.Students[s.state.StudentIndex]
}

func (s *Session) reference() grading.Reference {
	return s.cfg.References[s.state.RefIndex]
}

func (s *Session) studentRoot() string {
	return filepath.Join(s.cfg.SubmissionsDir, s.student())
}

// StudentRoot returns the submission folder of the current student.
func (s *Session) StudentRoot() string {
	return s.studentRoot()
}

// Reload recomputes the derived images for the current pair. Failures never
// propagate: the submitted and difference images become absent and the
// reason is kept as the status line.
func (s *Session) Reload() {
	s.sub, s.errImage, s.maxErr, s.path = nil, nil, nil, ""
	ref := s.reference()
	log := s.logger.With(slog.String("student", s.student()), slog.String("reference", ref.Name))

	tree, err := s.cfg.Resolver.Open(s.studentRoot())
	if err != nil {
		s.fail(log, fmt.Sprintf("Could not open %s", s.student()), err)
		return
	}
	res := s.cfg.Resolver.ResolveIn(tree, ref.Name)
	switch res.Status {
	case resolve.NotFound:
		s.fail(log, fmt.Sprintf("Could not find %s in %s", ref.Name, s.student()), res.Err())
		return
	case resolve.Ambiguous:
		s.fail(log, fmt.Sprintf("Found %d copies of %s in %s", len(res.Paths), ref.Name, s.student()), res.Err())
		return
	}
	s.path = res.Path

	sub, err := raster.Load(res.Path)
	if err != nil {
		s.fail(log, fmt.Sprintf("Could not load %s", res.Path), err)
		return
	}
	d := diff.Compare(ref.Raster, sub)
	if d.ShapeMismatch {
		s.fail(log, fmt.Sprintf("Image size mismatch: %s != %s", ref.Raster.Shape(), sub.Shape()), nil)
		return
	}

	s.sub = sub
	s.errImage = diff.ErrorImage(d)
	maxErr := d.MaxAbsError
	s.maxErr = &maxErr
	s.status = fmt.Sprintf("max abs error %g", maxErr)
	log.Debug("viewer: loaded", slog.String("path", res.Path), slog.Float64("max_abs_error", maxErr))

	if s.cfg.Cache != nil {
		if _, err := s.cfg.Cache.Store(tree, ref.Name, d); err != nil {
			log.Warn("viewer: error image not cached", slog.String("error", err.Error()))
		}
	}
}

func (s *Session) fail(log *slog.Logger, status string, err error) {
	s.sub, s.errImage, s.maxErr = nil, nil, nil
	s.status = status
	if err != nil {
		log.Info("viewer: "+status, slog.String("error", err.Error()))
		return
	}
	log.Info("viewer: " + status)
}

// Frame renders the current mode at the current zoom.
func (s *Session) Frame() image.Image {
	var img image.Image
	switch s.state.Mode {
	case ModeSource:
		img = s.rasterOrPlaceholder(s.sub)
	case ModeReference:
		img = s.reference().Raster.Image()
	case ModeDifference:
		img = s.rasterOrPlaceholder(s.errImage)
	default:
		panic(fmt.Sprintf("viewer: unhandled mode %v", s.state.Mode))
	}
	return Zoom(img, s.state.Zoom)
}

func (s *Session) rasterOrPlaceholder(r *raster.Raster) image.Image {
	if r == nil {
		return s.cfg.Placeholder
	}
	return r.Image()
}

// Title is the window title for the current state.
func (s *Session) Title() string {
	return fmt.Sprintf("%s (%d/%d) %s [%s] x%d",
		s.student(), s.state.StudentIndex+1, len(s.cfg.Students),
		s.reference().Name, s.state.Mode, s.state.Zoom)
}

// Snapshot describes the current frame.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Title:        s.Title(),
		Student:      s.student(),
		StudentIndex: s.state.StudentIndex,
		NumStudents:  len(s.cfg.Students),
		Reference:    s.reference().Name,
		RefIndex:     s.state.RefIndex,
		NumRefs:      len(s.cfg.References),
		Mode:         s.state.Mode.String(),
		Zoom:         s.state.Zoom,
		Status:       s.status,
		Path:         s.path,
		MaxAbsError:  s.maxErr,
	}
}

// Handle applies ev and performs its effect. It reports whether the state
// changed in a way that needs a new frame, and whether the loop should stop.
func (s *Session) Handle(ev Event) (redraw, quit bool) {
	prev := s.state
	next, effect := s.state.Apply(ev, s.bounds)
	s.state = next
	switch effect {
	case EffectReload:
		// Clamped moves reload too, so pressing a navigation key at either
		// end re-reads the files on disk.
		s.Reload()
		return true, false
	case EffectRedraw:
		return next != prev, false
	case EffectOpen:
		s.open()
		return false, false
	case EffectQuit:
		return false, true
	default:
		return false, false
	}
}

func (s *Session) open() {
	if s.cfg.Opener == nil {
		return
	}
	target := s.studentRoot()
	if s.path != "" {
		target = filepath.Dir(s.path)
	}
	if err := s.cfg.Opener.Open(target); err != nil {
		s.logger.Warn("viewer: open failed", slog.String("path", target), slog.String("error", err.Error()))
	}
}

// Loop drives the session from events until quit, a closed channel or ctx
// cancellation. changes delivers paths touched on disk; those inside the
// current student's folder mark the pair stale, and a stale pair is reloaded
// on the next poll tick. changes may be nil.
func (s *Session) Loop(ctx context.Context, events <-chan Event, changes <-chan string, surface Surface) error {
	s.Reload()
	if err := s.show(surface); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			redraw, quit := s.Handle(ev)
			if quit {
				s.logger.Info("viewer: quit")
				return nil
			}
			if redraw {
				if err := s.show(surface); err != nil {
					return err
				}
			}
		case path := <-changes:
			if s.touches(path) {
				pending = true
			}
		case <-ticker.C:
			if !pending {
				continue
			}
			pending = false
			if redraw, _ := s.Handle(EventRefresh); redraw {
				if err := s.show(surface); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Session) touches(path string) bool {
	rel, err := filepath.Rel(s.studentRoot(), path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (s *Session) show(surface Surface) error {
	if err := surface.Show(s.Snapshot(), s.Frame()); err != nil {
		return fmt.Errorf("viewer: show frame: %w", err)
	}
	return nil
}
