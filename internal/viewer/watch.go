package viewer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeCallback receives the absolute path of a changed file.
type ChangeCallback func(path string)

// Watch runs an fsnotify watcher over the submissions tree until ctx is
// cancelled, calling cb for every created, written, removed or renamed
// entry. Directories whose base name is in ignore are not watched, so
// writes into the error-image cache never trigger a refresh.
//
// Directories created at runtime are added to the watch list.
func Watch(ctx context.Context, root string, ignore []string, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	skip := make(map[string]struct{}, len(ignore))
	for _, name := range ignore {
		skip[name] = struct{}{}
	}
	ignored := func(path string) bool {
		_, ok := skip[filepath.Base(path)]
		return ok
	}

	if err := addDirsRecursive(w, root, ignored); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name, ignored); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("watcher: changed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			if cb != nil {
				cb(ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and its non-ignored subdirectories to w.
// Unreadable subdirectories are skipped.
func addDirsRecursive(w *fsnotify.Watcher, root string, ignored func(string) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignored(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// Notifier turns change callbacks into non-blocking sends on a buffered
// channel suitable for Session.Loop.
type Notifier struct {
	C chan string
}

// NewNotifier creates a Notifier with the given buffer size.
func NewNotifier(buffer int) *Notifier {
	return &Notifier{C: make(chan string, max(buffer, 1))}
}

// Notify queues path, dropping it when the buffer is full.
func (n *Notifier) Notify(path string) {
	select {
	case n.C <- path:
	default:
	}
}
