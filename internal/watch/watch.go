// Package watch triggers rebuilds when a source tree changes on disk.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pgmill/pgmill/internal/logfields"
)

// Watcher monitors a source tree recursively and invokes a callback after
// changes settle.
type Watcher struct {
	root         string
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
}

// New creates a watcher over the source tree rooted at dir.
func New(dir string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absRoot, err := filepath.Abs(dir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve watch path: %w", err)
	}

	w := &Watcher{
		root:         absRoot,
		watcher:      watcher,
		debounceTime: 2 * time.Second, // Debounce rapid file changes
	}
	if err := w.addRecursive(absRoot); err != nil {
		watcher.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive watches dir and every subdirectory beneath it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run blocks, invoking onChange after each settled burst of filesystem
// events, until ctx is cancelled. Newly created directories are added to
// the watch set as they appear.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context)) error {
	defer w.watcher.Close()

	slog.Info("Watching source tree", logfields.Path(w.root))

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				// Best effort; the path may already be gone.
				_ = w.addRecursive(event.Name)
			}
			slog.Debug("Source change detected", logfields.Path(event.Name))
			if timer == nil {
				timer = time.AfterFunc(w.debounceTime, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounceTime)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", logfields.Error(err))

		case <-fire:
			timer = nil
			onChange(ctx)
		}
	}
}
