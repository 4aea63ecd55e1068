// Package watch observes the component tree for source changes. Each change
// is reported to a single callback, which the orchestrator uses to trigger a
// fresh packaging pass over the full component set. Watch events never cause
// re-discovery.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/loomdev/loom/pkg/component"
)

// Event is one change notification: either a changed file path or a watcher
// error, never both.
type Event struct {
	// Path is the changed file, relative to the watch root when possible.
	Path string

	// Err is a watcher-level error.
	Err error
}

// Watcher is an fsnotify-backed implementation of the change watcher.
type Watcher struct {
	logger   zerolog.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher. Burst edits within the debounce window
// collapse into a single event; zero uses the 500ms default.
func NewWatcher(logger zerolog.Logger, debounce time.Duration) *Watcher {
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		logger:   logger.With().Str("component", "watch").Logger(),
		debounce: debounce,
	}
}

// Watch registers the component directories beneath rootDir and delivers
// change events to onEvent until ctx is cancelled. It returns once watches
// are established; delivery happens on a background goroutine.
func (w *Watcher) Watch(ctx context.Context, components []component.Component, rootDir string, onEvent func(Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	for _, comp := range components {
		dir := comp.AbsPath(rootDir)
		if err := w.watchTree(dir); err != nil {
			w.logger.Warn().Err(err).Str("component", comp.Path).Msg("Failed to watch component")
		}
	}

	go w.processEvents(ctx, rootDir, onEvent)

	w.logger.Info().
		Int("components", len(components)).
		Str("root", rootDir).
		Msg("Watching for changes")

	return nil
}

// watchTree adds dir and all its subdirectories to the watcher.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// processEvents forwards filesystem events to onEvent, debounced.
func (w *Watcher) processEvents(ctx context.Context, rootDir string, onEvent func(Event)) {
	var pending *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// New directories join the watch so edits inside them are seen.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}

			changed := relPath(rootDir, event.Name)
			w.logger.Debug().
				Str("file", changed).
				Str("op", event.Op.String()).
				Msg("File changed")

			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, func() {
				onEvent(Event{Path: changed})
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			onEvent(Event{Err: err})
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
