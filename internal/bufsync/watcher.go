package bufsync

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mwiater/codeintel/internal/logging"
)

// Watcher turns on-disk writes of tracked files into save events for a
// Synchronizer.
type Watcher struct {
	sync    *Synchronizer
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool

	// OnSaved, if set, runs after each handled save.
	OnSaved func(path string, err error)
}

// NewWatcher creates a watcher feeding s.
func NewWatcher(s *Synchronizer) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		sync:    s,
		watcher: fw,
		files:   make(map[string]bool),
		dirs:    make(map[string]bool),
	}, nil
}

// Add tracks path. Its directory is watched so editors that save by
// renaming over the file are still seen.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[abs] = true
	if w.dirs[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		delete(w.files, abs)
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

func (w *Watcher) tracked(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path]
}

// Run handles events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(event.Name)
			if !w.tracked(path) {
				continue
			}
			err := w.sync.Saved(ctx, path)
			if err != nil {
				logging.LogEvent("save of %s not forwarded: %v", path, err)
			}
			if w.OnSaved != nil {
				w.OnSaved(path, err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.LogEvent("file watcher: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
