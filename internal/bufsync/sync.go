package bufsync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mwiater/codeintel/internal/logging"
	"github.com/mwiater/codeintel/internal/rpc"
	"github.com/mwiater/codeintel/internal/worker"
)

// DefaultExtensions are the C family source and header suffixes pushed to
// the worker.
var DefaultExtensions = []string{".c", ".h", ".cc", ".cpp", ".cxx", ".c++", ".hh", ".hpp", ".hxx", ".m", ".mm"}

// Worker is the part of the worker client the synchronizer uses.
type Worker interface {
	Call(ctx context.Context, method string, params any) (worker.Reply, error)
	State() worker.State
	OnReset(fn func())
}

// Synchronizer pushes drafts to the worker before content-sensitive queries.
// It remembers the last sequence sent per file and forgets everything when
// the worker session is lost.
type Synchronizer struct {
	store *Store
	w     Worker
	exts  map[string]bool

	mu       sync.Mutex
	epoch    uint64
	lastSent map[string]uint64
	fileMu   map[string]*sync.Mutex
}

// New returns a Synchronizer for store. exts defaults to DefaultExtensions.
func New(store *Store, w Worker, exts []string) *Synchronizer {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	s := &Synchronizer{
		store:    store,
		w:        w,
		exts:     make(map[string]bool, len(exts)),
		lastSent: make(map[string]uint64),
		fileMu:   make(map[string]*sync.Mutex),
	}
	for _, ext := range exts {
		s.exts[strings.ToLower(ext)] = true
	}
	w.OnReset(s.Invalidate)
	return s
}

// Store returns the draft store.
func (s *Synchronizer) Store() *Store { return s.store }

// Recognized reports whether path has a source or header extension.
func (s *Synchronizer) Recognized(path string) bool {
	return s.exts[strings.ToLower(filepath.Ext(path))]
}

// Invalidate forgets every sequence sent so the next Sync of each file
// pushes its draft again.
func (s *Synchronizer) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	clear(s.lastSent)
}

// LastSent returns the sequence last pushed for path, or 0.
func (s *Synchronizer) LastSent(path string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent[path]
}

func (s *Synchronizer) lockFile(path string) func() {
	s.mu.Lock()
	m, ok := s.fileMu[path]
	if !ok {
		m = &sync.Mutex{}
		s.fileMu[path] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Sync pushes path's draft if it is newer than what the worker has seen.
func (s *Synchronizer) Sync(ctx context.Context, path string) error {
	if !s.Recognized(path) {
		return nil
	}
	unlock := s.lockFile(path)
	defer unlock()

	draft, ok := s.store.Get(path)
	if !ok {
		return nil
	}
	s.mu.Lock()
	if draft.Seq <= s.lastSent[path] {
		s.mu.Unlock()
		return nil
	}
	epoch := s.epoch
	s.mu.Unlock()

	content := string(draft.Content)
	if _, err := s.w.Call(ctx, rpc.MethodSetBuffer, rpc.SetBufferParams{Path: path, Content: &content}); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}

	s.mu.Lock()
	if s.epoch == epoch && draft.Seq > s.lastSent[path] {
		s.lastSent[path] = draft.Seq
	}
	s.mu.Unlock()
	return nil
}

// SyncAll pushes every stale draft concurrently.
func (s *Synchronizer) SyncAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, path := range s.store.Paths() {
		g.Go(func() error { return s.Sync(gctx, path) })
	}
	return g.Wait()
}

// Saved handles path being written to disk: its draft is dropped and, when a
// worker session exists, the worker is told to read the file again.
func (s *Synchronizer) Saved(ctx context.Context, path string) error {
	unlock := s.lockFile(path)
	defer unlock()

	s.store.Drop(path)
	s.mu.Lock()
	delete(s.lastSent, path)
	s.mu.Unlock()

	if !s.Recognized(path) || s.w.State() != worker.StateRunning {
		return nil
	}
	if _, err := s.w.Call(ctx, rpc.MethodSetBuffer, rpc.SetBufferParams{Path: path}); err != nil {
		logging.LogEvent("clear buffer %s: %v", path, err)
		return fmt.Errorf("clear buffer %s: %w", path, err)
	}
	return nil
}
