// Package bufsync keeps the worker's view of unsaved editor buffers current.
package bufsync

import (
	"sort"
	"sync"
)

// Draft is the unsaved content of one file. Seq increases with every edit.
type Draft struct {
	Path    string
	Content []byte
	Seq     uint64
}

// Store holds unsaved buffers keyed by absolute path.
type Store struct {
	mu     sync.Mutex
	seq    uint64
	drafts map[string]Draft
}

func NewStore() *Store {
	return &Store{drafts: make(map[string]Draft)}
}

// Update records new unsaved content for path and returns its edit sequence.
func (s *Store) Update(path string, content []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.drafts[path] = Draft{Path: path, Content: append([]byte(nil), content...), Seq: s.seq}
	return s.seq
}

// Get returns the draft for path.
func (s *Store) Get(path string) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[path]
	return d, ok
}

// Drop forgets the draft for path.
func (s *Store) Drop(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, path)
}

// Paths lists the files with drafts, sorted.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.drafts))
	for p := range s.drafts {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
