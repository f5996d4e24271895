package analysis

import (
	"fmt"
	"os"
	"sync"
)

// Buffers overlays unsaved editor content on the filesystem.
type Buffers struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewBuffers() *Buffers {
	return &Buffers{files: make(map[string][]byte)}
}

// Set replaces the overlay for path. A nil content removes it so the file
// is read from disk again.
func (b *Buffers) Set(path string, content *string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if content == nil {
		delete(b.files, path)
		return
	}
	b.files[path] = []byte(*content)
}

// Overlaid reports whether path has unsaved content.
func (b *Buffers) Overlaid(path string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.files[path]
	return ok
}

// Read returns the overlay for path, or the file on disk.
func (b *Buffers) Read(path string) ([]byte, error) {
	b.mu.RLock()
	content, ok := b.files[path]
	b.mu.RUnlock()
	if ok {
		return content, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
