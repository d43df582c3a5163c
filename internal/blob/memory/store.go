// Package memory keeps artifacts in-process, for tests and development.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Store holds artifacts in a map and hands back memory:// URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory artifact store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// PutObject keeps a copy of the content and returns its pseudo URI.
func (s *Store) PutObject(_ context.Context, path, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	s.mu.Lock()
	s.data[path] = append([]byte(nil), data...)
	s.mu.Unlock()
	return "memory://" + path, nil
}

// Get returns a stored artifact, for tests.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	return data, ok
}
