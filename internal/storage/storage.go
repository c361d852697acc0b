// Package storage reads submission file content from object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/maheshrc27/crosspost/internal/apperr"
)

// Store opens stored files by key. Head returns at most n leading bytes, used
// for type sniffing without downloading whole videos.
type Store interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Head(ctx context.Context, key string, n int) ([]byte, error)
}

// MemoryStore keeps file content in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (m *MemoryStore) Put(key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = append([]byte(nil), content...)
}

func (m *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", key, apperr.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *MemoryStore) Head(ctx context.Context, key string, n int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("head %s: %w", key, apperr.ErrNotFound)
	}
	if len(content) > n {
		content = content[:n]
	}
	return append([]byte(nil), content...), nil
}
