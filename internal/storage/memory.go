package storage

import (
	"context"
	"sync"
)

// MemoryKV is an in-process KV used for development and tests.
type MemoryKV struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		docs: make(map[string]map[string][]byte),
	}
}

func (s *MemoryKV) Get(ctx context.Context, parent, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if value, exists := s.docs[parent][key]; exists {
		return cloneBytes(value), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryKV) Set(ctx context.Context, parent, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	children, exists := s.docs[parent]
	if !exists {
		children = make(map[string][]byte)
		s.docs[parent] = children
	}
	children[key] = cloneBytes(value)
	return nil
}

func (s *MemoryKV) Delete(ctx context.Context, parent, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	children, exists := s.docs[parent]
	if !exists {
		return ErrNotFound
	}
	if _, exists := children[key]; !exists {
		return ErrNotFound
	}
	delete(children, key)
	if len(children) == 0 {
		delete(s.docs, parent)
	}
	return nil
}

func (s *MemoryKV) List(ctx context.Context, parent string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte, len(s.docs[parent]))
	for key, value := range s.docs[parent] {
		out[key] = cloneBytes(value)
	}
	return out, nil
}

func (s *MemoryKV) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryKV) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
