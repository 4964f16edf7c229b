package persist

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory for the lifetime of the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string][]Record)}
}

func (s *MemoryStore) Init(_ context.Context) error { return nil }

func (s *MemoryStore) Append(_ context.Context, name string, records ...Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[name] = append(s.collections[name], records...)
	return nil
}

func (s *MemoryStore) Records(_ context.Context, name string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]Record(nil), s.collections[name]...), nil
}

func (s *MemoryStore) Close() error { return nil }
