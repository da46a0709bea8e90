package embedding

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps vectors for the lifetime of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]float32)}
}

func (s *MemoryStore) Get(ctx context.Context, namespace, key string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[namespace+"/"+key]
	return slices.Clone(v), ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, namespace, key string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[namespace+"/"+key]; !ok {
		s.data[namespace+"/"+key] = slices.Clone(vec)
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) Close() error {
	return nil
}
