package vectorstore

import (
	"context"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"
)

type memoryEntry struct {
	doc    Document
	vector []float32
	norm   float64
	seq    int
}

// MemoryStore is an exhaustive cosine similarity index.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	seq     int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Upsert(ctx context.Context, id string, vector []float32, doc Document) error {
	doc.ID = id
	doc.Metadata = maps.Clone(doc.Metadata)

	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	if old, ok := s.entries[id]; ok {
		seq = old.seq
	} else {
		s.seq++
	}
	s.entries[id] = &memoryEntry{doc: doc, vector: slices.Clone(vector), norm: norm(vector), seq: seq}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error) {
	if k <= 0 {
		return nil, nil
	}
	qn := norm(vector)

	s.mu.RLock()
	hits := make([]ScoredDocument, 0, len(s.entries))
	seqs := make(map[string]int, len(s.entries))
	for id, e := range s.entries {
		doc := e.doc
		doc.Metadata = maps.Clone(doc.Metadata)
		hits = append(hits, ScoredDocument{Document: doc, Score: cosine(vector, qn, e.vector, e.norm)})
		seqs[id] = e.seq
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return seqs[hits[i].ID] < seqs[hits[j].ID]
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	n := min(len(a), len(b))
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
