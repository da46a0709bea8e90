package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// computeTimeout bounds a shared computation once it no longer follows the
// context of the caller that started it.
const computeTimeout = 2 * time.Minute

// ErrUnknownModel is returned for a model id no embedder is registered for.
var ErrUnknownModel = errors.New("no embedder for model")

// Store persists cached vectors. Put must be idempotent: the vector of a key
// never changes, so a second write of the same key may be dropped.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]float32, bool, error)
	Put(ctx context.Context, namespace, key string, vec []float32) error
	Close() error
}

// CacheStats counts lookups since the cache was created.
type CacheStats struct {
	Hits     int64
	Misses   int64
	Computed int64
}

// Cache is a read-through cache in front of one or more embedders. Vectors
// are kept in memory and written to the durable store before they are
// returned. Concurrent misses of the same key share a single computation.
type Cache struct {
	store     Store
	embedders map[string]Embedder
	def       string

	mu  sync.RWMutex
	mem map[string][]float32

	group singleflight.Group

	hits, misses, computed atomic.Int64
}

// NewCache returns a cache over store. The first embedder is used by Embed.
// A nil store keeps vectors in memory only.
func NewCache(store Store, embedders ...Embedder) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{
		store:     store,
		embedders: make(map[string]Embedder, len(embedders)),
		mem:       make(map[string][]float32),
	}
	for _, e := range embedders {
		if e == nil {
			continue
		}
		if c.def == "" {
			c.def = e.ModelID()
		}
		c.embedders[e.ModelID()] = e
	}
	return c
}

// Embed implements Embedder with the default model.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.GetOrCompute(ctx, c.def, text)
}

// ModelID implements Embedder.
func (c *Cache) ModelID() string {
	return c.def
}

// GetOrCompute returns the vector of text under modelID, computing and
// storing it on a miss. A canceled caller returns early; the shared
// computation keeps running for the other callers of the same key.
func (c *Cache) GetOrCompute(ctx context.Context, modelID, text string) ([]float32, error) {
	key := Key(modelID, text)
	if vec, ok := c.fromMemory(key); ok {
		c.hits.Add(1)
		return vec, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Callers joining this key wait on the same result, so the work
		// must outlive the cancellation of the caller that started it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()

		if vec, ok := c.fromMemory(key); ok {
			c.hits.Add(1)
			return vec, nil
		}

		vec, ok, err := c.store.Get(ctx, modelID, key)
		if err != nil {
			logger.Warn("[Embedding] Cache lookup failed", "model", modelID, "err", err)
		}
		if ok {
			c.hits.Add(1)
			c.remember(key, vec)
			return vec, nil
		}

		c.misses.Add(1)
		e, ok := c.embedders[modelID]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownModel, modelID)
		}
		vec, err = e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.computed.Add(1)

		if err := c.store.Put(ctx, modelID, key, vec); err != nil {
			return nil, fmt.Errorf("store embedding: %w", err)
		}
		c.remember(key, vec)
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]float32)), nil
	}
}

// Stats returns the lookup counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Computed: c.computed.Load(),
	}
}

// Close closes the durable store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) fromMemory(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.mem[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(vec), true
}

func (c *Cache) remember(key string, vec []float32) {
	c.mu.Lock()
	c.mem[key] = slices.Clone(vec)
	c.mu.Unlock()
}
