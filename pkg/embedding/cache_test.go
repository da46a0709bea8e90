package embedding

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingEmbedder struct {
	model string
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), float32(len(e.model)), 0.5}, nil
}

func (e *countingEmbedder) ModelID() string {
	return e.model
}

func TestCacheComputesOnce(t *testing.T) {
	inner := &countingEmbedder{model: "model-x"}
	c := NewCache(nil, inner)

	first, err := c.GetOrCompute(context.Background(), "model-x", "hello")
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	second, err := c.GetOrCompute(context.Background(), "model-x", "hello")
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("vectors differ: %v vs %v", first, second)
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("embed calls = %d, want 1", inner.calls.Load())
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 || s.Computed != 1 {
		t.Fatalf("Stats() = %+v", s)
	}
}

func TestCacheConcurrentMissesShareComputation(t *testing.T) {
	inner := &countingEmbedder{model: "m", delay: 20 * time.Millisecond}
	c := NewCache(NewMemoryStore(), inner)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Embed(context.Background(), "same text"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Embed() error = %v", err)
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("embed calls = %d, want 1", inner.calls.Load())
	}
}

// gatedEmbedder blocks until release is closed or ctx is done.
type gatedEmbedder struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (e *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.calls.Add(1) == 1 {
		close(e.started)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.release:
		return []float32{float32(len(text))}, nil
	}
}

func (e *gatedEmbedder) ModelID() string {
	return "m"
}

func TestCacheCanceledCallerDoesNotFailOthers(t *testing.T) {
	inner := &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCache(NewMemoryStore(), inner)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(firstCtx, "m", "hello")
		firstErr <- err
	}()
	<-inner.started

	type result struct {
		vec []float32
		err error
	}
	second := make(chan result, 1)
	go func() {
		vec, err := c.GetOrCompute(context.Background(), "m", "hello")
		second <- result{vec, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller error = %v, want context.Canceled", err)
	}
	close(inner.release)

	res := <-second
	if res.err != nil {
		t.Fatalf("second caller error = %v", res.err)
	}
	if !reflect.DeepEqual(res.vec, []float32{5}) {
		t.Fatalf("second caller vector = %v", res.vec)
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("embed calls = %d, want 1", inner.calls.Load())
	}
}

func TestCacheReadsDurableStore(t *testing.T) {
	store := NewMemoryStore()
	first := &countingEmbedder{model: "m"}
	if _, err := NewCache(store, first).Embed(context.Background(), "persist me"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store entries = %d, want 1", store.Len())
	}

	second := &countingEmbedder{model: "m"}
	if _, err := NewCache(store, second).Embed(context.Background(), "persist me"); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if second.calls.Load() != 0 {
		t.Fatalf("embed calls after restart = %d, want 0", second.calls.Load())
	}
}

func TestCacheNamespacesByModel(t *testing.T) {
	a := &countingEmbedder{model: "a"}
	b := &countingEmbedder{model: "bb"}
	c := NewCache(nil, a, b)

	va, _ := c.GetOrCompute(context.Background(), "a", "text")
	vb, _ := c.GetOrCompute(context.Background(), "bb", "text")
	if reflect.DeepEqual(va, vb) {
		t.Fatalf("expected different vectors per model, got %v", va)
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Fatalf("calls a=%d b=%d", a.calls.Load(), b.calls.Load())
	}
	if c.ModelID() != "a" {
		t.Fatalf("ModelID() = %s, want a", c.ModelID())
	}

	if _, err := c.GetOrCompute(context.Background(), "missing", "text"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("GetOrCompute() error = %v, want ErrUnknownModel", err)
	}
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	inner := &countingEmbedder{model: "m", err: errors.New("unavailable")}
	store := NewMemoryStore()
	c := NewCache(store, inner)

	for i := 0; i < 2; i++ {
		if _, err := c.Embed(context.Background(), "x"); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls.Load() != 2 {
		t.Fatalf("embed calls = %d, want 2", inner.calls.Load())
	}
	if store.Len() != 0 {
		t.Fatalf("store entries = %d, want 0", store.Len())
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewCache(nil, &countingEmbedder{model: "m"})
	v, _ := c.Embed(context.Background(), "abc")
	v[0] = 999

	again, _ := c.Embed(context.Background(), "abc")
	if again[0] != 3 {
		t.Fatalf("cached vector was mutated: %v", again)
	}
}

func TestEmbedAllKeepsOrder(t *testing.T) {
	c := NewCache(nil, &countingEmbedder{model: "m"})
	out, err := EmbedAll(context.Background(), c, []string{"a", "abc", "ab"}, 2)
	if err != nil {
		t.Fatalf("EmbedAll() error = %v", err)
	}
	for i, want := range []float32{1, 3, 2} {
		if out[i][0] != want {
			t.Fatalf("out[%d] = %v, want first value %v", i, out[i], want)
		}
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("DecodeVector() error = %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("DecodeVector() = %v, want %v", out, in)
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated vector")
	}
	if Key("m", "a") == Key("m", "b") || Key("m1", "a") == Key("m2", "a") {
		t.Fatal("expected distinct keys")
	}
}
