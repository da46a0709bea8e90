// Package embedding provides the embedder abstraction used by the indexer
// and a durable cache in front of it.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/graphrag/pkg/ai"

	"golang.org/x/sync/errgroup"
)

// Embedder turns text into a vector. ModelID identifies the model and is
// used as cache namespace, so two embedders with the same id must produce
// the same vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

type aiEmbedder struct {
	client ai.GraphAIClient
}

// FromAIClient adapts the embedding endpoint of a model client.
func FromAIClient(client ai.GraphAIClient) Embedder {
	return aiEmbedder{client: client}
}

func (e aiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.GenerateEmbedding(ctx, []byte(text))
}

func (e aiEmbedder) ModelID() string {
	return e.client.EmbeddingModel()
}

type namedEmbedder struct {
	Embedder
	id string
}

// WithModelID overrides the model id of e, e.g. to include the provider in
// the cache namespace.
func WithModelID(e Embedder, id string) Embedder {
	if id == "" {
		return e
	}
	return namedEmbedder{Embedder: e, id: id}
}

func (e namedEmbedder) ModelID() string {
	return e.id
}

// EmbedAll embeds texts with at most parallel concurrent calls and returns
// the vectors in input order.
func EmbedAll(ctx context.Context, e Embedder, texts []string, parallel int) ([][]float32, error) {
	if e == nil {
		return nil, errors.New("embedder is nil")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if parallel <= 0 {
		parallel = 8
	}

	out := make([][]float32, len(texts))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(parallel)
	for i, text := range texts {
		eg.Go(func() error {
			vec, err := e.Embed(ectx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
