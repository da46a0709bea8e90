// Package vectorstore stores embedded documents and answers similarity
// queries over them.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/graphrag/pkg/embedding"
)

// Document is one stored record. Metadata must round-trip unchanged;
// entity documents carry their id under "entity_id".
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// ScoredDocument is a search hit. Higher scores are more similar.
type ScoredDocument struct {
	Document
	Score float64 `json:"score"`
}

// Store is a vector index for one collection.
//
// Search returns at most k documents sorted by descending score.
type Store interface {
	Upsert(ctx context.Context, id string, vector []float32, doc Document) error
	Search(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error)
	Count(ctx context.Context) (int, error)
}

// Collection couples a Store with the embedder its vectors come from.
type Collection struct {
	Name     string
	store    Store
	embedder embedding.Embedder
	parallel int
}

// NewCollection returns a collection. parallel bounds concurrent embedding
// calls during Add.
func NewCollection(name string, store Store, embedder embedding.Embedder, parallel int) *Collection {
	return &Collection{Name: name, store: store, embedder: embedder, parallel: parallel}
}

// Add embeds and upserts docs.
func (c *Collection) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := embedding.EmbedAll(ctx, c.embedder, texts, c.parallel)
	if err != nil {
		return fmt.Errorf("embed %s documents: %w", c.Name, err)
	}
	for i, d := range docs {
		if err := c.store.Upsert(ctx, d.ID, vectors[i], d); err != nil {
			return fmt.Errorf("upsert %s document %s: %w", c.Name, d.ID, err)
		}
	}
	return nil
}

// SimilaritySearch embeds query and returns the k most similar documents
// with their relevance scores, best first.
func (c *Collection) SimilaritySearch(ctx context.Context, query string, k int) ([]ScoredDocument, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return c.store.Search(ctx, vec, k)
}

// Count returns the number of stored documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx)
}
