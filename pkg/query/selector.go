// Package query selects graph context for local search.
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/vectorstore"
)

// EntityIDKey is the metadata key entity documents carry their id under.
const EntityIDKey = "entity_id"

// Searcher is the similarity search side of a vector collection.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]vectorstore.ScoredDocument, error)
}

// SelectedEntity is an entity matched by a query together with its
// relevance score.
type SelectedEntity struct {
	common.Entity
	Score float64 `json:"score"`
}

// EntitiesSelector picks the entities most similar to a query.
type EntitiesSelector struct {
	store Searcher
	topK  int
	trace Tracer
}

type SelectorOption func(*EntitiesSelector)

func WithTracer(trace Tracer) SelectorOption {
	return func(s *EntitiesSelector) {
		s.trace = trace
	}
}

func NewEntitiesSelector(store Searcher, topK int, opts ...SelectorOption) *EntitiesSelector {
	s := &EntitiesSelector{store: store, topK: topK}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Select searches the topK entity documents for query and maps them back to
// entities. Hits without a known entity id are dropped, duplicates keep
// their best score. The result is sorted by descending score and is stable
// for equal scores.
func (s *EntitiesSelector) Select(ctx context.Context, query string, entities []common.Entity) ([]SelectedEntity, error) {
	hits, err := s.store.SimilaritySearch(ctx, query, s.topK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	byID := make(map[string]common.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	index := make(map[string]int, len(hits))
	var (
		out      []SelectedEntity
		searched []string
		dropped  []string
	)
	for _, h := range hits {
		id := h.Metadata[EntityIDKey]
		searched = append(searched, id)
		e, ok := byID[id]
		if !ok {
			dropped = append(dropped, id)
			continue
		}
		if i, seen := index[id]; seen {
			if h.Score > out[i].Score {
				out[i].Score = h.Score
			}
			continue
		}
		index[id] = len(out)
		out = append(out, SelectedEntity{Entity: e, Score: h.Score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	selected := make([]string, len(out))
	for i, e := range out {
		selected[i] = e.ID
	}
	record(s.trace, TraceEventSearchedEntityIDs, query, searched)
	record(s.trace, TraceEventSelectedEntityIDs, query, selected)
	record(s.trace, TraceEventDroppedEntityIDs, query, dropped)

	logger.Debug("[Query] Entities selected", "query", query, "hits", len(hits), "selected", len(out), "dropped", len(dropped))
	return out, nil
}
