package graph

import (
	"fmt"

	"github.com/OFFIS-RIT/graphrag/pkg/common"
)

// MergeStats counts what a merge changed.
type MergeStats struct {
	NewEntities          int
	MergedEntities       int
	NewRelationships     int
	MergedRelationships  int
	DroppedRelationships int
}

func (s *MergeStats) add(o MergeStats) {
	s.NewEntities += o.NewEntities
	s.MergedEntities += o.MergedEntities
	s.NewRelationships += o.NewRelationships
	s.MergedRelationships += o.MergedRelationships
	s.DroppedRelationships += o.DroppedRelationships
}

// Merge folds the extractions into g in the given order. Within a chunk,
// entities are merged before relationships. Relationship endpoints are
// resolved by title against the chunk's own entities first, then against
// the whole graph; unresolved endpoints and self loops are dropped.
//
// Merging [A, B] and then [C] yields the same graph as merging [A, B, C].
func Merge(g *common.Graph, chunks ...Extraction) (MergeStats, error) {
	var stats MergeStats
	for _, chunk := range chunks {
		s, err := mergeChunk(g, chunk)
		if err != nil {
			return stats, fmt.Errorf("merge %s: %w", chunk.TextUnitID, err)
		}
		stats.add(s)
	}
	return stats, nil
}

func mergeChunk(g *common.Graph, chunk Extraction) (MergeStats, error) {
	var stats MergeStats
	local := make(map[string]string, len(chunk.Entities))

	for _, e := range chunk.Entities {
		id := common.EntityID(e.Title, e.Type)
		rec := common.Entity{
			ID:          id,
			Title:       common.NormalizeKey(e.Title),
			Type:        common.NormalizeKey(e.Type),
			TextUnitIDs: unitIDs(chunk.TextUnitID),
		}
		if e.Description != "" {
			rec.DescriptionList = []string{e.Description}
		}

		created, err := g.UpsertEntity(rec)
		if err != nil {
			return stats, err
		}
		if created {
			stats.NewEntities++
		} else {
			stats.MergedEntities++
		}
		key := common.NormalizeKey(e.Title)
		if _, ok := local[key]; !ok {
			local[key] = id
		}
	}

	resolve := func(title string) (string, bool) {
		if id, ok := local[common.NormalizeKey(title)]; ok {
			return id, true
		}
		return g.EntityIDByTitle(title)
	}

	for _, r := range chunk.Relationships {
		src, okS := resolve(r.Source)
		dst, okT := resolve(r.Target)
		if !okS || !okT || src == dst {
			stats.DroppedRelationships++
			continue
		}

		weight := r.Weight
		if weight <= 0 {
			weight = 1
		}
		rec := common.Relationship{
			ID:          common.RelationshipID(src, dst),
			SourceID:    src,
			TargetID:    dst,
			TextUnitIDs: unitIDs(chunk.TextUnitID),
			Weight:      weight,
		}
		if r.Description != "" {
			rec.DescriptionList = []string{r.Description}
		}

		created, err := g.UpsertRelationship(rec)
		if err != nil {
			return stats, err
		}
		if created {
			stats.NewRelationships++
		} else {
			stats.MergedRelationships++
		}
	}

	return stats, nil
}

func unitIDs(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
