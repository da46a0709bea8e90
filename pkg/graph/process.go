package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/graphrag/internal/util"
	"github.com/OFFIS-RIT/graphrag/pkg/ai"
	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const stageExtract = "extract"

// ErrTooManyFailures is returned when more text units fail extraction than
// the configured ratio allows, which usually means the model is down.
var ErrTooManyFailures = errors.New("too many extraction failures")

// BuildResult is the outcome of BuildGraph.
type BuildResult struct {
	Graph     *common.Graph
	TextUnits []common.TextUnit
	Stats     MergeStats
	Failures  *common.FailureReport
}

// ExtractUnits runs extraction for every unit in parallel. The returned
// slice holds the successful extractions in unit order, independent of the
// order in which calls complete. Units that fail after all retries are
// reported and skipped.
func (g *GraphClient) ExtractUnits(
	ctx context.Context,
	units []common.TextUnit,
	docTitles map[string]string,
	aiClient ai.GraphAIClient,
) ([]Extraction, *common.FailureReport, error) {
	results := make([]*Extraction, len(units))
	report := &common.FailureReport{}

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelAiRequests)
	for i, unit := range units {
		eg.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}
			x, err := util.RetryWithBackoff(gCtx, g.maxRetries, g.retryDelay, func(ctx context.Context) (Extraction, error) {
				return extractFromUnit(ctx, unit, docTitles[unit.DocumentID], g.entityTypes, g.extractPrompt, aiClient)
			})
			if err != nil {
				if ai.IsCanceled(err) && gCtx.Err() != nil {
					return err
				}
				logger.Warn("[Graph] Extraction failed", "text_unit_id", unit.ID, "err", err)
				report.Add(common.ItemFailure{Stage: stageExtract, Kind: common.KindTextUnit, ID: unit.ID, Err: err})
				return nil
			}
			results[i] = &x
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, report, err
	}

	out := make([]Extraction, 0, len(units))
	for _, x := range results {
		if x != nil {
			out = append(out, *x)
		}
	}
	return out, report, nil
}

// BuildGraph chunks the documents, extracts entities and relationships,
// merges them in chunk order and freezes the graph.
//
// When more than maxFailureRatio of the units fail extraction the build is
// aborted; maxFailureRatio <= 0 tolerates any number of failures.
func (g *GraphClient) BuildGraph(
	ctx context.Context,
	graphID string,
	docs []common.Document,
	aiClient ai.GraphAIClient,
	maxFailureRatio float64,
) (*BuildResult, error) {
	units := ChunkDocuments(docs, g.tokens, g.chunk)
	titles := make(map[string]string, len(docs))
	for _, d := range docs {
		titles[d.ID] = d.Title
	}
	logger.Info("[Graph] Processing", "graph_id", graphID, "documents", len(docs), "text_units", len(units))

	extractions, report, err := g.ExtractUnits(ctx, units, titles, aiClient)
	if err != nil {
		return nil, fmt.Errorf("failed to extract entities and relationships: %w", err)
	}
	if failed := report.Len(); failed > 0 && maxFailureRatio > 0 &&
		float64(failed)/float64(len(units)) > maxFailureRatio {
		return nil, fmt.Errorf("%w: %d of %d text units failed, first error: %w",
			ErrTooManyFailures, failed, len(units), report.Failures()[0].Err)
	}

	graph := common.NewGraph(graphID)
	stats, err := Merge(graph, extractions...)
	if err != nil {
		return nil, err
	}
	graph.Freeze()

	logger.Info("[Graph] Graph merged",
		"entities", graph.EntityCount(),
		"relationships", graph.RelationshipCount(),
		"dropped_relationships", stats.DroppedRelationships,
		"failed_units", report.Len(),
	)

	return &BuildResult{
		Graph:     graph,
		TextUnits: units,
		Stats:     stats,
		Failures:  report,
	}, nil
}
