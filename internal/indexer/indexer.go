// Package indexer runs the indexing pipeline: load, chunk, extract, merge,
// summarize, detect communities, write reports, embed and persist.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphrag/internal/timing"
	"github.com/OFFIS-RIT/graphrag/pkg/ai"
	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/community"
	"github.com/OFFIS-RIT/graphrag/pkg/embedding"
	"github.com/OFFIS-RIT/graphrag/pkg/graph"
	"github.com/OFFIS-RIT/graphrag/pkg/leaselock"
	"github.com/OFFIS-RIT/graphrag/pkg/loader"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/query"
	"github.com/OFFIS-RIT/graphrag/pkg/store"
	"github.com/OFFIS-RIT/graphrag/pkg/vectorstore"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrNoDocuments = errors.New("no documents to index")

// Locker serializes runs per graph.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// VectorFactory returns the vector store of one collection of a graph.
type VectorFactory func(graphID, collection string) vectorstore.Store

// CollectionNames names the three vector collections a run fills.
type CollectionNames struct {
	Entities      string
	Relationships string
	TextUnits     string
}

// Params wires an Indexer. Graph, Summarizer, Reports, Embedder, Vectors
// and Tables are required.
type Params struct {
	AI          ai.GraphAIClient
	Graph       *graph.GraphClient
	Summarizer  *graph.Summarizer
	Detector    community.Detector
	Reports     *community.Generator
	Embedder    embedding.Embedder
	Vectors     VectorFactory
	Collections CollectionNames
	Tables      store.TableStore
	Locker      Locker
	LockOptions leaselock.Options

	Parallel        int
	// MaxFailureRatio aborts a run when a larger share of the text units
	// fails extraction. 0 tolerates any number of failures.
	MaxFailureRatio float64
}

type Indexer struct {
	ai          ai.GraphAIClient
	graph       *graph.GraphClient
	summarizer  *graph.Summarizer
	detector    community.Detector
	reports     *community.Generator
	embedder    embedding.Embedder
	vectors     VectorFactory
	collections CollectionNames
	tables      store.TableStore
	locker      Locker
	lockOpts    leaselock.Options

	parallel        int
	maxFailureRatio float64
}

func New(p Params) (*Indexer, error) {
	switch {
	case p.AI == nil:
		return nil, errors.New("indexer: ai client is required")
	case p.Graph == nil, p.Summarizer == nil, p.Reports == nil:
		return nil, errors.New("indexer: graph client, summarizer and report generator are required")
	case p.Embedder == nil || p.Vectors == nil:
		return nil, errors.New("indexer: embedder and vector stores are required")
	case p.Tables == nil:
		return nil, errors.New("indexer: table store is required")
	}
	if p.Parallel <= 0 {
		p.Parallel = 8
	}
	if p.Collections == (CollectionNames{}) {
		p.Collections = CollectionNames{Entities: "entities", Relationships: "relationships", TextUnits: "text_units"}
	}

	return &Indexer{
		ai:              p.AI,
		graph:           p.Graph,
		summarizer:      p.Summarizer,
		detector:        p.Detector,
		reports:         p.Reports,
		embedder:        p.Embedder,
		vectors:         p.Vectors,
		collections:     p.Collections,
		tables:          p.Tables,
		locker:          p.Locker,
		lockOpts:        p.LockOptions,
		parallel:        p.Parallel,
		maxFailureRatio: p.MaxFailureRatio,
	}, nil
}

// RunResult summarizes one run. Failures lists every item a stage gave up
// on; the run itself succeeded.
type RunResult struct {
	RunID           string
	GraphID         string
	Documents       int
	TextUnits       int
	Entities        int
	Relationships   int
	Communities     int
	CommunityLevels int
	Reports         int
	Seed            int64
	Tables          store.Tables
	Failures        *common.FailureReport
	Stages          []timing.Stage
	Duration        time.Duration
	Metrics         ai.ModelMetrics
}

// Run indexes refs into graphID. With a Locker only one run per graph is
// active at a time; a busy graph fails with leaselock.ErrBusy unless the
// lock options wait.
func (ix *Indexer) Run(ctx context.Context, graphID string, refs []loader.DocumentRef) (*RunResult, error) {
	if graphID == "" {
		return nil, errors.New("graph id is empty")
	}
	if ix.locker == nil {
		return ix.run(ctx, graphID, refs)
	}

	var res *RunResult
	err := ix.locker.WithLease(ctx, leaselock.GraphKey(graphID), ix.lockOpts, func(ctx context.Context) error {
		var err error
		res, err = ix.run(ctx, graphID, refs)
		return err
	})
	return res, err
}

func (ix *Indexer) run(ctx context.Context, graphID string, refs []loader.DocumentRef) (*RunResult, error) {
	runID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	stages := timing.NewStages()
	failures := &common.FailureReport{}
	res := &RunResult{RunID: runID, GraphID: graphID, Failures: failures}
	ix.ai.ResetMetrics()
	logger.Info("[Indexer] Run started", "run_id", runID, "graph_id", graphID, "documents", len(refs))

	stop := stages.Track("load")
	docs, err := loader.LoadAll(ctx, refs, ix.parallel)
	stop()
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	res.Documents = len(docs)

	stop = stages.Track("extract")
	build, err := ix.graph.BuildGraph(ctx, graphID, docs, ix.ai, ix.maxFailureRatio)
	stop()
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	failures.Merge(build.Failures)

	stop = stages.Track("summarize")
	sumFailures, err := ix.summarizer.Run(ctx, build.Graph)
	stop()
	failures.Merge(sumFailures)
	if err != nil {
		return nil, fmt.Errorf("summarize descriptions: %w", err)
	}

	snap := build.Graph.Snapshot()

	stop = stages.Track("communities")
	detected := ix.detector.Detect(snap)
	stop()

	stop = stages.Track("reports")
	reports, repFailures, err := ix.reports.GenerateAll(ctx, detected.Communities, snap)
	stop()
	failures.Merge(repFailures)
	if err != nil {
		return nil, fmt.Errorf("generate community reports: %w", err)
	}

	stop = stages.Track("embeddings")
	err = ix.embed(ctx, graphID, snap, build.TextUnits)
	stop()
	if err != nil {
		return nil, err
	}

	tables := store.Tables{
		TextUnits:     build.TextUnits,
		Entities:      snap.Entities,
		Relationships: snap.Relationships,
		Communities:   detected.Communities,
		Reports:       reports,
	}
	stop = stages.Track("persist")
	err = store.SaveTables(ctx, ix.tables, graphID, tables)
	stop()
	if err != nil {
		return nil, fmt.Errorf("persist tables: %w", err)
	}

	res.TextUnits = len(build.TextUnits)
	res.Entities = len(snap.Entities)
	res.Relationships = len(snap.Relationships)
	res.Communities = len(detected.Communities)
	res.CommunityLevels = detected.Levels
	res.Reports = len(reports)
	res.Seed = detected.Seed
	res.Tables = tables
	res.Stages = stages.All()
	res.Duration = stages.Total()
	res.Metrics = ix.ai.GetMetrics()

	logger.Info("[Indexer] Run finished",
		"run_id", runID,
		"graph_id", graphID,
		"entities", res.Entities,
		"relationships", res.Relationships,
		"communities", res.Communities,
		"reports", res.Reports,
		"failed_items", failures.Len(),
		"duration", timing.Format(res.Duration),
	)
	if failures.Len() > 0 {
		logger.Warn("[Indexer] Items failed", "summary", failures.Summary())
	}
	return res, nil
}

// embed fills the entity, relationship and text unit collections of the
// graph through the cached embedder.
func (ix *Indexer) embed(ctx context.Context, graphID string, snap common.Snapshot, units []common.TextUnit) error {
	entityDocs := make([]vectorstore.Document, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		entityDocs = append(entityDocs, EntityDocument(e))
	}

	relDocs := make([]vectorstore.Document, 0, len(snap.Relationships))
	for _, r := range snap.Relationships {
		if r.Description() == "" {
			continue
		}
		relDocs = append(relDocs, vectorstore.Document{
			ID:   r.ID,
			Text: r.Description(),
			Metadata: map[string]string{
				"relationship_id": r.ID,
				"source_id":       r.SourceID,
				"target_id":       r.TargetID,
			},
		})
	}

	unitDocs := make([]vectorstore.Document, 0, len(units))
	for _, u := range units {
		unitDocs = append(unitDocs, vectorstore.Document{
			ID:   u.ID,
			Text: u.Text,
			Metadata: map[string]string{
				"text_unit_id": u.ID,
				"document_id":  u.DocumentID,
			},
		})
	}

	sets := []struct {
		name string
		docs []vectorstore.Document
	}{
		{ix.collections.Entities, entityDocs},
		{ix.collections.Relationships, relDocs},
		{ix.collections.TextUnits, unitDocs},
	}
	for _, set := range sets {
		coll := vectorstore.NewCollection(set.name, ix.vectors(graphID, set.name), ix.embedder, ix.parallel)
		if err := coll.Add(ctx, set.docs); err != nil {
			return fmt.Errorf("populate vector store: %w", err)
		}
		logger.Debug("[Indexer] Collection populated", "collection", set.name, "documents", len(set.docs))
	}
	if c, ok := ix.embedder.(*embedding.Cache); ok {
		stats := c.Stats()
		logger.Info("[Indexer] Embeddings ready", "hits", stats.Hits, "misses", stats.Misses, "computed", stats.Computed)
	}
	return nil
}

// EntityDocument is the vector store record of an entity: title and
// description are embedded, the id is kept under query.EntityIDKey.
func EntityDocument(e common.Entity) vectorstore.Document {
	text := e.Title
	if d := e.Description(); d != "" {
		text += ":" + d
	}
	return vectorstore.Document{
		ID:   e.ID,
		Text: text,
		Metadata: map[string]string{
			query.EntityIDKey: e.ID,
			"title":           e.Title,
			"type":            e.Type,
		},
	}
}

// Selector returns an entity selector over the entity collection of
// graphID.
func (ix *Indexer) Selector(graphID string, topK int) *query.EntitiesSelector {
	coll := vectorstore.NewCollection(ix.collections.Entities, ix.vectors(graphID, ix.collections.Entities), ix.embedder, ix.parallel)
	return query.NewEntitiesSelector(coll, topK)
}

// SearchEntities returns the topK entities of graphID most similar to q.
// An empty entity collection is rebuilt from the stored entity table first,
// which is the case for in-memory vectors in a fresh process.
func (ix *Indexer) SearchEntities(ctx context.Context, graphID, q string, topK int) ([]query.SelectedEntity, error) {
	entities, err := ix.tables.LoadEntities(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}

	coll := vectorstore.NewCollection(ix.collections.Entities, ix.vectors(graphID, ix.collections.Entities), ix.embedder, ix.parallel)
	n, err := coll.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		docs := make([]vectorstore.Document, len(entities))
		for i, e := range entities {
			docs[i] = EntityDocument(e)
		}
		if err := coll.Add(ctx, docs); err != nil {
			return nil, fmt.Errorf("rebuild entity vectors: %w", err)
		}
		logger.Info("[Indexer] Entity vectors rebuilt", "graph_id", graphID, "entities", len(docs))
	}
	trace := query.NewQueryTrace()
	selected, err := query.NewEntitiesSelector(coll, topK, query.WithTracer(trace)).Select(ctx, q, entities)
	if err != nil {
		return nil, err
	}
	if snap := trace.Snapshot(); len(snap.DroppedEntityIDs) > 0 {
		// Vectors without a matching entity row are left over from an
		// older run of the graph.
		logger.Debug("[Indexer] Dropped stale entity vectors", "graph_id", graphID, "ids", snap.DroppedEntityIDs)
	}
	return selected, nil
}

// DeleteGraph removes the persisted tables of graphID under the same lease
// as Run, so a delete never interleaves with an indexing run.
func (ix *Indexer) DeleteGraph(ctx context.Context, graphID string) error {
	if graphID == "" {
		return errors.New("graph id is empty")
	}
	del := func(ctx context.Context) error {
		if err := ix.tables.DeleteGraph(ctx, graphID); err != nil {
			return fmt.Errorf("delete graph %s: %w", graphID, err)
		}
		logger.Info("[Indexer] Graph deleted", "graph_id", graphID)
		return nil
	}
	if ix.locker == nil {
		return del(ctx)
	}
	return ix.locker.WithLease(ctx, leaselock.GraphKey(graphID), ix.lockOpts, del)
}

// Tables returns the table store runs persist to.
func (ix *Indexer) Tables() store.TableStore {
	return ix.tables
}
