package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphrag/internal/config"
	"github.com/OFFIS-RIT/graphrag/internal/indexer"
	"github.com/OFFIS-RIT/graphrag/internal/timing"
	"github.com/OFFIS-RIT/graphrag/pkg/leaselock"
	"github.com/OFFIS-RIT/graphrag/pkg/loader"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
)

// Runner indexes documents into a graph.
type Runner interface {
	Run(ctx context.Context, graphID string, refs []loader.DocumentRef) (*indexer.RunResult, error)
}

// RefsFunc lists the documents of an input description.
type RefsFunc func(ctx context.Context, in config.InputConfig) ([]loader.DocumentRef, error)

// Processor handles index jobs.
type Processor struct {
	Runner Runner
	Refs   RefsFunc
}

// Handle implements HandleFunc for the index queue.
func (p *Processor) Handle(ctx context.Context, queue string, body []byte) error {
	if queue != IndexQueue {
		return fmt.Errorf("%w: unknown queue %s", ErrInvalidMessage, queue)
	}
	msg, err := DecodeIndexMessage(body)
	if err != nil {
		return err
	}
	return p.ProcessIndexMessage(ctx, msg)
}

// ProcessIndexMessage resolves the inputs of msg and runs the indexer.
// Empty inputs are reported as invalid, a graph that is being indexed by
// another worker is retried later.
func (p *Processor) ProcessIndexMessage(ctx context.Context, msg IndexMessage) error {
	start := time.Now()
	refs, err := p.Refs(ctx, config.InputConfig{Dir: msg.Dir, S3Prefix: msg.S3Prefix, URLs: msg.URLs})
	if err != nil {
		return fmt.Errorf("resolve inputs: %w", err)
	}

	res, err := p.Runner.Run(ctx, msg.GraphID, refs)
	switch {
	case errors.Is(err, indexer.ErrNoDocuments):
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	case errors.Is(err, leaselock.ErrBusy):
		logger.Info("[Queue] Graph is busy, retrying later", "graph_id", msg.GraphID)
		return err
	case err != nil:
		return err
	}

	aiDuration := time.Duration(res.Metrics.DurationMs) * time.Millisecond
	logger.Info("[Queue] AI metrics",
		"input_tokens", res.Metrics.InputTokens,
		"output_tokens", res.Metrics.OutputTokens,
		"total_tokens", res.Metrics.TotalTokens,
		"duration", timing.Format(aiDuration),
	)
	logger.Info("[Queue] Index job done",
		"graph_id", msg.GraphID,
		"correlation_id", msg.CorrelationID,
		"run_id", res.RunID,
		"failed_items", res.Failures.Len(),
		"duration", timing.Format(time.Since(start)),
	)
	return nil
}
