package graph

import (
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/OFFIS-RIT/graphrag/internal/util"
	"github.com/OFFIS-RIT/graphrag/pkg/ai"
	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/prompt"

	"golang.org/x/sync/errgroup"
)

const stageSummarize = "summarize"

// Summarizer collapses accumulated description lists into one description
// per entity and relationship.
//
// A Summarizer should be created using NewSummarizer.
type Summarizer struct {
	client         ai.GraphAIClient
	tmpl           *template.Template
	tokens         *prompt.Tokenizer
	maxInputTokens int
	parallel       int
	maxRetries     int
	retryDelay     time.Duration
}

// SummarizerParams configures a Summarizer.
//
// MaxInputTokens bounds the joined descriptions sent to the model.
// Parallel bounds concurrent model calls.
type SummarizerParams struct {
	Prompt         *prompt.Builder
	Tokenizer      *prompt.Tokenizer
	MaxInputTokens int
	Parallel       int
	MaxRetries     int
	RetryDelay     time.Duration
}

// NewSummarizer builds the prompt template once.
func NewSummarizer(client ai.GraphAIClient, params SummarizerParams) (*Summarizer, error) {
	b := params.Prompt
	if b == nil {
		b = prompt.NewSummarize("", "")
	}
	tmpl, err := b.Build()
	if err != nil {
		return nil, err
	}
	tok := params.Tokenizer
	if tok == nil {
		tok = prompt.NewTokenizer("")
	}
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = 8
	}
	maxTokens := params.MaxInputTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	return &Summarizer{
		client:         client,
		tmpl:           tmpl,
		tokens:         tok,
		maxInputTokens: maxTokens,
		parallel:       parallel,
		maxRetries:     params.MaxRetries,
		retryDelay:     params.RetryDelay,
	}, nil
}

// Summarize returns the description list to store for one entity or
// relationship. A single description is returned unchanged without a model
// call; an empty list stays empty.
func (s *Summarizer) Summarize(ctx context.Context, name string, descriptions []string) ([]string, error) {
	switch len(descriptions) {
	case 0:
		return nil, nil
	case 1:
		return descriptions, nil
	}

	p, err := prompt.Render(s.tmpl, prompt.SummarizeInput{
		EntityName:      name,
		DescriptionList: s.fit(descriptions),
	})
	if err != nil {
		return nil, err
	}

	res, err := util.RetryWithBackoff(ctx, s.maxRetries, s.retryDelay, func(ctx context.Context) (string, error) {
		return s.client.GenerateCompletion(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	summary := ai.NormalizeWhitespace(res)
	if summary == "" {
		return nil, ai.WrapInvocation("completion", "", fmt.Errorf("empty summary"))
	}
	return []string{summary}, nil
}

// fit keeps descriptions in order until the token budget is spent. The
// last one kept may be cut.
func (s *Summarizer) fit(descriptions []string) []string {
	out := make([]string, 0, len(descriptions))
	budget := s.maxInputTokens
	for _, d := range descriptions {
		n := s.tokens.Count(d)
		if n <= budget {
			out = append(out, d)
			budget -= n
			continue
		}
		if budget > 0 {
			out = append(out, s.tokens.Truncate(d, budget))
		}
		break
	}
	return out
}

// Run summarizes every entity and relationship of g. Each result is
// written back with a single call once it is complete. Failed items keep
// their description list and are returned in the report; only context
// cancellation aborts the run.
func (s *Summarizer) Run(ctx context.Context, g *common.Graph) (*common.FailureReport, error) {
	snap := g.Snapshot()
	titles := make(map[string]string, len(snap.Entities))
	for _, e := range snap.Entities {
		titles[e.ID] = e.Title
	}

	report := &common.FailureReport{}
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallel)

	for _, e := range snap.Entities {
		if len(e.DescriptionList) < 2 {
			continue
		}
		eg.Go(func() error {
			out, err := s.Summarize(gCtx, e.Title, e.DescriptionList)
			if err != nil {
				if ai.IsCanceled(err) && gCtx.Err() != nil {
					return err
				}
				logger.Warn("[Graph] Entity summarization failed", "entity_id", e.ID, "err", err)
				report.Add(common.ItemFailure{Stage: stageSummarize, Kind: common.KindEntity, ID: e.ID, Err: err})
				return nil
			}
			g.SetEntityDescription(e.ID, out[0])
			return nil
		})
	}

	for _, r := range snap.Relationships {
		if len(r.DescriptionList) < 2 {
			continue
		}
		eg.Go(func() error {
			name := fmt.Sprintf("%s -> %s", titles[r.SourceID], titles[r.TargetID])
			out, err := s.Summarize(gCtx, name, r.DescriptionList)
			if err != nil {
				if ai.IsCanceled(err) && gCtx.Err() != nil {
					return err
				}
				logger.Warn("[Graph] Relationship summarization failed", "relationship_id", r.ID, "err", err)
				report.Add(common.ItemFailure{Stage: stageSummarize, Kind: common.KindRelationship, ID: r.ID, Err: err})
				return nil
			}
			g.SetRelationshipDescription(r.ID, out[0])
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	logger.Info("[Graph] Descriptions summarized",
		"entities", len(snap.Entities),
		"relationships", len(snap.Relationships),
		"failed", report.Len(),
	)
	return report, nil
}
