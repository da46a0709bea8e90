package community

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/OFFIS-RIT/graphrag/internal/util"
	"github.com/OFFIS-RIT/graphrag/pkg/ai"
	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/prompt"

	"golang.org/x/sync/errgroup"
)

const stageReport = "report"

// ReportParseError is returned when the model output for a community can
// not be turned into a report.
type ReportParseError struct {
	CommunityID string
	Raw         string
	Err         error
}

func (e *ReportParseError) Error() string {
	return fmt.Sprintf("parse report of community %s: %v", e.CommunityID, e.Err)
}

func (e *ReportParseError) Unwrap() error {
	return e.Err
}

var errIncompleteReport = errors.New("report is missing title or summary")

type reportResponse struct {
	Title             string           `json:"title" jsonschema_description:"Short name of the community that mentions its most important entities"`
	Summary           string           `json:"summary" jsonschema_description:"Executive summary of the community structure and its most significant information"`
	Rating            float64          `json:"rating" jsonschema_description:"Impact and importance of the community between 0 and 10"`
	RatingExplanation string           `json:"rating_explanation" jsonschema_description:"One sentence explaining the rating"`
	Findings          []common.Finding `json:"findings" jsonschema_description:"Key insights about the community"`
}

// Generator writes community reports.
//
// A Generator should be created using NewGenerator.
type Generator struct {
	client         ai.GraphAIClient
	tmpl           *template.Template
	tokens         *prompt.Tokenizer
	maxInputTokens int
	parallel       int
	maxRetries     int
	retryDelay     time.Duration
}

// GeneratorParams configures a Generator.
type GeneratorParams struct {
	Prompt         *prompt.Builder
	Tokenizer      *prompt.Tokenizer
	MaxInputTokens int
	Parallel       int
	MaxRetries     int
	RetryDelay     time.Duration
}

// NewGenerator builds the report template once.
func NewGenerator(client ai.GraphAIClient, params GeneratorParams) (*Generator, error) {
	b := params.Prompt
	if b == nil {
		b = prompt.NewReport("", "")
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
		parallel = 4
	}
	maxTokens := params.MaxInputTokens
	if maxTokens <= 0 {
		maxTokens = 8000
	}

	return &Generator{
		client:         client,
		tmpl:           tmpl,
		tokens:         tok,
		maxInputTokens: maxTokens,
		parallel:       parallel,
		maxRetries:     params.MaxRetries,
		retryDelay:     params.RetryDelay,
	}, nil
}

// Generate writes the report of one community. sub must be the subgraph
// induced by the community members.
func (g *Generator) Generate(ctx context.Context, c common.Community, sub common.Snapshot) (common.CommunityReport, error) {
	p, err := prompt.Render(g.tmpl, g.input(c, sub))
	if err != nil {
		return common.CommunityReport{}, err
	}

	res, err := util.RetryWithBackoff(ctx, g.maxRetries, g.retryDelay, func(ctx context.Context) (reportResponse, error) {
		var out reportResponse
		err := g.client.GenerateCompletionWithFormat(
			ctx,
			"community_report",
			"Write a report about a community of a knowledge graph.",
			p,
			&out,
		)
		if err != nil {
			return out, err
		}
		out.Title = strings.TrimSpace(out.Title)
		out.Summary = strings.TrimSpace(out.Summary)
		if out.Title == "" || out.Summary == "" {
			return out, &ai.OutputParseError{Err: errIncompleteReport}
		}
		return out, nil
	})
	if err != nil {
		var pe *ai.OutputParseError
		if errors.As(err, &pe) {
			return common.CommunityReport{}, &ReportParseError{CommunityID: c.ID, Raw: pe.Raw, Err: pe.Err}
		}
		return common.CommunityReport{}, ai.WrapInvocation("report", "", err)
	}

	findings := make([]common.Finding, 0, len(res.Findings))
	for _, f := range res.Findings {
		f.Summary = strings.TrimSpace(f.Summary)
		f.Explanation = strings.TrimSpace(f.Explanation)
		if f.Summary == "" && f.Explanation == "" {
			continue
		}
		findings = append(findings, f)
	}

	return common.CommunityReport{
		CommunityID:       c.ID,
		Level:             c.Level,
		Title:             res.Title,
		Summary:           res.Summary,
		Rating:            clampRating(res.Rating),
		RatingExplanation: strings.TrimSpace(res.RatingExplanation),
		Findings:          findings,
	}, nil
}

func clampRating(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 10:
		return 10
	}
	return r
}

// input lists the highest degree entities first and the relationships
// between the best connected entities first, dropping rows once the token
// budget is spent. At least one entity row is always kept.
func (g *Generator) input(c common.Community, sub common.Snapshot) prompt.ReportInput {
	entities := append([]common.Entity(nil), sub.Entities...)
	sort.SliceStable(entities, func(a, b int) bool {
		return entities[a].Degree > entities[b].Degree
	})

	in := prompt.ReportInput{CommunityID: c.ID, Level: c.Level}
	budget := g.maxInputTokens
	titles := make(map[string]string, len(entities))
	degrees := make(map[string]int, len(entities))
	for i, e := range entities {
		row := prompt.ReportEntity{
			ID:          strconv.Itoa(i),
			Title:       e.Title,
			Description: e.Description(),
			Degree:      e.Degree,
		}
		n := g.tokens.Count(row.Title + " " + row.Description)
		if n > budget && len(in.Entities) > 0 {
			break
		}
		budget -= n
		in.Entities = append(in.Entities, row)
		titles[e.ID] = e.Title
		degrees[e.ID] = e.Degree
	}

	rels := append([]common.Relationship(nil), sub.Relationships...)
	sort.SliceStable(rels, func(a, b int) bool {
		da := degrees[rels[a].SourceID] + degrees[rels[a].TargetID]
		db := degrees[rels[b].SourceID] + degrees[rels[b].TargetID]
		if da != db {
			return da > db
		}
		return rels[a].Weight > rels[b].Weight
	})
	for _, r := range rels {
		src, okS := titles[r.SourceID]
		dst, okT := titles[r.TargetID]
		if !okS || !okT {
			continue
		}
		row := prompt.ReportRelationship{
			ID:          strconv.Itoa(len(in.Relationships)),
			Source:      src,
			Target:      dst,
			Description: r.Description(),
			Weight:      r.Weight,
		}
		n := g.tokens.Count(src + " " + dst + " " + row.Description)
		if n > budget {
			break
		}
		budget -= n
		in.Relationships = append(in.Relationships, row)
	}
	return in
}

// GenerateAll writes the reports of all communities in parallel. Reports
// are returned in community order; failed communities are left out and
// listed in the failure report. Only context cancellation aborts.
func (g *Generator) GenerateAll(
	ctx context.Context,
	communities []common.Community,
	snap common.Snapshot,
) ([]common.CommunityReport, *common.FailureReport, error) {
	failures := &common.FailureReport{}
	results := make([]*common.CommunityReport, len(communities))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallel)
	for i, c := range communities {
		eg.Go(func() error {
			rep, err := g.Generate(gCtx, c, snap.Induced(c.EntityIDs))
			if err != nil {
				if ai.IsCanceled(err) && gCtx.Err() != nil {
					return err
				}
				logger.Warn("[Community] Report generation failed", "community_id", c.ID, "err", err)
				failures.Add(common.ItemFailure{Stage: stageReport, Kind: common.KindCommunity, ID: c.ID, Err: err})
				return nil
			}
			results[i] = &rep
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, failures, err
	}
	if err := ctx.Err(); err != nil {
		return nil, failures, err
	}

	reports := make([]common.CommunityReport, 0, len(communities))
	for _, r := range results {
		if r != nil {
			reports = append(reports, *r)
		}
	}
	logger.Info("[Community] Reports generated",
		"communities", len(communities),
		"reports", len(reports),
		"failed", failures.Len(),
	)
	return reports, failures, nil
}
