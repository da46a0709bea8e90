package community

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/graphrag/pkg/ai"
	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/prompt"
)

// fakeAI answers structured calls with the raw text returned by report and
// decodes it the way the model adapters do.
type fakeAI struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	report  func(prompt string) (string, error)
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", fmt.Errorf("unexpected completion")
}

func (f *fakeAI) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	raw, err := f.report(prompt)
	if err != nil {
		return ai.WrapInvocation("structured completion", "fake", err)
	}
	if err := ai.UnmarshalFlexible(raw, out); err != nil {
		return &ai.OutputParseError{Raw: raw, Err: err}
	}
	return nil
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, fmt.Errorf("unexpected embedding")
}

func (f *fakeAI) EmbeddingModel() string {
	return "fake-embed"
}

func (f *fakeAI) ResetMetrics() {}

func (f *fakeAI) GetMetrics() ai.ModelMetrics {
	return ai.ModelMetrics{}
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const validReport = `{"title":"Harbor Group","summary":"Shipping firms around the harbor.","rating":12,"rating_explanation":"Central.","findings":[{"summary":"Alpha leads","explanation":"Alpha owns most docks."},{"summary":" ","explanation":""}]}`

func reportGraph() common.Snapshot {
	return common.Snapshot{
		Entities: []common.Entity{
			{ID: "e1", Title: "ALPHA", DescriptionList: []string{"Alpha is a shipping company."}, Degree: 1},
			{ID: "e2", Title: "HARBOR", DescriptionList: []string{"The harbor of the city."}, Degree: 2},
			{ID: "e3", Title: "BETA", DescriptionList: []string{"Beta repairs ships."}, Degree: 1},
			{ID: "e4", Title: "OUTSIDER", DescriptionList: []string{"Not part of the community."}, Degree: 1},
		},
		Relationships: []common.Relationship{
			{ID: "r1", SourceID: "e1", TargetID: "e2", DescriptionList: []string{"Alpha operates in the harbor."}, Weight: 2},
			{ID: "r2", SourceID: "e3", TargetID: "e2", DescriptionList: []string{"Beta repairs ships at the harbor."}, Weight: 1},
			{ID: "r3", SourceID: "e3", TargetID: "e4", DescriptionList: []string{"Beta bought from Outsider."}, Weight: 1},
		},
	}
}

func newTestGenerator(t *testing.T, client ai.GraphAIClient, params GeneratorParams) *Generator {
	t.Helper()
	g, err := NewGenerator(client, params)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return g
}

func TestGenerateReport(t *testing.T) {
	client := &fakeAI{report: func(string) (string, error) { return validReport, nil }}
	g := newTestGenerator(t, client, GeneratorParams{})

	c := common.Community{ID: "L0-0", Level: 0, EntityIDs: []string{"e1", "e2", "e3"}}
	snap := reportGraph()
	rep, err := g.Generate(context.Background(), c, snap.Induced(c.EntityIDs))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if rep.CommunityID != "L0-0" || rep.Title != "Harbor Group" {
		t.Fatalf("Generate() = %+v", rep)
	}
	if rep.Rating != 10 {
		t.Fatalf("Rating = %v, want clamped 10", rep.Rating)
	}
	if len(rep.Findings) != 1 || rep.Findings[0].Summary != "Alpha leads" {
		t.Fatalf("Findings = %+v", rep.Findings)
	}

	p := client.prompts[0]
	if strings.Contains(p, "OUTSIDER") || strings.Contains(p, "bought") {
		t.Fatalf("prompt leaks entities outside the community:\n%s", p)
	}
	if !strings.Contains(p, "0,HARBOR,The harbor of the city.,2") {
		t.Fatalf("expected highest degree entity first:\n%s", p)
	}
	if !strings.Contains(p, "ALPHA,HARBOR,Alpha operates in the harbor.,2") {
		t.Fatalf("expected relationship row:\n%s", p)
	}
}

func TestGenerateReportTruncatesLowDegreeRows(t *testing.T) {
	client := &fakeAI{report: func(string) (string, error) { return validReport, nil }}
	g := newTestGenerator(t, client, GeneratorParams{MaxInputTokens: 7})

	c := common.Community{ID: "L0-0", EntityIDs: []string{"e1", "e2", "e3"}}
	snap := reportGraph()
	in := g.input(c, snap.Induced(c.EntityIDs))

	if len(in.Entities) != 1 || in.Entities[0].Title != "HARBOR" {
		t.Fatalf("Entities = %+v", in.Entities)
	}
	if len(in.Relationships) != 0 {
		t.Fatalf("Relationships = %+v", in.Relationships)
	}
}

func TestGenerateReportParseError(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "I cannot help with that"},
		{name: "missing title", raw: `{"summary":"s","rating":1}`},
		{name: "missing summary", raw: `{"title":"t","rating":1}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeAI{report: func(string) (string, error) { return tc.raw, nil }}
			g := newTestGenerator(t, client, GeneratorParams{MaxRetries: 2})

			c := common.Community{ID: "L1-3", EntityIDs: []string{"e1"}}
			_, err := g.Generate(context.Background(), c, reportGraph().Induced(c.EntityIDs))

			var pe *ReportParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Generate() error = %v, want ReportParseError", err)
			}
			if pe.CommunityID != "L1-3" {
				t.Fatalf("CommunityID = %s", pe.CommunityID)
			}
			if client.callCount() != 2 {
				t.Fatalf("calls = %d, want 2", client.callCount())
			}
		})
	}
}

func TestGenerateReportInvocationError(t *testing.T) {
	client := &fakeAI{report: func(string) (string, error) { return "", errors.New("503") }}
	g := newTestGenerator(t, client, GeneratorParams{})

	c := common.Community{ID: "L0-0", EntityIDs: []string{"e1"}}
	_, err := g.Generate(context.Background(), c, reportGraph().Induced(c.EntityIDs))
	if !ai.IsInvocationError(err) {
		t.Fatalf("Generate() error = %v, want invocation error", err)
	}
}

func TestGenerateAllPartialFailure(t *testing.T) {
	client := &fakeAI{report: func(p string) (string, error) {
		if strings.Contains(p, "L0-1") {
			return "garbage", nil
		}
		return validReport, nil
	}}
	g := newTestGenerator(t, client, GeneratorParams{Parallel: 2})

	comms := []common.Community{
		{ID: "L0-0", EntityIDs: []string{"e1", "e2"}},
		{ID: "L0-1", EntityIDs: []string{"e3"}},
		{ID: "L0-2", EntityIDs: []string{"e4"}},
	}
	reports, failures, err := g.GenerateAll(context.Background(), comms, reportGraph())
	if err != nil {
		t.Fatalf("GenerateAll() error = %v", err)
	}
	if len(reports) != 2 || reports[0].CommunityID != "L0-0" || reports[1].CommunityID != "L0-2" {
		t.Fatalf("reports = %+v", reports)
	}
	items := failures.Failures()
	if len(items) != 1 || items[0].ID != "L0-1" || items[0].Kind != common.KindCommunity {
		t.Fatalf("failures = %s", failures.Summary())
	}
	var pe *ReportParseError
	if !errors.As(items[0], &pe) {
		t.Fatalf("failure = %v, want ReportParseError", items[0].Err)
	}
}

func TestGenerateAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeAI{report: func(string) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	g := newTestGenerator(t, client, GeneratorParams{Parallel: 1})

	comms := []common.Community{{ID: "L0-0", EntityIDs: []string{"e1"}}, {ID: "L0-1", EntityIDs: []string{"e2"}}}
	if _, _, err := g.GenerateAll(ctx, comms, reportGraph()); !errors.Is(err, context.Canceled) {
		t.Fatalf("GenerateAll() error = %v, want context.Canceled", err)
	}
}

func TestNewGeneratorInlinePrompt(t *testing.T) {
	client := &fakeAI{report: func(string) (string, error) { return validReport, nil }}
	g := newTestGenerator(t, client, GeneratorParams{
		Prompt: prompt.NewReport("Describe {{ .CommunityID }}: {{ range .Entities }}{{ .Title }} {{ end }}", ""),
	})

	c := common.Community{ID: "L2-0", EntityIDs: []string{"e1"}}
	if _, err := g.Generate(context.Background(), c, reportGraph().Induced(c.EntityIDs)); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if client.prompts[0] != "Describe L2-0: ALPHA " {
		t.Fatalf("prompt = %q", client.prompts[0])
	}
}
