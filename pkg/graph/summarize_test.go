package graph

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/prompt"
)

func newTestSummarizer(t *testing.T, client *fakeAI, params SummarizerParams) *Summarizer {
	t.Helper()
	s, err := NewSummarizer(client, params)
	if err != nil {
		t.Fatalf("NewSummarizer() error = %v", err)
	}
	return s
}

func TestSummarizeSingleDescriptionSkipsLLM(t *testing.T) {
	client := &fakeAI{}
	s := newTestSummarizer(t, client, SummarizerParams{})

	got, err := s.Summarize(context.Background(), "ALPHA", []string{"only one"})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"only one"}) {
		t.Fatalf("Summarize() = %#v", got)
	}
	if client.callCount() != 0 {
		t.Fatalf("expected no LLM call, got %d", client.callCount())
	}
}

func TestSummarizeManyDescriptionsCallsOnce(t *testing.T) {
	client := &fakeAI{complete: func(string) (string, error) {
		return "  Alpha is\n a company.  ", nil
	}}
	s := newTestSummarizer(t, client, SummarizerParams{})

	got, err := s.Summarize(context.Background(), "ALPHA", []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Alpha is a company."}) {
		t.Fatalf("Summarize() = %#v", got)
	}
	if client.callCount() != 1 {
		t.Fatalf("expected exactly one LLM call, got %d", client.callCount())
	}
	if !promptContains(client.prompts[0], "ALPHA", "- one", "- two", "- three") {
		t.Fatalf("prompt misses descriptions:\n%s", client.prompts[0])
	}
}

func TestSummarizeTruncatesToBudget(t *testing.T) {
	client := &fakeAI{}
	s := newTestSummarizer(t, client, SummarizerParams{
		Tokenizer:      prompt.NewTokenizer(""),
		MaxInputTokens: 3,
	})

	_, err := s.Summarize(context.Background(), "ALPHA", []string{"one two", "three four", "five"})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	p := client.prompts[0]
	if !promptContains(p, "- one two", "- three") || strings.Contains(p, "four") || strings.Contains(p, "five") {
		t.Fatalf("prompt not truncated to budget:\n%s", p)
	}
}

func TestSummarizerRunPartialFailure(t *testing.T) {
	client := &fakeAI{complete: func(p string) (string, error) {
		if strings.Contains(p, "entity_name: BROKEN") {
			return "", errors.New("model unavailable")
		}
		return "merged", nil
	}}
	s := newTestSummarizer(t, client, SummarizerParams{Parallel: 4})

	g := common.NewGraph("g")
	_, err := Merge(g,
		Extraction{TextUnitID: "u1", Entities: []ExtractedEntity{ent("OK", "a"), ent("BROKEN", "x"), ent("SINGLE", "s")}},
		Extraction{TextUnitID: "u2", Entities: []ExtractedEntity{ent("OK", "b"), ent("BROKEN", "y")}},
	)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	g.Freeze()

	report, err := s.Run(context.Background(), g)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Len() != 1 {
		t.Fatalf("expected one failure, got %s", report.Summary())
	}
	f := report.Failures()[0]
	if f.Kind != common.KindEntity || f.ID != common.EntityID("BROKEN", "ORGANIZATION") {
		t.Fatalf("unexpected failure: %+v", f)
	}

	ok, _ := g.Entity(common.EntityID("OK", "ORGANIZATION"))
	if !reflect.DeepEqual(ok.DescriptionList, []string{"merged"}) {
		t.Fatalf("OK descriptions = %#v", ok.DescriptionList)
	}
	broken, _ := g.Entity(common.EntityID("BROKEN", "ORGANIZATION"))
	if !reflect.DeepEqual(broken.DescriptionList, []string{"x", "y"}) {
		t.Fatalf("failed entity must keep its descriptions, got %#v", broken.DescriptionList)
	}
}

func TestSummarizerRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeAI{complete: func(string) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	s := newTestSummarizer(t, client, SummarizerParams{Parallel: 1})

	g := common.NewGraph("g")
	_, _ = Merge(g,
		Extraction{TextUnitID: "u1", Entities: []ExtractedEntity{ent("A", "a")}},
		Extraction{TextUnitID: "u2", Entities: []ExtractedEntity{ent("A", "b")}},
	)
	g.Freeze()

	if _, err := s.Run(ctx, g); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
