package ai

import (
	"context"
	"testing"
)

type recordingClient struct {
	MetricsRecorder
	got GenerateOptions
}

func (c *recordingClient) GenerateCompletion(_ context.Context, _ string, opts ...GenerateOption) (string, error) {
	c.got = ApplyOptions(GenerateOptions{Temperature: 0.3}, opts...)
	return "ok", nil
}

func (c *recordingClient) GenerateCompletionWithFormat(_ context.Context, _, _, _ string, _ any, opts ...GenerateOption) error {
	c.got = ApplyOptions(GenerateOptions{Temperature: 0.1}, opts...)
	return nil
}

func (c *recordingClient) GenerateEmbedding(context.Context, []byte) ([]float32, error) {
	return []float32{1}, nil
}

func (c *recordingClient) EmbeddingModel() string { return "embed" }

func TestWithDefaults(t *testing.T) {
	inner := &recordingClient{}
	if WithDefaults(inner) != GraphAIClient(inner) {
		t.Fatal("expected client without defaults to be returned as is")
	}

	client := WithDefaults(inner, WithThinking("low"), WithTemperature(0.7))
	if _, err := client.GenerateCompletion(context.Background(), "p"); err != nil {
		t.Fatalf("GenerateCompletion() error = %v", err)
	}
	if inner.got.Thinking != "low" || inner.got.Temperature != 0.7 {
		t.Fatalf("defaults not applied: %+v", inner.got)
	}

	err := client.GenerateCompletionWithFormat(context.Background(), "n", "d", "p", nil, WithTemperature(0))
	if err != nil {
		t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
	}
	if inner.got.Temperature != 0 || inner.got.Thinking != "low" {
		t.Fatalf("per-call option should win: %+v", inner.got)
	}
	if client.EmbeddingModel() != "embed" {
		t.Fatalf("EmbeddingModel() = %q", client.EmbeddingModel())
	}
}

func TestMetricsRecorder(t *testing.T) {
	var r MetricsRecorder
	r.Record(ModelMetrics{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, DurationMs: 500})
	r.Record(ModelMetrics{InputTokens: 3, TotalTokens: 3, DurationMs: 1000})

	got := r.GetMetrics()
	if got.Requests != 2 || got.TotalTokens != 18 || got.DurationMs != 1500 {
		t.Fatalf("GetMetrics() = %+v", got)
	}
	if got.TokenPerSecond != 12 {
		t.Fatalf("TokenPerSecond = %v, want 12", got.TokenPerSecond)
	}

	r.ResetMetrics()
	if r.GetMetrics() != (ModelMetrics{}) {
		t.Fatalf("expected zero metrics after reset, got %+v", r.GetMetrics())
	}
}
