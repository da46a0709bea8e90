package ai

import (
	"math"
	"sync"
)

// ModelMetrics sums token usage and latency over all calls of a client.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	Requests       int     `json:"requests"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// MetricsRecorder is embedded by adapters to provide ResetMetrics and
// GetMetrics. The zero value is ready to use.
type MetricsRecorder struct {
	mu    sync.Mutex
	total ModelMetrics
}

// Record adds one request to the running totals.
func (r *MetricsRecorder) Record(call ModelMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total.InputTokens += call.InputTokens
	r.total.OutputTokens += call.OutputTokens
	r.total.TotalTokens += call.TotalTokens
	r.total.DurationMs += call.DurationMs
	r.total.Requests++

	if r.total.DurationMs > 0 {
		tps := float64(r.total.TotalTokens) * 1000 / float64(r.total.DurationMs)
		r.total.TokenPerSecond = float32(math.Round(tps*100) / 100)
	}
}

func (r *MetricsRecorder) ResetMetrics() {
	r.mu.Lock()
	r.total = ModelMetrics{}
	r.mu.Unlock()
}

func (r *MetricsRecorder) GetMetrics() ModelMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
