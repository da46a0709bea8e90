package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/graphrag/pkg/ai"
)

// fakeAI counts calls. Completions return "summary-<n>" unless complete is
// set; structured calls are answered by extract.
type fakeAI struct {
	mu       sync.Mutex
	calls    int
	prompts  []string
	complete func(prompt string) (string, error)
	extract  func(prompt string, out *extractResponse) error
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.complete != nil {
		return f.complete(prompt)
	}
	return fmt.Sprintf("summary-%d", n), nil
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
	f.mu.Unlock()

	res, ok := out.(*extractResponse)
	if !ok || f.extract == nil {
		return fmt.Errorf("unexpected structured call %s", name)
	}
	return f.extract(prompt, res)
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{float32(len(input))}, nil
}

func (f *fakeAI) EmbeddingModel() string { return "fake-embed" }

func (f *fakeAI) ResetMetrics() {}

func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func promptContains(p string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(p, part) {
			return false
		}
	}
	return true
}
