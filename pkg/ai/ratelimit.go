package ai

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a GraphAIClient and waits on a token bucket before
// every request. Completions and embeddings have separate buckets.
type RateLimitedClient struct {
	client     GraphAIClient
	completion *rate.Limiter
	embedding  *rate.Limiter
}

// NewRateLimitedClient limits completions and embeddings to the given
// requests per second. A value <= 0 disables the limit for that kind.
func NewRateLimitedClient(client GraphAIClient, completionRPS, embeddingRPS float64) *RateLimitedClient {
	return &RateLimitedClient{
		client:     client,
		completion: newLimiter(completionRPS),
		embedding:  newLimiter(embeddingRPS),
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *RateLimitedClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...GenerateOption,
) (string, error) {
	if err := c.completion.Wait(ctx); err != nil {
		return "", err
	}
	return c.client.GenerateCompletion(ctx, prompt, opts...)
}

func (c *RateLimitedClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	if err := c.completion.Wait(ctx); err != nil {
		return err
	}
	return c.client.GenerateCompletionWithFormat(ctx, name, description, prompt, out, opts...)
}

func (c *RateLimitedClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if err := c.embedding.Wait(ctx); err != nil {
		return nil, err
	}
	return c.client.GenerateEmbedding(ctx, input)
}

func (c *RateLimitedClient) EmbeddingModel() string {
	return c.client.EmbeddingModel()
}

func (c *RateLimitedClient) ResetMetrics() {
	c.client.ResetMetrics()
}

func (c *RateLimitedClient) GetMetrics() ModelMetrics {
	return c.client.GetMetrics()
}
