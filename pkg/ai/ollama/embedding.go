package ollama

import (
	"context"
	"errors"
	"strings"

	"github.com/OFFIS-RIT/graphrag/pkg/ai"

	"github.com/ollama/ollama/api"
)

var errEmptyEmbedding = errors.New("empty embedding response")

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model on Ollama.
//
// Blank input yields a zero vector of the configured dimension.
func (c *GraphOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, c.embedDimensions), nil
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, ai.WrapInvocation("embedding", c.embeddingModel, err)
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	})
	if err != nil {
		return nil, ai.WrapInvocation("embedding", c.embeddingModel, err)
	}

	c.Record(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	if len(res.Embeddings) == 0 {
		return nil, ai.WrapInvocation("embedding", c.embeddingModel, errEmptyEmbedding)
	}
	vec := res.Embeddings[0]
	dim := c.embedDimensions
	if dim <= 0 {
		dim = len(vec)
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out, nil
}
