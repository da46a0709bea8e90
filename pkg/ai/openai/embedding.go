package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/ai"

	"github.com/openai/openai-go/v3"
)

var errNoEmbeddingClient = errors.New("embedding endpoint not configured")

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model.
//
// Blank input yields a zero vector of the configured dimension without a
// request.
//
// Example:
//
//	embedding, err := client.GenerateEmbedding(ctx, []byte("Graph RAG systems"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println("Embedding length:", len(embedding))
func (c *GraphOpenAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if len(strings.TrimSpace(string(input))) == 0 {
		return make([]float32, c.embedDimensions), nil
	}
	res, err := c.GenerateEmbeddings(ctx, []string{string(input)})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// GenerateEmbeddings creates embeddings for multiple inputs in a single
// request. The result order matches the input order.
func (c *GraphOpenAIClient) GenerateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if c.EmbeddingClient == nil {
		return nil, ai.WrapInvocation("embedding", c.embeddingModel, errNoEmbeddingClient)
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, ai.WrapInvocation("embedding", c.embeddingModel, err)
	}
	defer c.reqLock.Release(1)

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: c.embeddingModel,
	}

	start := time.Now()
	response, err := c.EmbeddingClient.Embeddings.New(rCtx, body)
	if err != nil {
		return nil, ai.WrapInvocation("embedding", c.embeddingModel, err)
	}

	c.Record(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != len(inputs) {
		return nil, ai.WrapInvocation("embedding", c.embeddingModel,
			fmt.Errorf("embedding response size mismatch: got %d want %d", len(response.Data), len(inputs)))
	}

	out := make([][]float32, len(inputs))
	for _, embedding := range response.Data {
		idx := int(embedding.Index)
		if idx < 0 || idx >= len(inputs) {
			return nil, ai.WrapInvocation("embedding", c.embeddingModel,
				fmt.Errorf("embedding index out of range: %d", embedding.Index))
		}
		out[idx] = fitDimensions(embedding.Embedding, c.embedDimensions)
	}
	for i := range out {
		if out[i] == nil {
			return nil, ai.WrapInvocation("embedding", c.embeddingModel,
				fmt.Errorf("missing embedding for index %d", i))
		}
	}
	return out, nil
}

func fitDimensions(in []float64, dim int) []float32 {
	if dim <= 0 {
		dim = len(in)
	}
	vec := make([]float32, dim)
	for i := 0; i < dim && i < len(in); i++ {
		vec[i] = float32(in[i])
	}
	return vec
}
