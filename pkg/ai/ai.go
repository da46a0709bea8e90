// Package ai abstracts the chat and embedding models used while indexing.
// Adapters live in the ollama and openai subpackages.
package ai

import (
	"context"
)

// GraphAIClient is what the pipeline needs from a model provider.
// Implementations own their timeouts and concurrency limits. Errors are
// *LLMInvocationError values.
type GraphAIClient interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	EmbeddingModel() string

	ResetMetrics()
	GetMetrics() ModelMetrics
}

// GenerateOptions is the per-request chat configuration. Adapters start
// from their own defaults and apply the caller's options on top.
type GenerateOptions struct {
	Model         string
	SystemPrompts []string
	Temperature   float64
	// Thinking is passed through as reasoning effort ("low", "medium",
	// "high"). Empty disables it.
	Thinking string
}

type GenerateOption func(*GenerateOptions)

func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) { o.SystemPrompts = prompts }
}

func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = temp }
}

func WithThinking(effort string) GenerateOption {
	return func(o *GenerateOptions) { o.Thinking = effort }
}

// ApplyOptions resolves opts on top of defaults. nil options are skipped.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		if o != nil {
			o(&defaults)
		}
	}
	return defaults
}

// WithDefaults returns a client that prepends opts to the options of every
// chat request, so per-call options still win. Without opts the client is
// returned unchanged.
func WithDefaults(client GraphAIClient, opts ...GenerateOption) GraphAIClient {
	if len(opts) == 0 {
		return client
	}
	return &defaultsClient{GraphAIClient: client, defaults: opts}
}

type defaultsClient struct {
	GraphAIClient
	defaults []GenerateOption
}

func (c *defaultsClient) merge(opts []GenerateOption) []GenerateOption {
	all := make([]GenerateOption, 0, len(c.defaults)+len(opts))
	all = append(all, c.defaults...)
	return append(all, opts...)
}

func (c *defaultsClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...GenerateOption,
) (string, error) {
	return c.GraphAIClient.GenerateCompletion(ctx, prompt, c.merge(opts)...)
}

func (c *defaultsClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	return c.GraphAIClient.GenerateCompletionWithFormat(ctx, name, description, prompt, out, c.merge(opts)...)
}
