package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"

	"github.com/OFFIS-RIT/graphrag/pkg/ai"
	"github.com/OFFIS-RIT/graphrag/pkg/prompt"

	"github.com/ollama/ollama/api"
)

const defaultContext = 4096

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *GraphOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.descriptionModel,
		Temperature: 0.3,
	}, opts...)

	req := c.chatRequest(prompt, options)
	content, err := c.chat(ctx, req)
	if err != nil {
		return "", ai.WrapInvocation("completion", options.Model, err)
	}
	return content, nil
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *GraphOllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)

	req := c.chatRequest(prompt, options)
	req.Format = json.RawMessage(formatBytes)

	content, err := c.chat(ctx, req)
	if err != nil {
		return ai.WrapInvocation("structured completion", options.Model, err)
	}
	if err := ai.UnmarshalFlexible(content, out); err != nil {
		return &ai.OutputParseError{Raw: content, Err: err}
	}
	return nil
}

func (c *GraphOllamaClient) chatRequest(prompt string, options ai.GenerateOptions) *api.ChatRequest {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}

	if n := contextSize(c.tokens, prompt, options.SystemPrompts); n > defaultContext {
		req.Options["num_ctx"] = n
	}
	return req
}

// contextSize estimates the context window needed for the request with
// some headroom for the answer.
func contextSize(tok *prompt.Tokenizer, text string, system []string) int {
	tokens := 200 + tok.Count(text)
	for _, s := range system {
		tokens += tok.Count(s)
	}
	return tokens
}

func (c *GraphOllamaClient) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(rCtx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", err
	}

	c.Record(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	return final.Message.Content, nil
}
