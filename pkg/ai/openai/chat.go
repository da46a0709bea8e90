package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

var errNoChatClient = errors.New("chat endpoint not configured")

// GenerateCompletion sends a single-turn prompt to the chat model and
// returns the generated completion as plain text.
//
// Example:
//
//	resp, err := client.GenerateCompletion(ctx, "Summarize this text...")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(resp)
func (c *GraphOpenAIClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.descriptionModel,
		Temperature: 0.3,
	}, opts...)

	body := c.chatBody(prompt, options)
	response, err := c.chat(ctx, body)
	if err != nil {
		return "", ai.WrapInvocation("completion", options.Model, err)
	}

	return response.Choices[0].Message.Content, nil
}

// GenerateCompletionWithFormat sends a prompt to the chat model and
// unmarshals the response into out, using a JSON schema generated from
// out to enforce structure.
//
// Example:
//
//	var out Report
//	err := client.GenerateCompletionWithFormat(ctx, "community_report", "...", prompt, &out)
func (c *GraphOpenAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)

	body := c.chatBody(prompt, options)
	body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        name,
				Description: openai.String(description),
				Schema:      ai.GenerateSchema(out),
				Strict:      openai.Bool(true),
			},
		},
	}

	response, err := c.chat(ctx, body)
	if err != nil {
		return ai.WrapInvocation("structured completion", options.Model, err)
	}

	message := response.Choices[0].Message.Content
	if message == "" {
		return ai.WrapInvocation("structured completion", options.Model,
			fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason))
	}
	if err := ai.UnmarshalFlexible(message, out); err != nil {
		return &ai.OutputParseError{Raw: message, Err: err}
	}
	return nil
}

func (c *GraphOpenAIClient) chatBody(prompt string, options ai.GenerateOptions) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}

	if options.Thinking != "" {
		// reasoning models on the hosted API only accept temperature 1.0
		if c.chatURL == "" {
			body.Temperature = openai.Float(1.0)
		}
		body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
	}
	return body
}

func (c *GraphOpenAIClient) chat(
	ctx context.Context,
	body openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	if c.ChatClient == nil {
		return nil, errNoChatClient
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(rCtx, body)
	if err != nil {
		return nil, err
	}

	c.Record(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from model")
	}
	return response, nil
}
