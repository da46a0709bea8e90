package openai

import (
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// GraphOpenAIClient talks to an OpenAI compatible API. Chat and embedding
// requests may target different endpoints.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	embeddingModel   string
	descriptionModel string
	extractionModel  string
	embedDimensions  int

	chatURL string
	timeout time.Duration

	reqLock *semaphore.Weighted

	ai.MetricsRecorder

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for
// creating a new GraphOpenAIClient.
//
// DescriptionModel is used for plain completions (summaries, reports),
// ExtractionModel for structured extraction. EmbedDimensions truncates or
// pads vectors to a fixed size; 0 keeps whatever the model returns.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel   string
	DescriptionModel string
	ExtractionModel  string
	EmbedDimensions  int

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int64
	Timeout               time.Duration
}

// NewGraphOpenAIClient creates a client from params.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		EmbeddingModel:   "text-embedding-3-small",
//		DescriptionModel: "gpt-4o-mini",
//		ExtractionModel:  "gpt-4o-mini",
//		EmbeddingKey:     os.Getenv("OPENAI_API_KEY"),
//		ChatKey:          os.Getenv("OPENAI_API_KEY"),
//	})
func NewGraphOpenAIClient(params NewGraphOpenAIClientParams) *GraphOpenAIClient {
	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 8
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	extraction := params.ExtractionModel
	if extraction == "" {
		extraction = params.DescriptionModel
	}

	return &GraphOpenAIClient{
		embeddingModel:   params.EmbeddingModel,
		descriptionModel: params.DescriptionModel,
		extractionModel:  extraction,
		embedDimensions:  params.EmbedDimensions,

		chatURL: params.ChatURL,
		timeout: timeout,

		reqLock: semaphore.NewWeighted(maxReq),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" && baseURL == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// EmbeddingModel returns the configured embedding model identifier.
func (c *GraphOpenAIClient) EmbeddingModel() string {
	return c.embeddingModel
}
