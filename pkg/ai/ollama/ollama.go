package ollama

import (
	"net/http"
	"net/url"
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/ai"
	"github.com/OFFIS-RIT/graphrag/pkg/prompt"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// GraphOllamaClient implements ai.GraphAIClient on top of a local or
// remote Ollama server.
type GraphOllamaClient struct {
	embeddingModel   string
	descriptionModel string
	extractionModel  string
	embedDimensions  int

	timeout time.Duration
	reqLock *semaphore.Weighted
	// tokens sizes num_ctx. It counts words when the BPE file is missing.
	tokens  *prompt.Tokenizer

	ai.MetricsRecorder

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	EmbeddingModel   string
	DescriptionModel string
	ExtractionModel  string
	EmbedDimensions  int

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
	Timeout               time.Duration
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGraphOllamaClient connects to the Ollama server at BaseURL (or the
// library default when empty).
func NewGraphOllamaClient(
	params NewGraphOllamaClientParams,
) (*GraphOllamaClient, error) {
	u, err := url.Parse("http://127.0.0.1:11434")
	if err != nil {
		return nil, err
	}
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	headers := map[string]string{}
	if params.ApiKey != "" {
		headers["Authorization"] = "Bearer " + params.ApiKey
	}
	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: headers,
			rt:      http.DefaultTransport,
		},
	}

	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 4
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	extraction := params.ExtractionModel
	if extraction == "" {
		extraction = params.DescriptionModel
	}

	return &GraphOllamaClient{
		embeddingModel:   params.EmbeddingModel,
		descriptionModel: params.DescriptionModel,
		extractionModel:  extraction,
		embedDimensions:  params.EmbedDimensions,

		timeout: timeout,
		reqLock: semaphore.NewWeighted(maxReq),
		tokens:  prompt.NewTokenizer("o200k_base"),

		Client: api.NewClient(u, httpClient),
	}, nil
}

// EmbeddingModel returns the configured embedding model identifier.
func (c *GraphOllamaClient) EmbeddingModel() string {
	return c.embeddingModel
}
