package graph

import (
	"text/template"
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/prompt"
)

// GraphClient builds a knowledge graph from documents. It manages token
// counting, chunking, and the number of concurrent AI requests.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	tokens             *prompt.Tokenizer
	chunk              ChunkOptions
	parallelAiRequests int
	maxRetries         int
	retryDelay         time.Duration
	entityTypes        []string
	extractPrompt      *template.Template
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// TokenEncoder names the tiktoken encoding used for chunking.
// ParallelAiRequests bounds concurrent extraction calls.
// EntityTypes defaults to prompt.DefaultEntityTypes.
type NewGraphClientParams struct {
	TokenEncoder       string
	ChunkSize          int
	ChunkOverlap       int
	ParallelAiRequests int
	MaxRetries         int
	RetryDelay         time.Duration
	EntityTypes        []string
	ExtractPrompt      *prompt.Builder
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		TokenEncoder:       "o200k_base",
//		ChunkSize:          1200,
//		ParallelAiRequests: 25,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	parallel := params.ParallelAiRequests
	if parallel <= 0 {
		parallel = 8
	}
	b := params.ExtractPrompt
	if b == nil {
		b = prompt.NewExtract("", "")
	}
	tmpl, err := b.Build()
	if err != nil {
		return nil, err
	}

	return &GraphClient{
		tokens: prompt.NewTokenizer(params.TokenEncoder),
		chunk: ChunkOptions{
			MaxTokens:     params.ChunkSize,
			OverlapTokens: params.ChunkOverlap,
		},
		parallelAiRequests: parallel,
		maxRetries:         maxRetries,
		retryDelay:         params.RetryDelay,
		entityTypes:        params.EntityTypes,
		extractPrompt:      tmpl,
	}, nil
}

// Tokenizer returns the tokenizer used for chunking.
func (g *GraphClient) Tokenizer() *prompt.Tokenizer {
	return g.tokens
}
