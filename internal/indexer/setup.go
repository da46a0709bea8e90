package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/graphrag/internal/config"
	"github.com/OFFIS-RIT/graphrag/internal/storage"
	"github.com/OFFIS-RIT/graphrag/pkg/ai"
	"github.com/OFFIS-RIT/graphrag/pkg/ai/ollama"
	"github.com/OFFIS-RIT/graphrag/pkg/ai/openai"
	"github.com/OFFIS-RIT/graphrag/pkg/community"
	"github.com/OFFIS-RIT/graphrag/pkg/embedding"
	"github.com/OFFIS-RIT/graphrag/pkg/graph"
	"github.com/OFFIS-RIT/graphrag/pkg/leaselock"
	"github.com/OFFIS-RIT/graphrag/pkg/loader"
	ioloader "github.com/OFFIS-RIT/graphrag/pkg/loader/io"
	s3loader "github.com/OFFIS-RIT/graphrag/pkg/loader/s3"
	"github.com/OFFIS-RIT/graphrag/pkg/loader/web"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/prompt"
	"github.com/OFFIS-RIT/graphrag/pkg/store"
	"github.com/OFFIS-RIT/graphrag/pkg/store/file"
	pgstore "github.com/OFFIS-RIT/graphrag/pkg/store/pgx"
	"github.com/OFFIS-RIT/graphrag/pkg/vectorstore"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Services holds everything a configured process needs. Close releases
// connections in reverse order of creation.
type Services struct {
	Config  *config.Config
	AI      ai.GraphAIClient
	Cache   *embedding.Cache
	Tables  store.TableStore
	Indexer *Indexer
	Pool    *pgxpool.Pool
	S3      *s3.Client

	closers []func()
}

func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// NewAIClient creates the configured model client, rate limited when a
// limit is set.
func NewAIClient(cfg *config.Config) (ai.GraphAIClient, error) {
	var client ai.GraphAIClient
	switch cfg.AI.Adapter {
	case "ollama":
		c, err := ollama.NewGraphOllamaClient(ollama.NewGraphOllamaClientParams{
			EmbeddingModel:        cfg.AI.EmbeddingModel,
			DescriptionModel:      cfg.AI.DescriptionModel,
			ExtractionModel:       cfg.AI.ExtractionModel,
			EmbedDimensions:       cfg.AI.EmbedDimensions,
			BaseURL:               cfg.AI.ChatURL,
			ApiKey:                cfg.AI.ChatKey,
			MaxConcurrentRequests: cfg.AI.MaxConcurrentRequests,
			Timeout:               cfg.AI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = c
	default:
		client = openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
			EmbeddingModel:        cfg.AI.EmbeddingModel,
			DescriptionModel:      cfg.AI.DescriptionModel,
			ExtractionModel:       cfg.AI.ExtractionModel,
			EmbedDimensions:       cfg.AI.EmbedDimensions,
			EmbeddingURL:          cfg.AI.EmbeddingURL,
			EmbeddingKey:          cfg.AI.EmbeddingKey,
			ChatURL:               cfg.AI.ChatURL,
			ChatKey:               cfg.AI.ChatKey,
			MaxConcurrentRequests: cfg.AI.MaxConcurrentRequests,
			Timeout:               cfg.AI.Timeout,
		})
	}
	if cfg.AI.CompletionRPS > 0 || cfg.AI.EmbeddingRPS > 0 {
		client = ai.NewRateLimitedClient(client, cfg.AI.CompletionRPS, cfg.AI.EmbeddingRPS)
	}
	return ai.WithDefaults(client, generateDefaults(cfg.AI)...), nil
}

func generateDefaults(cfg config.AIConfig) []ai.GenerateOption {
	var opts []ai.GenerateOption
	if cfg.Temperature > 0 {
		opts = append(opts, ai.WithTemperature(cfg.Temperature))
	}
	if cfg.Thinking != "" {
		opts = append(opts, ai.WithThinking(cfg.Thinking))
	}
	if cfg.SystemPrompt != "" {
		opts = append(opts, ai.WithSystemPrompts(cfg.SystemPrompt))
	}
	return opts
}

// NewPool migrates the database and opens a pool with pgvector types
// registered on every connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if err := pgstore.Migrate(dsn); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

// Setup builds all services described by cfg.
func Setup(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	aiClient, err := NewAIClient(cfg)
	if err != nil {
		return nil, err
	}
	s.AI = aiClient

	if cfg.DatabaseURL != "" {
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.Pool = pool
		s.closers = append(s.closers, pool.Close)
	}
	if cfg.S3.Bucket != "" {
		client, err := storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		s.S3 = client
	}

	cacheStore, err := s.embeddingStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	s.Cache = embedding.NewCache(cacheStore,
		embedding.WithModelID(embedding.FromAIClient(aiClient), cfg.EmbeddingModelID()))
	s.closers = append(s.closers, func() {
		if err := s.Cache.Close(); err != nil {
			logger.Warn("[Indexer] Failed to close embedding cache", "err", err)
		}
	})

	tables, err := s.tableStore()
	if err != nil {
		return nil, fmt.Errorf("open table store: %w", err)
	}
	s.Tables = tables

	ix, err := s.newIndexer()
	if err != nil {
		return nil, err
	}
	s.Indexer = ix

	ok = true
	return s, nil
}

func (s *Services) embeddingStore(ctx context.Context) (embedding.Store, error) {
	cfg := s.Config
	switch cfg.Embedding.Cache {
	case "sqlite":
		return embedding.NewSQLiteStore(cfg.Embedding.CacheDir)
	case "postgres":
		return embedding.NewPostgresStore(s.Pool), nil
	case "redis":
		return embedding.NewRedisStore(ctx, embedding.RedisOptions{
			URL: cfg.Embedding.RedisURL,
			TTL: cfg.Embedding.RedisTTL,
		})
	}
	return embedding.NewMemoryStore(), nil
}

func (s *Services) tableStore() (store.TableStore, error) {
	cfg := s.Config
	if cfg.Output.Backend == "postgres" {
		return pgstore.NewTableDBStorage(s.Pool), nil
	}
	if cfg.Output.Dir != "" {
		dir, err := storage.NewDir(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		return file.NewTableFileStorage(dir, ""), nil
	}
	if s.S3 == nil {
		return nil, errors.New("file output to S3 needs a bucket")
	}
	return file.NewTableFileStorage(storage.NewBucket(s.S3, cfg.S3.Bucket), cfg.Output.S3Prefix), nil
}

func (s *Services) vectorFactory() VectorFactory {
	if s.Config.VectorStore.Backend == "pgvector" {
		pool := s.Pool
		return func(graphID, collection string) vectorstore.Store {
			return vectorstore.NewPGVectorStore(pool, graphID, collection)
		}
	}

	var mu sync.Mutex
	stores := map[string]*vectorstore.MemoryStore{}
	return func(graphID, collection string) vectorstore.Store {
		mu.Lock()
		defer mu.Unlock()
		key := graphID + "/" + collection
		if st, ok := stores[key]; ok {
			return st
		}
		st := vectorstore.NewMemoryStore()
		stores[key] = st
		return st
	}
}

func (s *Services) newIndexer() (*Indexer, error) {
	cfg := s.Config
	tokens := prompt.NewTokenizer(cfg.AI.TokenEncoding)

	graphClient, err := graph.NewGraphClient(graph.NewGraphClientParams{
		TokenEncoder:       cfg.AI.TokenEncoding,
		ChunkSize:          cfg.Chunking.Size,
		ChunkOverlap:       cfg.Chunking.Overlap,
		ParallelAiRequests: cfg.Parallel,
		MaxRetries:         cfg.MaxRetries,
		RetryDelay:         cfg.RetryDelay,
		EntityTypes:        cfg.Prompts.EntityTypes,
		ExtractPrompt:      prompt.NewExtract(cfg.Prompts.Extract, cfg.Prompts.ExtractFile),
	})
	if err != nil {
		return nil, fmt.Errorf("extraction prompt: %w", err)
	}

	summarizer, err := graph.NewSummarizer(s.AI, graph.SummarizerParams{
		Prompt:         prompt.NewSummarize(cfg.Prompts.Summarize, cfg.Prompts.SummarizeFile),
		Tokenizer:      tokens,
		MaxInputTokens: cfg.Summarize.MaxInputTokens,
		Parallel:       cfg.Parallel,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("summarize prompt: %w", err)
	}

	reports, err := community.NewGenerator(s.AI, community.GeneratorParams{
		Prompt:         prompt.NewReport(cfg.Prompts.Report, cfg.Prompts.ReportFile),
		Tokenizer:      tokens,
		MaxInputTokens: cfg.Community.ReportMaxInputTokens,
		Parallel:       cfg.Parallel,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("report prompt: %w", err)
	}

	var locker Locker
	if s.Pool != nil {
		locker = leaselock.New(s.Pool)
	}

	return New(Params{
		AI:         s.AI,
		Graph:      graphClient,
		Summarizer: summarizer,
		Detector: community.Detector{
			MaxLevels:      cfg.Community.MaxLevels,
			MaxClusterSize: cfg.Community.MaxClusterSize,
			Seed:           cfg.Community.Seed,
		},
		Reports:  reports,
		Embedder: s.Cache,
		Vectors:  s.vectorFactory(),
		Collections: CollectionNames{
			Entities:      cfg.VectorStore.EntitiesCollection,
			Relationships: cfg.VectorStore.RelationshipsCollection,
			TextUnits:     cfg.VectorStore.TextUnitsCollection,
		},
		Tables:          s.Tables,
		Locker:          locker,
		LockOptions:     leaselock.Options{TTL: cfg.LockTTL, TokenPrefix: "indexer-"},
		Parallel:        cfg.Parallel,
		MaxFailureRatio: cfg.MaxFailureRatio,
	})
}

// Refs lists the documents of the configured inputs: files below the input
// dir, objects below the S3 prefix and the URLs.
func (s *Services) Refs(ctx context.Context, in config.InputConfig) ([]loader.DocumentRef, error) {
	var refs []loader.DocumentRef
	if in.Dir != "" {
		dirRefs, err := ioloader.NewIOSource().Dir(in.Dir)
		if err != nil {
			return nil, fmt.Errorf("list input dir: %w", err)
		}
		refs = append(refs, dirRefs...)
	}
	if in.S3Prefix != "" {
		if s.S3 == nil {
			return nil, errors.New("s3 input needs a bucket")
		}
		s3Refs, err := s3loader.NewS3Source(s.Config.S3.Bucket, s.S3).Prefix(ctx, in.S3Prefix)
		if err != nil {
			return nil, fmt.Errorf("list s3 input: %w", err)
		}
		refs = append(refs, s3Refs...)
	}
	if len(in.URLs) > 0 {
		refs = append(refs, web.NewWebSource(nil).Refs(in.URLs...)...)
	}
	return refs, nil
}
