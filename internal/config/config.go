// Package config loads the indexing configuration from an optional YAML
// file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/OFFIS-RIT/graphrag/internal/storage"
	"github.com/OFFIS-RIT/graphrag/internal/util"

	"github.com/go-playground/validator"
	"gopkg.in/yaml.v3"
)

// Task selects what a run does. Only indexing is implemented.
type Task string

const TaskIndexing Task = "indexing"

var ErrUnsupportedTask = errors.New("unsupported task")

// ParseTask maps a task name to a Task. Unknown names fail with
// ErrUnsupportedTask.
func ParseTask(name string) (Task, error) {
	switch Task(strings.ToLower(strings.TrimSpace(name))) {
	case TaskIndexing, "":
		return TaskIndexing, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedTask, name)
}

type Config struct {
	Task    Task   `yaml:"task"`
	GraphID string `yaml:"graph_id"`

	Input       InputConfig       `yaml:"input"`
	AI          AIConfig          `yaml:"ai"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Output      OutputConfig      `yaml:"output"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Summarize   SummarizeConfig   `yaml:"summarize"`
	Community   CommunityConfig   `yaml:"community"`
	Prompts     PromptsConfig     `yaml:"prompts"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`

	DatabaseURL string           `yaml:"database_url"`
	QueueURL    string           `yaml:"queue_url"`
	S3          storage.S3Params `yaml:"s3"`

	Parallel        int           `yaml:"parallel" validate:"min=1"`
	MaxRetries      int           `yaml:"max_retries" validate:"min=0"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	MaxFailureRatio float64       `yaml:"max_failure_ratio" validate:"gte=0,lte=1"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

// InputConfig lists document sources. Dir and S3Prefix are walked for
// supported files, URLs are fetched as is.
type InputConfig struct {
	Dir      string   `yaml:"dir"`
	S3Prefix string   `yaml:"s3_prefix"`
	URLs     []string `yaml:"urls"`
}

type AIConfig struct {
	Adapter          string `yaml:"adapter" validate:"oneof=openai ollama"`
	ChatURL          string `yaml:"chat_url"`
	ChatKey          string `yaml:"chat_key"`
	EmbeddingURL     string `yaml:"embedding_url"`
	EmbeddingKey     string `yaml:"embedding_key"`
	DescriptionModel string `yaml:"description_model" validate:"required"`
	ExtractionModel  string `yaml:"extraction_model"`
	EmbeddingModel   string `yaml:"embedding_model" validate:"required"`
	EmbedDimensions  int    `yaml:"embed_dimensions" validate:"min=0"`
	TokenEncoding    string `yaml:"token_encoding"`

	// Temperature 0 keeps the adapter's per-call default.
	Temperature  float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	Thinking     string  `yaml:"thinking" validate:"omitempty,oneof=low medium high"`
	SystemPrompt string  `yaml:"system_prompt"`

	MaxConcurrentRequests int64         `yaml:"max_concurrent_requests" validate:"min=0"`
	Timeout               time.Duration `yaml:"timeout"`
	CompletionRPS         float64       `yaml:"completion_rps" validate:"min=0"`
	EmbeddingRPS          float64       `yaml:"embedding_rps" validate:"min=0"`
}

// EmbeddingConfig selects the durable embedding cache. ModelID defaults to
// the embedding model name.
type EmbeddingConfig struct {
	ModelID  string        `yaml:"model_id"`
	Cache    string        `yaml:"cache" validate:"oneof=memory sqlite postgres redis"`
	CacheDir string        `yaml:"cache_dir"`
	RedisURL string        `yaml:"redis_url"`
	RedisTTL time.Duration `yaml:"redis_ttl"`
}

type VectorStoreConfig struct {
	Backend                 string `yaml:"backend" validate:"oneof=memory pgvector"`
	EntitiesCollection      string `yaml:"entities_collection" validate:"required"`
	RelationshipsCollection string `yaml:"relationships_collection" validate:"required"`
	TextUnitsCollection     string `yaml:"text_units_collection" validate:"required"`
}

// OutputConfig selects where the index tables go. The file backend writes
// to Dir, or to S3Prefix in the configured bucket when Dir is empty.
type OutputConfig struct {
	Backend  string `yaml:"backend" validate:"oneof=postgres file"`
	Dir      string `yaml:"dir"`
	S3Prefix string `yaml:"s3_prefix"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size" validate:"min=1"`
	Overlap int `yaml:"overlap" validate:"min=0"`
}

type SummarizeConfig struct {
	MaxInputTokens int `yaml:"max_input_tokens" validate:"min=1"`
}

// CommunityConfig tunes detection and reports. Seed 0 picks a random seed
// per run.
type CommunityConfig struct {
	Seed                 int64 `yaml:"seed"`
	MaxLevels            int   `yaml:"max_levels" validate:"min=1"`
	MaxClusterSize       int   `yaml:"max_cluster_size" validate:"min=1"`
	ReportMaxInputTokens int   `yaml:"report_max_input_tokens" validate:"min=1"`
}

// PromptsConfig overrides the built-in templates, inline text first.
type PromptsConfig struct {
	Extract       string   `yaml:"extract"`
	ExtractFile   string   `yaml:"extract_file"`
	Summarize     string   `yaml:"summarize"`
	SummarizeFile string   `yaml:"summarize_file"`
	Report        string   `yaml:"report"`
	ReportFile    string   `yaml:"report_file"`
	EntityTypes   []string `yaml:"entity_types"`
}

type ServerConfig struct {
	Port         string `yaml:"port"`
	MasterAPIKey string `yaml:"master_api_key"`
	AuthURL      string `yaml:"auth_url"`
}

type LogConfig struct {
	Debug bool   `yaml:"debug"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"`
}

// Default returns the configuration used for every field the file and the
// environment leave unset.
func Default() Config {
	return Config{
		Task: TaskIndexing,
		AI: AIConfig{
			Adapter:       "openai",
			TokenEncoding: "o200k_base",
		},
		Embedding: EmbeddingConfig{
			Cache:    "sqlite",
			CacheDir: ".graphrag/cache",
		},
		VectorStore: VectorStoreConfig{
			Backend:                 "memory",
			EntitiesCollection:      "entities",
			RelationshipsCollection: "relationships",
			TextUnitsCollection:     "text_units",
		},
		Output: OutputConfig{
			Backend: "file",
			Dir:     ".graphrag/output",
		},
		Chunking:  ChunkingConfig{Size: 1200, Overlap: 100},
		Summarize: SummarizeConfig{MaxInputTokens: 4000},
		Community: CommunityConfig{
			MaxLevels:            4,
			MaxClusterSize:       10,
			ReportMaxInputTokens: 8000,
		},
		Server:          ServerConfig{Port: "8080"},
		Parallel:        8,
		MaxRetries:      3,
		RetryDelay:      time.Second,
		MaxFailureRatio: 0.5,
		LockTTL:         5 * time.Minute,
	}
}

// Load reads path (optional), applies environment overrides and validates
// the result. .env files are loaded first.
func Load(path string) (*Config, error) {
	util.LoadEnv()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML on top of cfg. Unknown keys are an error.
func Parse(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := util.GetEnv(key); v != "" {
		*dst = v
	}
}

func applyEnv(cfg *Config) {
	if v := util.GetEnv("GRAPHRAG_TASK"); v != "" {
		cfg.Task = Task(v)
	}
	setString(&cfg.GraphID, "GRAPH_ID")
	setString(&cfg.Input.Dir, "GRAPHRAG_INPUT_DIR")
	cfg.Input.URLs = util.GetEnvList("GRAPHRAG_INPUT_URLS", cfg.Input.URLs)
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.QueueURL, "RABBITMQ_URL")

	setString(&cfg.AI.Adapter, "AI_ADAPTER")
	setString(&cfg.AI.ChatURL, "AI_CHAT_URL")
	setString(&cfg.AI.ChatKey, "AI_CHAT_KEY")
	setString(&cfg.AI.EmbeddingURL, "AI_EMBED_URL")
	setString(&cfg.AI.EmbeddingKey, "AI_EMBED_KEY")
	setString(&cfg.AI.DescriptionModel, "AI_DESCRIPTION_MODEL")
	setString(&cfg.AI.ExtractionModel, "AI_EXTRACTION_MODEL")
	setString(&cfg.AI.EmbeddingModel, "AI_EMBED_MODEL")
	setString(&cfg.AI.Thinking, "AI_THINKING")
	cfg.AI.MaxConcurrentRequests = int64(util.GetEnvInt("AI_PARALLEL_REQ", int(cfg.AI.MaxConcurrentRequests)))
	cfg.AI.Timeout = util.GetEnvDuration("AI_TIMEOUT", cfg.AI.Timeout)
	cfg.AI.Temperature = util.GetEnvFloat("AI_TEMPERATURE", cfg.AI.Temperature)
	cfg.AI.CompletionRPS = util.GetEnvFloat("AI_COMPLETION_RPS", cfg.AI.CompletionRPS)
	cfg.AI.EmbeddingRPS = util.GetEnvFloat("AI_EMBED_RPS", cfg.AI.EmbeddingRPS)

	setString(&cfg.Embedding.Cache, "EMBEDDING_CACHE")
	setString(&cfg.Embedding.CacheDir, "EMBEDDING_CACHE_DIR")
	setString(&cfg.Embedding.RedisURL, "REDIS_URL")

	setString(&cfg.S3.Region, "AWS_REGION")
	setString(&cfg.S3.Endpoint, "AWS_ENDPOINT")
	setString(&cfg.S3.AccessKey, "AWS_ACCESS_KEY")
	setString(&cfg.S3.SecretKey, "AWS_SECRET_KEY")
	setString(&cfg.S3.Bucket, "AWS_BUCKET")

	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.MasterAPIKey, "MASTER_API_KEY")
	setString(&cfg.Server.AuthURL, "AUTH_URL")

	cfg.Log.Debug = util.GetEnvBool("DEBUG", cfg.Log.Debug)
	cfg.Parallel = util.GetEnvInt("GRAPHRAG_PARALLEL", cfg.Parallel)
}

// Validate checks field constraints and the dependencies between backends.
func (c *Config) Validate() error {
	task, err := ParseTask(string(c.Task))
	if err != nil {
		return err
	}
	c.Task = task

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, errors.New("chunking.overlap must be smaller than chunking.size"))
	}
	needsDB := c.Embedding.Cache == "postgres" || c.VectorStore.Backend == "pgvector" || c.Output.Backend == "postgres"
	if needsDB && c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required for postgres backed stores"))
	}
	if c.Embedding.Cache == "redis" && c.Embedding.RedisURL == "" {
		errs = append(errs, errors.New("embedding.redis_url is required for the redis cache"))
	}
	if c.Embedding.Cache == "sqlite" && c.Embedding.CacheDir == "" {
		errs = append(errs, errors.New("embedding.cache_dir is required for the sqlite cache"))
	}
	if c.Output.Backend == "file" && c.Output.Dir == "" && c.Output.S3Prefix == "" {
		errs = append(errs, errors.New("output.dir or output.s3_prefix is required for the file backend"))
	}
	usesS3 := c.Input.S3Prefix != "" || (c.Output.Backend == "file" && c.Output.Dir == "" && c.Output.S3Prefix != "")
	if usesS3 && c.S3.Bucket == "" {
		errs = append(errs, errors.New("s3.bucket is required when reading or writing S3"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireGraph fails when no graph id is set. Workers and the server get
// graph ids per request and skip it.
func (c *Config) RequireGraph() error {
	if strings.TrimSpace(c.GraphID) == "" {
		return errors.New("invalid config: graph_id is required")
	}
	return nil
}

// HasInput reports whether any document source is configured.
func (c *Config) HasInput() bool {
	return c.Input.Dir != "" || c.Input.S3Prefix != "" || len(c.Input.URLs) > 0
}

// EmbeddingModelID is the cache namespace of embeddings.
func (c *Config) EmbeddingModelID() string {
	if c.Embedding.ModelID != "" {
		return c.Embedding.ModelID
	}
	return c.AI.Adapter + ":" + c.AI.EmbeddingModel
}
