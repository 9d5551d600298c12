// Package memconfig is the ambient configuration surface for the memory
// pipeline: ingest limits, chunking/retry/retrieval defaults, and the
// embedding dimension. It is a mutex-protected global singleton, loaded
// once at startup, accessed thereafter only by value (GetConfig returns
// a copy, never the live pointer) so callers can't mutate shared state
// behind each other's back.
package memconfig

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ChunkingConfig mirrors the chunking.* environment-level settings.
type ChunkingConfig struct {
	MaxTokensPerChunk         int     `yaml:"max_tokens_per_chunk"`
	OverlapTokens             int     `yaml:"overlap_tokens"`
	OverlapPercentage         float64 `yaml:"overlap_percentage"`
	MinChunkSize              int     `yaml:"min_chunk_size"`
	Strategy                  string  `yaml:"strategy"`
	PreserveMessageBoundaries bool    `yaml:"preserve_message_boundaries"`
}

// RetryConfig mirrors the retry.* environment-level settings.
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// RetrievalConfig mirrors the retrieval.* environment-level settings.
type RetrievalConfig struct {
	K                  int     `yaml:"k"`
	TokenBudget        int     `yaml:"token_budget"`
	FactBoostFactor    float64 `yaml:"fact_boost_factor"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// EmbeddingConfig mirrors the embedding.* environment-level settings.
type EmbeddingConfig struct {
	Dimension int `yaml:"dimension"`
}

// Config is the full environment-level configuration surface.
type Config struct {
	MaxFileSize              int64            `yaml:"max_file_size"`
	MaxConversationsPerFile  int              `yaml:"max_conversations_per_file"`
	EnableAutoDetection      bool             `yaml:"enable_auto_detection"`
	TokenCountMethod         string           `yaml:"token_count_method"`
	Chunking                 ChunkingConfig   `yaml:"chunking"`
	Retry                    RetryConfig      `yaml:"retry"`
	Retrieval                RetrievalConfig  `yaml:"retrieval"`
	Embedding                EmbeddingConfig  `yaml:"embedding"`
}

const (
	defaultMaxFileSize             = 50 * 1024 * 1024 // 50 MiB
	defaultMaxConversationsPerFile = 1000
	defaultMaxTokensPerChunk       = 2000
	defaultOverlapPercentage       = 0.1
	defaultMinChunkSize            = 400
	defaultMaxRetries              = 3
	defaultInitialDelay            = 1 * time.Second
	defaultMaxDelay                = 30 * time.Second
	defaultBackoffMultiplier       = 2.0
	defaultK                       = 20
	defaultTokenBudget             = 1000
	defaultFactBoostFactor         = 1.5
	defaultSimilarityThreshold     = 0.85
	defaultEmbeddingDimension      = 384
)

// Default returns the out-of-the-box configuration.
func Default() Config {
	return Config{
		MaxFileSize:             defaultMaxFileSize,
		MaxConversationsPerFile: defaultMaxConversationsPerFile,
		EnableAutoDetection:     true,
		TokenCountMethod:        "approximate",
		Chunking: ChunkingConfig{
			MaxTokensPerChunk: defaultMaxTokensPerChunk,
			OverlapPercentage: defaultOverlapPercentage,
			MinChunkSize:      defaultMinChunkSize,
			Strategy:          "sliding-window",
		},
		Retry: RetryConfig{
			MaxRetries:        defaultMaxRetries,
			InitialDelay:      defaultInitialDelay,
			MaxDelay:          defaultMaxDelay,
			BackoffMultiplier: defaultBackoffMultiplier,
		},
		Retrieval: RetrievalConfig{
			K:                   defaultK,
			TokenBudget:         defaultTokenBudget,
			FactBoostFactor:     defaultFactBoostFactor,
			SimilarityThreshold: defaultSimilarityThreshold,
		},
		Embedding: EmbeddingConfig{Dimension: defaultEmbeddingDimension},
	}
}

// applyDefaults fills any zero-valued field left unset by the loaded
// file, field by field, so a partial config file is valid.
func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = d.MaxFileSize
	}
	if cfg.MaxConversationsPerFile == 0 {
		cfg.MaxConversationsPerFile = d.MaxConversationsPerFile
	}
	if cfg.TokenCountMethod == "" {
		cfg.TokenCountMethod = d.TokenCountMethod
	}
	if cfg.Chunking.MaxTokensPerChunk == 0 {
		cfg.Chunking.MaxTokensPerChunk = d.Chunking.MaxTokensPerChunk
	}
	if cfg.Chunking.OverlapPercentage == 0 && cfg.Chunking.OverlapTokens == 0 {
		cfg.Chunking.OverlapPercentage = d.Chunking.OverlapPercentage
	}
	if cfg.Chunking.MinChunkSize == 0 {
		cfg.Chunking.MinChunkSize = d.Chunking.MinChunkSize
	}
	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = d.Chunking.Strategy
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = d.Retry.MaxRetries
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = d.Retry.InitialDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if cfg.Retry.BackoffMultiplier == 0 {
		cfg.Retry.BackoffMultiplier = d.Retry.BackoffMultiplier
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = d.Retrieval.K
	}
	if cfg.Retrieval.TokenBudget == 0 {
		cfg.Retrieval.TokenBudget = d.Retrieval.TokenBudget
	}
	if cfg.Retrieval.FactBoostFactor == 0 {
		cfg.Retrieval.FactBoostFactor = d.Retrieval.FactBoostFactor
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = d.Retrieval.SimilarityThreshold
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = d.Embedding.Dimension
	}
}

//nolint:gochecknoglobals // intentional process-wide singleton
var (
	global Config = Default()
	mu     sync.RWMutex
)

// Load reads a YAML config file from path, applies defaults to any field
// left unset, and installs it as the global config. Callers that don't need
// a file can skip Load entirely; GetConfig then returns Default().
func Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	applyDefaults(&cfg)

	mu.Lock()
	global = cfg
	mu.Unlock()
	return nil
}

// GetConfig returns a copy of the current global config; callers must not
// rely on mutating it to affect the process-wide configuration.
func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// SetConfig installs cfg as the global config directly, bypassing file
// loading — used by tests and by callers that assemble configuration from
// another source (flags, environment variables).
func SetConfig(cfg Config) {
	mu.Lock()
	global = cfg
	mu.Unlock()
}
