// Package embeddings turns text into sentence-embedding vectors.
//
// Three providers are available: fastembed runs an ONNX model in-process,
// tei calls a HuggingFace Text Embeddings Inference server, and openai calls
// any OpenAI-compatible /embeddings endpoint. Documents and queries go
// through the same encoder so they share one vector space.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder embeds documents in bulk and queries one at a time.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder that owns resources.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is one of "fastembed", "tei" or "openai".
	Provider string
	Model    string
	// BaseURL is used by tei and openai.
	BaseURL string
	// APIKey is used by openai.
	APIKey string
	// CacheDir is used by fastembed.
	CacheDir string

	Meter  metric.Meter
	Logger *zap.Logger
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	metrics := NewMetrics(cfg.Meter, cfg.Logger)

	switch cfg.Provider {
	case "fastembed", "":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
			Metrics:  metrics,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "tei":
		p, err := NewTEIProvider(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Metrics: metrics,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "openai":
		p, err := NewOpenAIProvider(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Metrics: metrics,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// knownDimensions lists output sizes of common sentence-embedding models.
var knownDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-all-MiniLM-L6-v2":                  384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// detectDimensionFromModel returns the embedding dimension for a model name,
// guessing from the name when the model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	default:
		return 384
	}
}
