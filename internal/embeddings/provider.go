// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/remedyd/pkg/knowledge"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrFastEmbedNotAvailable is returned when FastEmbed is not available
	// (requires CGO).
	ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support, use the openai provider instead)")
)

// defaultModel is used when no embedding model is configured.
const defaultModel = "BAAI/bge-small-en-v1.5"

// Provider is the interface for embedding providers.
type Provider interface {
	knowledge.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Provider is the provider type: "fastembed" or "openai".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the endpoint for the openai provider. Any OpenAI-compatible
	// server works, including TEI.
	BaseURL string
	// APIKey authenticates hosted endpoints (optional for TEI).
	APIKey string
	// CacheDir is the model cache directory (only used for FastEmbed).
	CacheDir string
	// MaxLength is the maximum input sequence length (only used for FastEmbed).
	MaxLength int
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			MaxLength: cfg.MaxLength,
		})
	case "openai":
		return newOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// embeddingDimensions maps known embedding models to their dimensions.
var embeddingDimensions = map[string]int{
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-large-en-v1.5":                 1024,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"Alibaba-NLP/gte-base-en-v1.5":           768,
}

// detectDimension returns the embedding dimension for a model name.
// Falls back to family-name heuristics for unlisted models.
func detectDimension(model string) int {
	if dim, ok := embeddingDimensions[model]; ok {
		return dim
	}
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384 // Safe default for bge-small
	}
}
