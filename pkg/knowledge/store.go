// Package knowledge stores completed fixes and recalls them for similar
// errors. Recall is hybrid: semantic similarity from a vector store backend
// combined with string similarity between error signatures.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("remedyd/knowledge")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrCorruptRecord indicates a stored fix that can no longer be decoded.
	ErrCorruptRecord = errors.New("stored fix record is corrupt")
)

// Payload keys shared by all backends. The full fix travels as one JSON
// value; signature, type and project are duplicated as plain keys so the
// backend can filter on them.
const (
	payloadKeyFix         = "fix"
	payloadKeyErrorType   = "error_type"
	payloadKeyProjectPath = "project_path"
	payloadKeyCreatedAt   = "created_at"
)

// maxQueryLength caps recall query size to prevent oversized requests.
const maxQueryLength = 10000

// Embedder generates vector embeddings from text.
//
// EmbedDocuments embeds passages for storage, EmbedQuery embeds a search
// query. Implementations live in internal/embeddings and are injected at
// wiring time.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Match is a raw semantic hit returned by a backend before hybrid scoring.
type Match struct {
	Fix *Fix

	// Score is cosine similarity against the query embedding.
	Score float64
}

// Store persists fixes and retrieves semantic candidates. Hybrid scoring
// happens in Memory, above the backend.
type Store interface {
	// Add persists a validated fix.
	Add(ctx context.Context, fix *Fix) error

	// SemanticSearch returns up to k fixes nearest to the query text,
	// best first.
	SemanticSearch(ctx context.Context, query string, k int) ([]Match, error)

	// Count reports how many fixes are stored.
	Count(ctx context.Context) (int, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

func validateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidConfig)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, name)
	}
	return nil
}
