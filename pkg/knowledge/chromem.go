package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ChromemConfig configures the embedded chromem backend.
type ChromemConfig struct {
	// Path is the directory holding the persistent database.
	// A leading ~ expands to the user's home directory.
	Path string

	// Collection is the collection fixes are stored in.
	// Default: "fixes"
	Collection string

	// Compress enables gzip compression of persisted records.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "fixes"
	}
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	return validateCollectionName(c.Collection)
}

// ChromemStore persists fixes in an embedded chromem-go database. It needs
// no external services; every write lands on local disk immediately.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore opens (or creates) the database under config.Path.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("chromem fix store initialized",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.String("collection", config.Collection),
	)
	return store, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// createEmbeddingFunc adapts our Embedder to chromem's query-time hook.
func (s *ChromemStore) createEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

func (s *ChromemStore) collection() (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.createEmbeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", s.config.Collection, err)
	}
	return col, nil
}

// Add persists a fix. Only the error signature is embedded: recall queries
// are signatures, so solution text must not pull in unrelated errors that
// merely share a remedy.
func (s *ChromemStore) Add(ctx context.Context, fix *Fix) error {
	ctx, span := tracer.Start(ctx, "ChromemStore.Add")
	defer span.End()

	if fix == nil {
		return fmt.Errorf("fix cannot be nil")
	}
	if err := fix.Validate(); err != nil {
		return err
	}

	col, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return err
	}

	encoded, err := encodeFix(fix)
	if err != nil {
		span.RecordError(err)
		return err
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, []string{fix.ErrorSignature})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("%w: empty embedding batch", ErrEmbeddingFailed)
	}

	doc := chromem.Document{
		ID:      fix.ID,
		Content: fix.ErrorSignature,
		Metadata: map[string]string{
			payloadKeyFix:         encoded,
			payloadKeyErrorType:   fix.ErrorType,
			payloadKeyProjectPath: fix.ProjectPath,
		},
		Embedding: embeddings[0],
	}

	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding fix %s: %w", fix.ID, err)
	}

	span.SetAttributes(attribute.String("fix_id", fix.ID))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("stored fix",
		zap.String("id", fix.ID),
		zap.String("collection", s.config.Collection),
	)
	return nil
}

// SemanticSearch returns up to k fixes nearest to the query text.
func (s *ChromemStore) SemanticSearch(ctx context.Context, query string, k int) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.SemanticSearch")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if len(query) > maxQueryLength {
		return nil, fmt.Errorf("query exceeds maximum length of %d characters", maxQueryLength)
	}

	col, err := s.collection()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// chromem requires nResults <= document count.
	count := col.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		fix, err := decodeFix(r.Metadata[payloadKeyFix])
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("fix %s: %w", r.ID, err)
		}
		matches = append(matches, Match{Fix: fix, Score: float64(r.Similarity)})
	}

	span.SetAttributes(attribute.Int("results", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Count reports how many fixes are stored.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	col, err := s.collection()
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// HealthCheck verifies the database is usable by touching the collection.
func (s *ChromemStore) HealthCheck(ctx context.Context) error {
	_, err := s.collection()
	return err
}

// Close is a no-op. chromem persists on every write and holds no
// connections.
func (s *ChromemStore) Close() error {
	return nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
