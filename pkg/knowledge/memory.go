package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Default recall parameters.
const (
	DefaultRecallLimit = 5
	DefaultMinScore    = 0.6
)

// overfetchFactor widens the semantic candidate pool before hybrid
// re-scoring reorders it, capped at maxCandidates per query.
const (
	overfetchFactor = 3
	maxCandidates   = 50
)

// SearchResult is a recalled fix with its hybrid score and both component
// scores.
type SearchResult struct {
	Fix           *Fix    `json:"fix"`
	Score         float64 `json:"score"`
	SemanticScore float64 `json:"semantic_score"`
	StringScore   float64 `json:"string_score"`
}

// MemoryConfig configures hybrid recall. Zero values mean defaults.
type MemoryConfig struct {
	// MinScore drops results whose hybrid score falls below it.
	// Default 0.6.
	MinScore float64

	// Limit caps how many results Recall returns. Default 5.
	Limit int

	// Logger receives recall diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Memory records completed fixes and recalls them for similar errors.
// Candidates come from the backend's semantic search and are re-scored as
// semanticWeight*cosine + stringWeight*signature similarity.
type Memory struct {
	store    Store
	minScore float64
	limit    int
	logger   *zap.Logger
	metrics  *Metrics
}

// NewMemory creates a Memory on top of a store backend.
func NewMemory(store Store, cfg MemoryConfig) (*Memory, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidConfig)
	}
	if cfg.Limit == 0 {
		cfg.Limit = DefaultRecallLimit
	}
	if cfg.MinScore < 0 || cfg.MinScore > 1 {
		return nil, fmt.Errorf("%w: min score must be in [0, 1]", ErrInvalidConfig)
	}
	if cfg.MinScore == 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Memory{
		store:    store,
		minScore: cfg.MinScore,
		limit:    cfg.Limit,
		logger:   cfg.Logger,
		metrics:  NewMetrics(),
	}, nil
}

// Record validates a fix and persists it.
func (m *Memory) Record(ctx context.Context, fix *Fix) error {
	ctx, span := tracer.Start(ctx, "knowledge.Record")
	defer span.End()

	if fix == nil {
		return fmt.Errorf("fix cannot be nil")
	}
	if err := fix.Validate(); err != nil {
		return err
	}

	if err := m.store.Add(ctx, fix); err != nil {
		span.RecordError(err)
		return err
	}

	m.metrics.RecordFix()
	span.SetAttributes(attribute.String("fix_id", fix.ID))
	m.logger.Debug("recorded fix",
		zap.String("id", fix.ID),
		zap.String("error_type", fix.ErrorType),
	)
	return nil
}

// Recall returns fixes for errors similar to the given signature, best
// first. A limit <= 0 uses the configured default. Results below the
// configured minimum hybrid score are dropped.
func (m *Memory) Recall(ctx context.Context, signature string, limit int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Recall")
	defer span.End()

	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, fmt.Errorf("signature cannot be empty")
	}
	if limit <= 0 {
		limit = m.limit
	}

	k := limit * overfetchFactor
	if k > maxCandidates {
		k = maxCandidates
	}
	span.SetAttributes(attribute.Int("limit", limit), attribute.Int("k", k))

	matches, err := m.store.SemanticSearch(ctx, signature, k)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		if match.Fix == nil {
			continue
		}
		sem := clamp01(match.Score)
		str := stringSimilarity(signature, match.Fix.ErrorSignature)
		score := semanticWeight*sem + stringWeight*str
		if score < m.minScore {
			continue
		}
		results = append(results, SearchResult{
			Fix:           match.Fix,
			Score:         score,
			SemanticScore: sem,
			StringScore:   str,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Fix.CreatedAt.Equal(results[j].Fix.CreatedAt) {
			return results[i].Fix.CreatedAt.After(results[j].Fix.CreatedAt)
		}
		return results[i].Fix.ID < results[j].Fix.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	top := 0.0
	if len(results) > 0 {
		top = results[0].Score
	}
	m.metrics.RecordRecall(len(results), top)
	span.SetAttributes(attribute.Int("results", len(results)))
	m.logger.Debug("recall complete",
		zap.Int("candidates", len(matches)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Count reports how many fixes the backend holds.
func (m *Memory) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// HealthCheck verifies the backend is reachable.
func (m *Memory) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}

// Close releases the backend.
func (m *Memory) Close() error {
	return m.store.Close()
}
