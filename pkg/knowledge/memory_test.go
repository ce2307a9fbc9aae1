package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore is a Store with canned search results for exercising hybrid
// recall without a backend.
type stubStore struct {
	added     []*Fix
	matches   []Match
	searchErr error
	closed    bool
	lastQuery string
	lastK     int
}

func (s *stubStore) Add(ctx context.Context, fix *Fix) error {
	s.added = append(s.added, fix)
	return nil
}

func (s *stubStore) SemanticSearch(ctx context.Context, query string, k int) ([]Match, error) {
	s.lastQuery = query
	s.lastK = k
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.matches, nil
}

func (s *stubStore) Count(ctx context.Context) (int, error) { return len(s.added), nil }
func (s *stubStore) HealthCheck(ctx context.Context) error  { return nil }
func (s *stubStore) Close() error                           { s.closed = true; return nil }

func mustFix(t *testing.T, signature, solution string) *Fix {
	t.Helper()
	f, err := NewFix("/srv/app", signature, "", solution)
	require.NoError(t, err)
	return f
}

func TestNewMemory_Validation(t *testing.T) {
	_, err := NewMemory(nil, MemoryConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMemory(&stubStore{}, MemoryConfig{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMemory(&stubStore{}, MemoryConfig{MinScore: 1.5})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMemory(&stubStore{}, MemoryConfig{MinScore: -0.1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewMemory_Defaults(t *testing.T) {
	m, err := NewMemory(&stubStore{}, MemoryConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRecallLimit, m.limit)
	assert.Equal(t, DefaultMinScore, m.minScore)
}

func TestMemory_Record(t *testing.T) {
	store := &stubStore{}
	m, err := NewMemory(store, MemoryConfig{})
	require.NoError(t, err)

	fix := mustFix(t, "KeyError: 'user_id'", "populate user_id before dispatch")
	require.NoError(t, m.Record(context.Background(), fix))
	require.Len(t, store.added, 1)
	assert.Same(t, fix, store.added[0])
}

func TestMemory_RecordRejectsInvalidFix(t *testing.T) {
	store := &stubStore{}
	m, err := NewMemory(store, MemoryConfig{})
	require.NoError(t, err)

	fix := mustFix(t, "KeyError: 'user_id'", "populate user_id before dispatch")
	fix.ID = "bogus"
	assert.ErrorIs(t, m.Record(context.Background(), fix), ErrInvalidFixID)
	assert.Empty(t, store.added)

	assert.Error(t, m.Record(context.Background(), nil))
}

func TestMemory_RecallHybridOrdering(t *testing.T) {
	query := "KeyError: 'user_id'"
	exact := mustFix(t, query, "populate user_id before dispatch")
	distant := mustFix(t, "ValueError: invalid literal for int()", "parse the port as integer")

	store := &stubStore{matches: []Match{
		{Fix: distant, Score: 0.85},
		{Fix: exact, Score: 0.70},
	}}
	m, err := NewMemory(store, MemoryConfig{MinScore: 0.01})
	require.NoError(t, err)

	results, err := m.Recall(context.Background(), query, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The lexically exact signature outranks the higher semantic score.
	assert.Equal(t, exact.ID, results[0].Fix.ID)
	assert.Equal(t, distant.ID, results[1].Fix.ID)
	assert.InDelta(t, 0.70, results[0].SemanticScore, 1e-9)
	assert.InDelta(t, 1.0, results[0].StringScore, 1e-9)

	for _, r := range results {
		assert.InDelta(t, semanticWeight*r.SemanticScore+stringWeight*r.StringScore, r.Score, 1e-12)
	}
}

func TestMemory_RecallThreshold(t *testing.T) {
	query := "KeyError: 'user_id'"
	strong := mustFix(t, query, "populate user_id before dispatch")
	weak := mustFix(t, "completely unrelated words in this line", "restart the scheduler")

	store := &stubStore{matches: []Match{
		{Fix: strong, Score: 0.95},
		{Fix: weak, Score: 0.20},
	}}
	m, err := NewMemory(store, MemoryConfig{})
	require.NoError(t, err)

	results, err := m.Recall(context.Background(), query, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, strong.ID, results[0].Fix.ID)
	assert.GreaterOrEqual(t, results[0].Score, DefaultMinScore)
}

func TestMemory_RecallLimitAndOverfetch(t *testing.T) {
	query := "KeyError: 'user_id'"
	var matches []Match
	for i, score := range []float64{0.9, 0.8, 0.7, 0.6, 0.5} {
		f := mustFix(t, query, "fix variant")
		f.CreatedAt = time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC)
		matches = append(matches, Match{Fix: f, Score: score})
	}

	store := &stubStore{matches: matches}
	m, err := NewMemory(store, MemoryConfig{Limit: 2})
	require.NoError(t, err)

	results, err := m.Recall(context.Background(), query, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 6, store.lastK)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	results, err = m.Recall(context.Background(), query, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 3, store.lastK)
}

func TestMemory_RecallTieBreaks(t *testing.T) {
	query := "connection reset by peer"
	older := &Fix{ID: "b-older", ErrorSignature: query, CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := &Fix{ID: "c-newer", ErrorSignature: query, CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
	sameTime := &Fix{ID: "a-sametime", ErrorSignature: query, CreatedAt: older.CreatedAt}

	store := &stubStore{matches: []Match{
		{Fix: older, Score: 0.8},
		{Fix: newer, Score: 0.8},
		{Fix: sameTime, Score: 0.8},
	}}
	m, err := NewMemory(store, MemoryConfig{})
	require.NoError(t, err)

	results, err := m.Recall(context.Background(), query, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "c-newer", results[0].Fix.ID)
	assert.Equal(t, "a-sametime", results[1].Fix.ID)
	assert.Equal(t, "b-older", results[2].Fix.ID)
}

func TestMemory_RecallSkipsNilFix(t *testing.T) {
	store := &stubStore{matches: []Match{{Fix: nil, Score: 0.99}}}
	m, err := NewMemory(store, MemoryConfig{})
	require.NoError(t, err)

	results, err := m.Recall(context.Background(), "KeyError: 'user_id'", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemory_RecallEmptyQuery(t *testing.T) {
	m, err := NewMemory(&stubStore{}, MemoryConfig{})
	require.NoError(t, err)

	_, err = m.Recall(context.Background(), "", 0)
	assert.Error(t, err)
	_, err = m.Recall(context.Background(), "   ", 0)
	assert.Error(t, err)
}

func TestMemory_RecallPropagatesStoreError(t *testing.T) {
	store := &stubStore{searchErr: errors.New("backend down")}
	m, err := NewMemory(store, MemoryConfig{})
	require.NoError(t, err)

	_, err = m.Recall(context.Background(), "KeyError: 'user_id'", 0)
	assert.ErrorContains(t, err, "backend down")
}

func TestMemory_Passthroughs(t *testing.T) {
	store := &stubStore{}
	m, err := NewMemory(store, MemoryConfig{})
	require.NoError(t, err)

	n, err := m.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, m.HealthCheck(context.Background()))
	assert.NoError(t, m.Close())
	assert.True(t, store.closed)
}
