package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewStore_DefaultsToChromem(t *testing.T) {
	store, err := NewStore(Config{Chromem: ChromemConfig{Path: t.TempDir()}}, newTestEmbedder(), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, store)
	assert.NoError(t, store.Close())
}

func TestNewStore_ExplicitChromem(t *testing.T) {
	store, err := NewStore(Config{Provider: "chromem", Chromem: ChromemConfig{Path: t.TempDir()}}, newTestEmbedder(), zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, store)
}

func TestNewStore_QdrantValidatesConfig(t *testing.T) {
	_, err := NewStore(Config{Provider: "qdrant"}, newTestEmbedder(), zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewStore_UnsupportedProvider(t *testing.T) {
	_, err := NewStore(Config{Provider: "redis"}, newTestEmbedder(), zap.NewNop())
	assert.ErrorContains(t, err, "unsupported knowledge store provider")
}
