package knowledge

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a fix store backend.
type Config struct {
	// Provider selects the backend: "chromem" (default) or "qdrant".
	Provider string

	Chromem ChromemConfig
	Qdrant  QdrantConfig
}

// NewStore creates a fix store for the configured provider.
//
// The chromem provider (default) is embedded and persists to local disk
// with no external dependencies. The qdrant provider talks to an external
// Qdrant server over gRPC.
func NewStore(cfg Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(cfg.Chromem, embedder, logger)
	case "qdrant":
		return NewQdrantStore(cfg.Qdrant, embedder)
	default:
		return nil, fmt.Errorf("unsupported knowledge store provider: %s (supported: chromem, qdrant)", cfg.Provider)
	}
}
