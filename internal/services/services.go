package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/embeddings"
	"github.com/fyrsmithlabs/remedyd/internal/llm"
	"github.com/fyrsmithlabs/remedyd/pkg/gitstage"
	"github.com/fyrsmithlabs/remedyd/pkg/index"
	"github.com/fyrsmithlabs/remedyd/pkg/knowledge"
	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
	"github.com/fyrsmithlabs/remedyd/pkg/pipeline"
	"github.com/fyrsmithlabs/remedyd/pkg/secrets"
)

// Services holds the pipeline collaborators, built once per process.
type Services struct {
	Source    logsource.Source
	Embedder  embeddings.Provider
	Memory    *knowledge.Memory
	Index     *index.Manager
	Completer pipeline.Completer
	Stager    *gitstage.Stager

	cfg    *config.Config
	logger *zap.Logger
}

// New builds all services from the configuration.
//
// The repository index is built eagerly so a bad repo path fails startup
// instead of the first case. On any failure everything built so far is
// closed and a wrapped error is returned.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Services{cfg: cfg, logger: logger}

	source, err := logsource.NewSource(cfg.Source.Provider, logsource.ElasticConfig{
		BaseURL:      cfg.Source.URL,
		IndexPattern: cfg.Source.IndexPattern,
		Username:     cfg.Source.Username,
		Password:     cfg.Source.Password.Value(),
		Timeout:      cfg.Source.Timeout.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create log source: %w", err)
	}
	s.Source = source

	// FastEmbed loads ONNX models; make sure the runtime library is on
	// disk before the provider tries to open it.
	if cfg.Embeddings.Provider == "fastembed" {
		if _, err := embeddings.EnsureONNXRuntime(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare onnx runtime: %w", err)
		}
	}

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey.Value(),
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	s.Embedder = embedder

	logger.Info("Embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.Int("dimension", embedder.Dimension()))

	// The qdrant collection dimensionality must match the embedder; the
	// config value is only an override.
	vectorSize := cfg.Knowledge.VectorSize
	if vectorSize == 0 {
		vectorSize = embedder.Dimension()
	}

	store, err := knowledge.NewStore(knowledge.Config{
		Provider: cfg.Knowledge.Provider,
		Chromem: knowledge.ChromemConfig{
			Path:       cfg.Knowledge.Path,
			Collection: cfg.Knowledge.Collection,
		},
		Qdrant: knowledge.QdrantConfig{
			Host:       cfg.Knowledge.QdrantHost,
			Port:       cfg.Knowledge.QdrantPort,
			Collection: cfg.Knowledge.Collection,
			VectorSize: uint64(vectorSize),
		},
	}, embedder, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create knowledge store: %w", err)
	}

	memory, err := knowledge.NewMemory(store, knowledge.MemoryConfig{Logger: logger})
	if err != nil {
		_ = store.Close()
		s.Close()
		return nil, fmt.Errorf("failed to create fix memory: %w", err)
	}
	s.Memory = memory

	indexOpts := IndexOptions(cfg)
	mgr := index.NewManager(cfg.Pipeline.RepoPath, indexOpts, logger)
	idx, err := mgr.Rebuild(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to build repository index: %w", err)
	}
	s.Index = mgr

	logger.Info("Repository index built",
		zap.String("root", mgr.Root()),
		zap.Int("files", idx.Len()),
		zap.Int("symbols", idx.SymbolCount()))

	completer, err := llm.NewClient(llm.Config{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey.Value(),
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   int(cfg.LLM.Timeout.Duration().Seconds()),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	s.Completer = completer

	allowlist, err := secrets.LoadAllowlist(
		filepath.Join(cfg.Pipeline.RepoPath, ".gitleaks.toml"),
		userAllowlistPath(),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load secrets allowlist: %w", err)
	}
	scanner, err := secrets.NewScanner(allowlist)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create secrets scanner: %w", err)
	}

	stager, err := gitstage.New(gitstage.Config{
		RepoPath:     cfg.Pipeline.RepoPath,
		ExcludedDirs: indexOpts.ExcludedDirs,
		AuthorName:   cfg.Git.AuthorName,
		AuthorEmail:  cfg.Git.AuthorEmail,
		Scanner:      scanner,
		Logger:       logger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	s.Stager = stager

	return s, nil
}

// NewPipeline wires an orchestrator over the held services. The
// orchestrator gets the container's logger and memory; callers append
// progress hooks and other options.
func (s *Services) NewPipeline(extra ...pipeline.Option) (*pipeline.Orchestrator, error) {
	opts := []pipeline.Option{
		pipeline.WithLogger(s.logger),
		pipeline.WithMemory(s.Memory),
	}
	opts = append(opts, extra...)

	return pipeline.New(pipeline.Config{
		RepoPath:             s.cfg.Pipeline.RepoPath,
		MaxCompletionRetries: s.cfg.Pipeline.MaxCompletionRetries,
		RetryBackoff:         s.cfg.Pipeline.RetryBackoff.Duration(),
		RecallLimit:          s.cfg.Pipeline.RecallLimit,
	}, s.Completer, s.Index, s.Stager, opts...)
}

// Close releases every held resource in reverse construction order. Safe
// to call on a partially built container.
func (s *Services) Close() {
	if s.Index != nil {
		s.Index.Stop()
	}
	if s.Memory != nil {
		_ = s.Memory.Close()
	}
	if s.Embedder != nil {
		_ = s.Embedder.Close()
	}
}

// IndexOptions maps index configuration onto build options. The remedy
// CLI uses it to build an index with the same exclusions and limits the
// daemon applies.
func IndexOptions(cfg *config.Config) index.Options {
	opts := index.DefaultOptions()
	if cfg.Index.MaxFileSizeKB > 0 {
		opts.MaxFileSize = int64(cfg.Index.MaxFileSizeKB) * 1024
	}
	if cfg.Index.TopK > 0 {
		opts.TopK = cfg.Index.TopK
	}
	return opts
}

// userAllowlistPath returns the user-level secrets allowlist location,
// empty when the home directory cannot be resolved.
func userAllowlistPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "remedyd", "allowlist.toml")
}
