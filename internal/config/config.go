// Package config provides configuration loading for remedyd.
//
// Configuration is layered: YAML file under ~/.config/remedyd/, then
// REMEDYD_-prefixed environment variables, then hardcoded defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds the complete remedyd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Source     SourceConfig     `koanf:"source"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	LLM        LLMConfig        `koanf:"llm"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Knowledge  KnowledgeConfig  `koanf:"knowledge"`
	Index      IndexConfig      `koanf:"index"`
	Git        GitConfig        `koanf:"git"`
	Events     EventsConfig     `koanf:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds log output configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Endpoint        string   `koanf:"endpoint"`
	Protocol        string   `koanf:"protocol"` // grpc or http/protobuf
	Insecure        bool     `koanf:"insecure"`
	TLSSkipVerify   bool     `koanf:"tls_skip_verify"`
	ServiceName     string   `koanf:"service_name"`
	ServiceVersion  string   `koanf:"service_version"`
	SamplingRate    float64  `koanf:"sampling_rate"`
	MetricsInterval Duration `koanf:"metrics_interval"`
}

// SourceConfig selects and configures the error log source.
type SourceConfig struct {
	Provider     string   `koanf:"provider"` // mock or elastic
	URL          string   `koanf:"url"`
	IndexPattern string   `koanf:"index_pattern"`
	Username     string   `koanf:"username"`
	Password     Secret   `koanf:"password"`
	Service      string   `koanf:"service"`
	Window       Duration `koanf:"window"`
	PollInterval Duration `koanf:"poll_interval"`
	Timeout      Duration `koanf:"timeout"`
}

// PipelineConfig holds remediation pipeline configuration.
type PipelineConfig struct {
	// RepoPath is the repository the pipeline fixes. Default: current
	// directory.
	RepoPath             string   `koanf:"repo_path"`
	MaxCompletionRetries int      `koanf:"max_completion_retries"`
	RetryBackoff         Duration `koanf:"retry_backoff"`
	RecallLimit          int      `koanf:"recall_limit"`
}

// LLMConfig holds completion provider configuration.
type LLMConfig struct {
	Provider  string   `koanf:"provider"` // anthropic or openai
	Model     string   `koanf:"model"`
	APIKey    Secret   `koanf:"api_key"`
	BaseURL   string   `koanf:"base_url"`
	MaxTokens int      `koanf:"max_tokens"`
	Timeout   Duration `koanf:"timeout"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // fastembed or openai
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// KnowledgeConfig holds fix store configuration.
type KnowledgeConfig struct {
	Provider   string `koanf:"provider"` // chromem or qdrant
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	QdrantHost string `koanf:"qdrant_host"`
	QdrantPort int    `koanf:"qdrant_port"`
	// VectorSize overrides the qdrant collection dimensionality. Zero
	// derives it from the embedding provider.
	VectorSize int `koanf:"vector_size"`
}

// IndexConfig holds repository index configuration.
type IndexConfig struct {
	MaxFileSizeKB int  `koanf:"max_file_size_kb"`
	TopK          int  `koanf:"top_k"`
	Watch         bool `koanf:"watch"`
}

// GitConfig holds fix staging configuration.
type GitConfig struct {
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
}

// EventsConfig holds case event bus configuration.
type EventsConfig struct {
	// Embedded runs an in-process NATS server. When false, URL must
	// point at an external server.
	Embedded bool   `koanf:"embedded"`
	URL      string `koanf:"url"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Telemetry defaults (disabled unless configured)
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "remedyd"
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = "0.1.0"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = Duration(15 * time.Second)
	}

	// Source defaults
	if cfg.Source.Provider == "" {
		cfg.Source.Provider = "mock"
	}
	if cfg.Source.IndexPattern == "" {
		cfg.Source.IndexPattern = "logs-*"
	}
	if cfg.Source.Window == 0 {
		cfg.Source.Window = Duration(15 * time.Minute)
	}
	if cfg.Source.PollInterval == 0 {
		cfg.Source.PollInterval = Duration(time.Minute)
	}

	// Pipeline defaults
	if cfg.Pipeline.RepoPath == "" {
		cfg.Pipeline.RepoPath = "."
	}

	// Embeddings defaults
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}

	// Knowledge defaults
	if cfg.Knowledge.Provider == "" {
		cfg.Knowledge.Provider = "chromem"
	}
	if cfg.Knowledge.Path == "" {
		cfg.Knowledge.Path = "~/.config/remedyd/knowledge"
	}
	if cfg.Knowledge.Collection == "" {
		cfg.Knowledge.Collection = "fixes"
	}
	if cfg.Knowledge.QdrantHost == "" {
		cfg.Knowledge.QdrantHost = "localhost"
	}
	if cfg.Knowledge.QdrantPort == 0 {
		cfg.Knowledge.QdrantPort = 6334
	}

	// Index defaults
	if cfg.Index.MaxFileSizeKB == 0 {
		cfg.Index.MaxFileSizeKB = 1024
	}
	if cfg.Index.TopK == 0 {
		cfg.Index.TopK = 5
	}

	// Git defaults
	if cfg.Git.AuthorName == "" {
		cfg.Git.AuthorName = "remedyd"
	}
	if cfg.Git.AuthorEmail == "" {
		cfg.Git.AuthorEmail = "remedyd@localhost"
	}

	// Events defaults: embedded server unless an external URL is given
	if cfg.Events.URL == "" {
		cfg.Events.Embedded = true
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	var level zapcore.Level
	if c.Logging.Level != "trace" {
		if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			return fmt.Errorf("invalid logging level %q: %w", c.Logging.Level, err)
		}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry endpoint required when telemetry is enabled")
		}
		if c.Telemetry.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry sampling rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate)
	}

	switch c.Source.Provider {
	case "mock":
	case "elastic":
		if c.Source.URL == "" {
			return errors.New("source url required for the elastic provider")
		}
	default:
		return fmt.Errorf("unknown source provider: %s (supported: mock, elastic)", c.Source.Provider)
	}

	switch c.LLM.Provider {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %s (supported: anthropic, openai)", c.LLM.Provider)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "openai":
	default:
		return fmt.Errorf("unknown embeddings provider: %s (supported: fastembed, openai)", c.Embeddings.Provider)
	}

	switch c.Knowledge.Provider {
	case "chromem":
	case "qdrant":
		if c.Knowledge.QdrantHost == "" {
			return errors.New("qdrant host required for the qdrant provider")
		}
		if c.Knowledge.QdrantPort < 1 || c.Knowledge.QdrantPort > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.Knowledge.QdrantPort)
		}
	default:
		return fmt.Errorf("unknown knowledge provider: %s (supported: chromem, qdrant)", c.Knowledge.Provider)
	}

	if c.Pipeline.MaxCompletionRetries < 0 {
		return fmt.Errorf("max completion retries cannot be negative, got %d", c.Pipeline.MaxCompletionRetries)
	}

	return nil
}
