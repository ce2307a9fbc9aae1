package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes validation, for mutation tests.
func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout.Duration() != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout.Duration())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging defaults = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled defaulted to true, want false")
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Telemetry.Endpoint = %q, want localhost:4317", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.Protocol != "grpc" {
		t.Errorf("Telemetry.Protocol = %q, want grpc", cfg.Telemetry.Protocol)
	}
	if cfg.Source.Provider != "mock" {
		t.Errorf("Source.Provider = %q, want mock", cfg.Source.Provider)
	}
	if cfg.Source.Window.Duration() != 15*time.Minute {
		t.Errorf("Source.Window = %v, want 15m", cfg.Source.Window.Duration())
	}
	if cfg.Embeddings.Provider != "fastembed" {
		t.Errorf("Embeddings.Provider = %q, want fastembed", cfg.Embeddings.Provider)
	}
	if cfg.Knowledge.Provider != "chromem" {
		t.Errorf("Knowledge.Provider = %q, want chromem", cfg.Knowledge.Provider)
	}
	if cfg.Knowledge.Collection != "fixes" {
		t.Errorf("Knowledge.Collection = %q, want fixes", cfg.Knowledge.Collection)
	}
	if cfg.Knowledge.VectorSize != 0 {
		t.Errorf("Knowledge.VectorSize = %d, want 0 (derived from embedder)", cfg.Knowledge.VectorSize)
	}
	if cfg.Pipeline.RepoPath != "." {
		t.Errorf("Pipeline.RepoPath = %q, want .", cfg.Pipeline.RepoPath)
	}
	if cfg.Git.AuthorName != "remedyd" || cfg.Git.AuthorEmail != "remedyd@localhost" {
		t.Errorf("Git author defaults = %s <%s>", cfg.Git.AuthorName, cfg.Git.AuthorEmail)
	}
	if !cfg.Events.Embedded {
		t.Error("Events.Embedded = false with no URL, want true")
	}
	if cfg.Index.TopK != 5 {
		t.Errorf("Index.TopK = %d, want 5", cfg.Index.TopK)
	}
}

func TestApplyDefaults_ExternalEventsURL(t *testing.T) {
	cfg := &Config{}
	cfg.Events.URL = "nats://localhost:4222"
	applyDefaults(cfg)

	if cfg.Events.Embedded {
		t.Error("Events.Embedded = true with external URL, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 99999 },
			wantErr: "invalid server port",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "shutdown timeout",
		},
		{
			name:    "bad logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging format",
		},
		{
			name:    "bad logging level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid logging level",
		},
		{
			name:   "trace level accepted",
			mutate: func(c *Config) { c.Logging.Level = "trace" },
		},
		{
			name: "telemetry enabled without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Endpoint = ""
			},
			wantErr: "telemetry endpoint",
		},
		{
			name:    "sampling rate out of range",
			mutate:  func(c *Config) { c.Telemetry.SamplingRate = 1.5 },
			wantErr: "sampling rate",
		},
		{
			name:    "unknown source provider",
			mutate:  func(c *Config) { c.Source.Provider = "splunk" },
			wantErr: "unknown source provider",
		},
		{
			name: "elastic without url",
			mutate: func(c *Config) {
				c.Source.Provider = "elastic"
				c.Source.URL = ""
			},
			wantErr: "source url required",
		},
		{
			name: "elastic with url",
			mutate: func(c *Config) {
				c.Source.Provider = "elastic"
				c.Source.URL = "http://localhost:9200"
			},
		},
		{
			name:    "unknown llm provider",
			mutate:  func(c *Config) { c.LLM.Provider = "bedrock" },
			wantErr: "unknown llm provider",
		},
		{
			name:   "empty llm provider allowed",
			mutate: func(c *Config) { c.LLM.Provider = "" },
		},
		{
			name:    "unknown embeddings provider",
			mutate:  func(c *Config) { c.Embeddings.Provider = "cohere" },
			wantErr: "unknown embeddings provider",
		},
		{
			name:    "unknown knowledge provider",
			mutate:  func(c *Config) { c.Knowledge.Provider = "pinecone" },
			wantErr: "unknown knowledge provider",
		},
		{
			name: "qdrant without host",
			mutate: func(c *Config) {
				c.Knowledge.Provider = "qdrant"
				c.Knowledge.QdrantHost = ""
			},
			wantErr: "qdrant host required",
		},
		{
			name:    "negative completion retries",
			mutate:  func(c *Config) { c.Pipeline.MaxCompletionRetries = -1 },
			wantErr: "completion retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
