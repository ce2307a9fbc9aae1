package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-git/go-git/v5"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/services"
	"github.com/fyrsmithlabs/remedyd/internal/telemetry"
	"github.com/fyrsmithlabs/remedyd/pkg/events"
	"github.com/fyrsmithlabs/remedyd/pkg/pipeline"
	"github.com/fyrsmithlabs/remedyd/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the remediation daemon",
	Long: `Start the remediation daemon.

The daemon builds the repository index, connects to the log source and the
event bus, and starts polling for error entries. The HTTP server exposes
health, case inspection, SSE progress streams, and Prometheus metrics.

Examples:
  # Defaults: mock source, embedded NATS, repo in the current directory
  remedyd serve

  # Explicit config file
  remedyd serve --config /etc/remedyd/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		return err
	}

	log.Println("Server shutdown complete")
	return nil
}

// run starts the remedyd daemon and blocks until the context is cancelled.
//
// This function initializes all dependencies and services:
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Connects the event bus (embedded or external NATS)
//  4. Builds the pipeline services (source, embeddings, memory, index,
//     completer, stager)
//  5. Starts the log source poller
//  6. Starts the HTTP server
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger) // Best-effort sync on shutdown
	}()

	logger.Info("Starting remedyd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("source", cfg.Source.Provider),
		zap.String("repo", cfg.Pipeline.RepoPath))

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	bus, err := connectNATS(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect event bus: %w", err)
	}
	defer bus.Close()

	svcs, err := services.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svcs.Close()

	registry := events.NewRegistry(bus.conn, logger)

	orch, err := svcs.NewPipeline(pipeline.WithProgress(registry.Progress))
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	srv, err := server.New(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		ServiceName:     cfg.Telemetry.ServiceName,
	}, registry,
		server.WithLogger(logger),
		server.WithNATS(bus.conn),
		server.WithCheck("knowledge", svcs.Memory.HealthCheck),
		server.WithCheck("index", func(ctx context.Context) error {
			_, err := svcs.Index.Index(ctx)
			return err
		}),
		server.WithCheck("git", func(ctx context.Context) error {
			_, err := git.PlainOpen(svcs.Stager.RepoPath())
			return err
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if cfg.Index.Watch {
		if err := svcs.Index.Watch(ctx); err != nil {
			logger.Warn("Index watcher unavailable, index stays cached until restart",
				zap.Error(err))
		}
	}

	poller := newPoller(svcs.Source, orch, registry, pollerConfig{
		Window:   cfg.Source.Window.Duration(),
		Interval: cfg.Source.PollInterval.Duration(),
		Service:  cfg.Source.Service,
	}, logger)
	go poller.Run(ctx)

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Duration("poll_interval", cfg.Source.PollInterval.Duration()))

	// Blocks until context cancellation.
	return srv.Start(ctx)
}

// initLogger builds the structured logger from the logging section.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	return logging.New(logCfg, nil)
}

// telemetryConfig maps the flat telemetry section onto the provider config.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.TLSSkipVerify = cfg.Telemetry.TLSSkipVerify
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = cfg.Telemetry.ServiceVersion
	tc.Sampling.Rate = cfg.Telemetry.SamplingRate
	if cfg.Telemetry.MetricsInterval > 0 {
		tc.Metrics.ExportInterval = cfg.Telemetry.MetricsInterval
	}
	return tc
}

// eventBus is the NATS connection plus the embedded server owning it, when
// one was started.
type eventBus struct {
	server *natsserver.Server
	conn   *nats.Conn
}

// Close drains the connection and stops the embedded server.
func (b *eventBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
		b.server.WaitForShutdown()
	}
}

// connectNATS connects to the configured NATS server, or starts an embedded
// in-process one when no URL is configured. With events disabled entirely
// the returned bus carries a nil connection; the registry and SSE relay
// degrade to registry-only operation.
func connectNATS(cfg *config.Config, logger *zap.Logger) (*eventBus, error) {
	if cfg.Events.URL != "" {
		nc, err := nats.Connect(cfg.Events.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Events.URL, err)
		}
		logger.Info("Connected to NATS", zap.String("url", cfg.Events.URL))
		return &eventBus{conn: nc}, nil
	}

	if !cfg.Events.Embedded {
		return &eventBus{}, nil
	}

	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random free port
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server did not become ready")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("failed to connect to embedded NATS server: %w", err)
	}

	logger.Info("Embedded NATS server started", zap.String("url", ns.ClientURL()))
	return &eventBus{server: ns, conn: nc}, nil
}
