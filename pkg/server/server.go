// Package server provides the operational HTTP surface of remedyd.
//
// The server exposes health and readiness probes, Prometheus metrics,
// case inspection endpoints backed by the events registry, and an SSE
// relay that streams case events from NATS to external observers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/events"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 2 * time.Second

// Check probes one named component for the health endpoint.
type Check func(ctx context.Context) error

// Config holds the HTTP server settings.
type Config struct {
	// Port is the TCP port to listen on. 0 picks the default.
	Port int

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// ServiceName is reported by the health endpoint.
	ServiceName string
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.ServiceName == "" {
		c.ServiceName = "remedyd"
	}
}

// HealthResponse is the JSON response of the health endpoint. Components
// maps each registered check to "ok" or its failure message.
type HealthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNATS wires the connection the SSE relay reads case events from.
// Without it the events endpoint reports streaming as unavailable.
func WithNATS(nc *nats.Conn) Option {
	return func(s *Server) { s.nc = nc }
}

// WithCheck registers a named component check for the health endpoint.
func WithCheck(name string, check Check) Option {
	return func(s *Server) { s.checks[name] = check }
}

// Server is the remedyd operations HTTP server.
type Server struct {
	cfg      Config
	echo     *echo.Echo
	registry *events.Registry
	nc       *nats.Conn
	checks   map[string]Check
	logger   *zap.Logger
}

// New creates the HTTP server.
//
// The server includes:
//   - Echo router with logger, recoverer, and request ID middleware
//   - Health and readiness endpoints
//   - Prometheus metrics at GET /metrics
//   - Case inspection under /api/v1/cases
//   - SSE case event relay at GET /api/v1/events/:case_id
func New(cfg Config, registry *events.Registry, opts ...Option) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("case registry is required")
	}
	cfg.applyDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		cfg:      cfg,
		echo:     e,
		registry: registry,
		checks:   make(map[string]Check),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ready", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/api/v1/cases", s.handleListCases)
	s.echo.GET("/api/v1/cases/:id", s.handleGetCase)
	s.echo.GET("/api/v1/events/:case_id", s.handleCaseEvents)
}

// handleHealth runs every registered component check. Any failing
// component degrades the whole response to 503.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:  "ok",
		Service: s.cfg.ServiceName,
	}
	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
			err := check(ctx)
			cancel()
			if err != nil {
				resp.Status = "degraded"
				resp.Components[name] = err.Error()
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// handleReady reports readiness to accept traffic.
func (s *Server) handleReady(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// handleListCases returns every tracked case, newest first.
func (s *Server) handleListCases(c echo.Context) error {
	records := s.registry.List()
	if records == nil {
		records = []events.CaseRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// handleGetCase returns one case record by ID.
func (s *Server) handleGetCase(c echo.Context) error {
	rec, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "case not found"})
	}
	return c.JSON(http.StatusOK, rec)
}

// Start starts the HTTP server and blocks until the context is
// cancelled. Returns http.ErrServerClosed on graceful shutdown, or any
// other error encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("http server starting", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering additional
// routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
