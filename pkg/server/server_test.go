package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/pkg/events"
	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
	"github.com/fyrsmithlabs/remedyd/pkg/pipeline"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *events.Registry) {
	t.Helper()
	registry := events.NewRegistry(nil, nil)
	srv, err := New(Config{}, registry, opts...)
	require.NoError(t, err)
	return srv, registry
}

// do routes a request through the full echo stack.
func do(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func trackedCase(registry *events.Registry) *pipeline.ErrorCase {
	ec := pipeline.NewCase(logsource.LogEntry{Service: "billing", Severity: logsource.SeverityError})
	registry.Progress(pipeline.ProgressEvent{CaseID: ec.ID, Stage: pipeline.StageLogAnalyzer, Status: pipeline.StageStarted})
	return ec
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry is required")
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "remedyd", resp.Service)
	assert.Empty(t, resp.Components)
}

func TestServer_HealthDegraded(t *testing.T) {
	srv, _ := newTestServer(t,
		WithCheck("index", func(context.Context) error { return nil }),
		WithCheck("repository", func(context.Context) error { return errors.New("repository does not exist") }),
	)

	rec := do(srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Components["index"])
	assert.Equal(t, "repository does not exist", resp.Components["repository"])
}

func TestServer_Ready(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/ready")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_ListCasesEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/api/v1/cases")
	require.Equal(t, http.StatusOK, rec.Code)
	// an empty registry serves an empty array, not null
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestServer_ListCases(t *testing.T) {
	srv, registry := newTestServer(t)
	ec := trackedCase(registry)

	rec := do(srv, http.MethodGet, "/api/v1/cases")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []events.CaseRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, ec.ID, records[0].ID)
	assert.Equal(t, pipeline.StatusInProgress, records[0].Status)
}

func TestServer_GetCase(t *testing.T) {
	srv, registry := newTestServer(t)
	ec := trackedCase(registry)

	rec := do(srv, http.MethodGet, "/api/v1/cases/"+ec.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var record events.CaseRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, ec.ID, record.ID)
	assert.Equal(t, pipeline.StageLogAnalyzer, record.Stage)
}

func TestServer_GetCaseNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/api/v1/cases/nonexistent")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "case not found")
}

func TestServer_GracefulShutdown(t *testing.T) {
	registry := events.NewRegistry(nil, nil)
	srv, err := New(Config{Port: 18093, ShutdownTimeout: 2 * time.Second}, registry)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Wait for server to start
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://localhost:18093/ready")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err, "server did not start")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}

	if resp, err := http.Get("http://localhost:18093/ready"); err == nil {
		resp.Body.Close()
		t.Error("server still responding after shutdown")
	}
}

func TestServer_PortAlreadyInUse(t *testing.T) {
	registry := events.NewRegistry(nil, nil)
	port := 18094

	srv1, err := New(Config{Port: port, ShutdownTimeout: 2 * time.Second}, registry)
	require.NoError(t, err)

	ctx1, cancel1 := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv1.Start(ctx1)
	}()

	for i := 0; i < 50; i++ {
		resp, getErr := http.Get(fmt.Sprintf("http://localhost:%d/ready", port))
		if getErr == nil {
			resp.Body.Close()
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	srv2, err := New(Config{Port: port, ShutdownTimeout: 2 * time.Second}, registry)
	require.NoError(t, err)

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	err = srv2.Start(ctx2)
	require.Error(t, err)

	cancel1()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("first server did not shutdown")
	}
}
