package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHealth_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"remedyd","components":{"knowledge":"ok","index":"ok"}}`))
	}))
	defer srv.Close()

	orig := serverURL
	defer func() { serverURL = orig }()
	serverURL = srv.URL

	err := runHealth(nil, nil)
	assert.NoError(t, err)
}

func TestRunHealth_Degraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","service":"remedyd","components":{"knowledge":"unreachable"}}`))
	}))
	defer srv.Close()

	orig := serverURL
	defer func() { serverURL = orig }()
	serverURL = srv.URL

	err := runHealth(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "degraded")
}

func TestRunHealth_ConnectionRefused(t *testing.T) {
	orig := serverURL
	defer func() { serverURL = orig }()
	serverURL = "http://127.0.0.1:1"

	err := runHealth(nil, nil)
	assert.Error(t, err)
}

func TestGetRemoteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"case-1","status":"complete"}`))
	}))
	defer srv.Close()

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err := getRemoteJSON(srv.URL+"/api/v1/cases/case-1", &out)
	require.NoError(t, err)
	assert.Equal(t, "case-1", out.ID)
	assert.Equal(t, "complete", out.Status)
}

func TestGetRemoteJSON_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"case not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	var out struct{}
	err := getRemoteJSON(srv.URL+"/api/v1/cases/missing", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "case not found")
}
