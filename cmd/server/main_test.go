package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/s3-ipfs-bridge/pkg/bridge/api"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge/config"
)

func setupServer(t *testing.T, environment string) http.Handler {
	t.Helper()

	cfg, err := config.Load(config.WithMemoryStores(), config.WithEnvironment(environment))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	runtime, err := cfg.BuildService(context.Background(), reg)
	require.NoError(t, err)
	t.Cleanup(runtime.Close)

	httpMetrics, err := api.NewHTTPMetrics(reg)
	require.NoError(t, err)

	return newRouter(cfg, runtime, httpMetrics, reg)
}

func TestRouterCORSInDevelopment(t *testing.T) {
	router := setupServer(t, "development")

	req := httptest.NewRequest(http.MethodOptions, "/bridge/s3-to-ipfs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterNoCORSInProduction(t *testing.T) {
	router := setupServer(t, "production")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
