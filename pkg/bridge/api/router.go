package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/s3-ipfs-bridge/pkg/bridge"
)

// RouterOption configures NewRouter
type RouterOption func(*routerConfig)

type routerConfig struct {
	metrics  *HTTPMetrics
	gatherer prometheus.Gatherer
}

// WithHTTPMetrics records request metrics for every route
func WithHTTPMetrics(m *HTTPMetrics) RouterOption {
	return func(c *routerConfig) {
		c.metrics = m
	}
}

// WithMetricsEndpoint serves the gatherer's metrics at /metrics
func WithMetricsEndpoint(g prometheus.Gatherer) RouterOption {
	return func(c *routerConfig) {
		c.gatherer = g
	}
}

// NewRouter returns the bridge HTTP routes. They are served at the root and
// again under /api.
func NewRouter(service bridge.Service, options ...RouterOption) chi.Router {
	cfg := &routerConfig{}
	for _, option := range options {
		option(cfg)
	}

	r := chi.NewRouter()
	if cfg.metrics != nil {
		r.Use(cfg.metrics.Middleware)
	}

	r.Get("/health", Health)
	if cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	mount := func(r chi.Router) {
		r.Mount("/bridge", NewBridgeHandler(service).Routes())
		r.Mount("/s3", NewObjectHandler(service).Routes())
		r.Mount("/ipfs", NewContentHandler(service).Routes())
	}
	mount(r)
	r.Route("/api", mount)

	return r
}

// Health reports that the server is running
func Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":  "ok",
		"message": "S3-IPFS Bridge API is running",
	})
}
