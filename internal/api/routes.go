package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteConfig controls the optional endpoints.
type RouteConfig struct {
	MetricsEnabled bool
	MetricsPath    string
}

// RegisterRoutes wires the gateway endpoints onto mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, cfg RouteConfig) {
	mux.HandleFunc("POST /search", h.HandleSearch)
	mux.HandleFunc("POST /suggest", h.HandleSuggest)
	mux.HandleFunc("POST /explain", h.HandleExplain)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /ready", h.HandleReady)
	mux.HandleFunc("GET /cache/stats", h.HandleCacheStats)

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.Handler())
	}
}
