// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evp-stream/ingestor/internal/auth"
	appmiddleware "github.com/evp-stream/ingestor/internal/middleware"
)

// RouterConfig wires the ingest API's dependencies into its route tree.
type RouterConfig struct {
	IngestHandler *IngestHandler
	Credentials   auth.CredentialStore
	RateLimitRPS  float64
	RateLimitBurst int
	ReadyDeps     []Pinger
}

// NewRouter builds the ingest API's chi router: CORS, per-IP burst limiting,
// request-id and Prometheus instrumentation ahead of auth, then per-credential
// rate limiting and the ingest routes themselves behind auth.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(adaptHandlerFunc(appmiddleware.RequestID))
	r.Use(adaptHandlerFunc(appmiddleware.PrometheusMetrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", auth.APIKeyHeader},
		MaxAge:           300,
	}))
	// Coarse per-IP limit ahead of authentication, protecting the dedup
	// and auth lookups themselves from an unauthenticated flood.
	r.Use(httprate.LimitByIP(1000, time.Minute))

	r.Get("/healthz", HandleHealthz)
	r.Get("/readyz", HandleReadyz(cfg.ReadyDeps...))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Credentials))
		rl := auth.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		r.Use(rl.Middleware)

		r.Route("/v1/events", func(r chi.Router) {
			r.Post("/", cfg.IngestHandler.HandleIngest)
			r.Post("/batch", cfg.IngestHandler.HandleIngestBatch)
			r.Get("/stats", cfg.IngestHandler.HandleStats)
			r.Get("/stats/stream", HandleStatsStream)
		})
	})

	return r
}

// adaptHandlerFunc lifts the older http.HandlerFunc-chaining middleware
// convention (used by internal/middleware) into chi's func(http.Handler)
// http.Handler convention.
func adaptHandlerFunc(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}
