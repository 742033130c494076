// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

/*
Package middleware provides HTTP middleware components for the application.

This package implements infrastructure middleware for request ID tracking
and Prometheus metrics integration. These components work alongside the
authentication middleware in internal/auth to create the middleware stack
for HTTP request processing.

Key Components:

  - Request ID: UUID-based request tracking for distributed tracing
  - Prometheus Metrics: HTTP request/response instrumentation

Middleware Stack:

The ingest router (internal/api) installs RequestID, then PrometheusMetrics,
ahead of authentication and the per-credential rate limiter.

Usage Example - Request ID:

	// Request ID middleware
	http.HandleFunc("/api/v1/logs",
	    middleware.RequestID(handler),
	)

	// Access request ID in handler
	func handler(w http.ResponseWriter, r *http.Request) {
	    requestID := r.Context().Value(middleware.RequestIDKey).(string)
	    log.Printf("[%s] Processing request", requestID)
	}

Performance Characteristics:

  - Metrics overhead: <0.1ms per request
  - Request ID overhead: <0.01ms (UUID generation)

Thread Safety:

All middleware components are thread-safe:
  - Request ID uses context.Context (immutable)
  - Prometheus metrics use atomic operations

See Also:

  - internal/auth: Authentication middleware
  - internal/api: HTTP handlers wrapped by middleware
  - internal/metrics: Prometheus metrics definitions
*/
package middleware
