// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

/*
Package api provides the HTTP REST layer of the ingestion service.

It exposes the producer-facing surface of the event pipeline: accepting
single and batched events, reporting ingestion statistics, and the
operational endpoints (health, readiness, metrics) needed to run the
service behind a load balancer.

Key Components:

  - Router: route configuration and middleware stack assembly (chi)
  - Handlers: request handlers for POST /v1/events, POST /v1/events/batch,
    GET /v1/events/stats, and the operational endpoints
  - Response formatting: a standardized JSON envelope with request-id and
    timing metadata, shared by success and error responses alike
  - Authentication: x-api-key credential lookup and per-credential rate
    limiting, applied via internal/auth middleware

Usage Example:

	import (
	    "github.com/evp-stream/ingestor/internal/api"
	)

	router := api.NewRouter(api.RouterConfig{
	    IngestHandler:  api.NewIngestHandler(ingestService),
	    Credentials:    credentialStore,
	    RateLimitRPS:   50,
	    RateLimitBurst: 100,
	})
	http.ListenAndServe(":8080", router)

Thread Safety:

All handlers are stateless and safe for concurrent use; any shared state
(dedup index, event stream, credential store) is owned by its respective
package and synchronized there.

See Also:

  - internal/auth: credential lookup and rate limiting
  - internal/ingest: the ingestion service these handlers call into
  - internal/middleware: request-id and Prometheus HTTP middleware
*/
package api
