// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package api provides the HTTP handlers for the ingestion service.
//
// errors.go - Common API error definitions
//
// This file contains sentinel errors for common API error conditions.
package api

import "errors"

// Common API errors
var (
	// ErrValidationFailed indicates a request body failed schema validation.
	ErrValidationFailed = errors.New("request failed validation")

	// ErrDuplicateEvent indicates an event_id was already claimed by the
	// dedup index within its TTL window.
	ErrDuplicateEvent = errors.New("event_id already ingested")
)
