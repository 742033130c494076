// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package api provides standardized API response handling.
// Phase 3: All API endpoints use consistent response format.
package api

import (
	"github.com/evp-stream/ingestor/internal/apiresponse"
)

// The response types and helpers below live in internal/apiresponse so that
// internal/auth (which internal/api itself depends on) can write standardized
// error responses without creating an import cycle. They are aliased here
// unchanged so every existing caller of the api package keeps working as-is.

type APIResponse = apiresponse.APIResponse
type APIError = apiresponse.APIError
type APIMeta = apiresponse.APIMeta
type PaginationMeta = apiresponse.PaginationMeta
type ResponseWriter = apiresponse.ResponseWriter

const (
	ErrCodeBadRequest          = apiresponse.ErrCodeBadRequest
	ErrCodeUnauthorized        = apiresponse.ErrCodeUnauthorized
	ErrCodeForbidden           = apiresponse.ErrCodeForbidden
	ErrCodeNotFound            = apiresponse.ErrCodeNotFound
	ErrCodeMethodNotAllowed    = apiresponse.ErrCodeMethodNotAllowed
	ErrCodeConflict            = apiresponse.ErrCodeConflict
	ErrCodeTooManyRequests     = apiresponse.ErrCodeTooManyRequests
	ErrCodeInternalError       = apiresponse.ErrCodeInternalError
	ErrCodeServiceUnavailable  = apiresponse.ErrCodeServiceUnavailable
	ErrCodeValidationFailed    = apiresponse.ErrCodeValidationFailed
	ErrCodeDatabaseError       = apiresponse.ErrCodeDatabaseError
	ErrCodeExternalServiceFail = apiresponse.ErrCodeExternalServiceFail
	ErrCodeIngestionError      = apiresponse.ErrCodeIngestionError
	ErrCodeMissingAPIKey       = apiresponse.ErrCodeMissingAPIKey
	ErrCodeInvalidAPIKey       = apiresponse.ErrCodeInvalidAPIKey
)

var (
	NewResponseWriter  = apiresponse.NewResponseWriter
	WriteSuccess       = apiresponse.WriteSuccess
	WriteError         = apiresponse.WriteError
	WriteBadRequest    = apiresponse.WriteBadRequest
	WriteNotFound      = apiresponse.WriteNotFound
	WriteInternalError = apiresponse.WriteInternalError
	WriteDatabaseError = apiresponse.WriteDatabaseError
)
