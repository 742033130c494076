// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with a custom event_type tag and user-friendly error
// messages. It integrates with the application's API error format for consistent
// error responses.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Comprehensive error translation to human-readable messages
//   - APIError conversion matching the application's error format
//   - A custom event_type tag validating the ingestion schema's type field
//
// # Quick Start
//
//	type IngestRequest struct {
//	    EventType string `validate:"required,event_type"`
//	    UserID    string `validate:"required,min=1,max=256"`
//	    Priority  *int   `validate:"omitempty,gte=0,lte=3"`
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    var req IngestRequest
//	    if err := json.Decode(r.Body, &req); err != nil {
//	        // handle decode error
//	    }
//
//	    if verr := validation.ValidateStruct(&req); verr != nil {
//	        apiErr := verr.ToAPIError()
//	        respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	        return
//	    }
//
//	    // proceed with valid request
//	}
//
// # Validation Tags Used By This Schema
//
//   - required: Field must not be empty
//   - omitempty: Skip remaining checks when the field is its zero value
//   - min=n / max=n: Minimum/maximum string length, or numeric bound
//   - gte=n / lte=n: Numeric lower/upper bound, inclusive
//   - event_type: Custom tag — a leading letter followed by letters, digits,
//     '.', '_', or '-'
//
// # Error Types
//
// ValidationError represents a single field validation failure:
//
//	type ValidationError struct {
//	    Field()   string      // Struct field name
//	    Tag()     string      // Validation tag that failed
//	    Param()   string      // Tag parameter (e.g., "100" for max=100)
//	    Value()   interface{} // Actual value that failed
//	    Error()   string      // Human-readable message
//	}
//
// RequestValidationError aggregates multiple field errors:
//
//	type RequestValidationError struct {
//	    Errors() []ValidationError
//	    Error()  string           // Combined message
//	    ToAPIError() *APIError    // Convert to API error format
//	}
//
// # API Error Integration
//
// The ToAPIError method produces errors matching the application format:
//
//	// Single field error
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "EventType must start with a letter and contain only letters, digits, '.', '_', or '-'",
//	    "details": {"field": "EventType", "tag": "event_type", "value": "1bad"}
//	}
//
//	// Multiple field errors
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "UserID: UserID is required; Priority: Priority must be less than or equal to 3",
//	    "details": {
//	        "fields": [
//	            {"field": "UserID", "tag": "required", "message": "..."},
//	            {"field": "Priority", "tag": "lte", "message": "..."}
//	        ]
//	    }
//	}
//
// # Error Message Translation
//
// Human-readable messages are generated for the tags above:
//
//	required   -> "UserID is required"
//	min=1      -> "UserID must be at least 1 characters"
//	max=256    -> "UserID must be at most 256 characters"
//	gte=0      -> "Priority must be greater than or equal to 0"
//	lte=3      -> "Priority must be less than or equal to 3"
//	event_type -> "EventType must start with a letter and contain only letters, digits, '.', '_', or '-'"
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use:
//
//	validate := validation.GetValidator()  // Thread-safe
//	err := validation.ValidateStruct(&req) // Thread-safe
//
// # Performance
//
// The validator caches struct reflection information:
//   - First validation of a struct type: ~1ms (reflection + caching)
//   - Subsequent validations: ~10us (cached)
//   - Memory: ~500 bytes per cached struct type
//
// # See Also
//
//   - internal/api: Request handlers using validation
//   - github.com/go-playground/validator/v10: Underlying library
package validation
