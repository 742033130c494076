// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package validation

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// ErrUnknownField is returned when the request body contains a top-level
// field the target type does not declare.
type ErrUnknownField struct {
	Field string
}

func (e *ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

// DecodeStrict decodes a single JSON object from r into v, rejecting
// unknown top-level fields and trailing data after the object. It does not
// run struct-tag validation; call ValidateStruct on the result separately.
func DecodeStrict(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if uerr, ok := asUnknownFieldError(err); ok {
			return uerr
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("validation: request body must contain exactly one JSON value")
	}
	return nil
}

// asUnknownFieldError recognizes the encoding/json-compatible "unknown
// field" message goccy/go-json produces under DisallowUnknownFields and
// converts it to *ErrUnknownField for callers that want the field name.
func asUnknownFieldError(err error) (*ErrUnknownField, bool) {
	const prefix = "json: unknown field "
	msg := err.Error()
	if len(msg) <= len(prefix) || msg[:len(prefix)] != prefix {
		return nil, false
	}
	field := msg[len(prefix):]
	field = trimQuotes(field)
	return &ErrUnknownField{Field: field}, true
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
