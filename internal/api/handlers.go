// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/evp-stream/ingestor/internal/auth"
	"github.com/evp-stream/ingestor/internal/event"
	"github.com/evp-stream/ingestor/internal/ingest"
	"github.com/evp-stream/ingestor/internal/ingesterr"
	"github.com/evp-stream/ingestor/internal/metrics"
	"github.com/evp-stream/ingestor/internal/validation"
)

// IngestHandler exposes the Ingestion Service over HTTP.
type IngestHandler struct {
	Service *ingest.Service
}

// NewIngestHandler wires an IngestHandler against an Ingestion Service.
func NewIngestHandler(svc *ingest.Service) *IngestHandler {
	return &IngestHandler{Service: svc}
}

// batchIngestRequest is the wire shape of POST /v1/events/batch.
type batchIngestRequest struct {
	Events []event.IngestRequest `json:"events"`
}

// batchIngestResponse is the wire shape of a successful batch response.
type batchIngestResponse struct {
	AcceptedIDs     []string            `json:"accepted_ids"`
	DuplicateCount  int                 `json:"duplicate_count"`
	Rejected        []event.IngestResult `json:"rejected"`
}

func sourceUserID(r *http.Request) string {
	cred, ok := auth.CredentialFromContext(r.Context())
	if !ok {
		return ""
	}
	return cred.UserID
}

// HandleIngest serves POST /v1/events.
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req event.IngestRequest
	if err := validation.DecodeStrict(r.Body, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	result, err := h.Service.Ingest(r.Context(), req, sourceUserID(r))
	if err != nil {
		writeIngestError(w, r, err)
		return
	}

	switch result.Status {
	case event.StatusRejected:
		WriteError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, result.Reason)
	case event.StatusDuplicate:
		NewResponseWriter(w, r).SuccessWithMeta(result, nil)
	default:
		NewResponseWriter(w, r).Accepted(result)
	}
}

// writeIngestError maps an Ingestion Service error to its HTTP status and
// client-facing error code: a validation failure is the caller's fault
// (400), everything else is an ingestion-side failure (500).
func writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	if ingesterr.CategoryOf(err) == ingesterr.CategoryValidation {
		WriteError(w, r, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
		return
	}
	WriteError(w, r, http.StatusInternalServerError, ErrCodeIngestionError, "ingestion failed")
}

// HandleIngestBatch serves POST /v1/events/batch.
func (h *IngestHandler) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req batchIngestRequest
	if err := validation.DecodeStrict(r.Body, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if len(req.Events) == 0 {
		WriteError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "events must not be empty")
		return
	}

	accepted, duplicates, rejected, err := h.Service.IngestBatch(r.Context(), req.Events, sourceUserID(r))
	if err != nil {
		writeIngestError(w, r, err)
		return
	}

	NewResponseWriter(w, r).Success(batchIngestResponse{
		AcceptedIDs:    accepted,
		DuplicateCount: duplicates,
		Rejected:       rejected,
	})
}

// HandleStats serves GET /v1/events/stats.
func (h *IngestHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"ingestion_rate": metrics.RateIngest(),
		"total_ingested": metrics.TotalIngested(),
		"timestamp":      time.Now(),
	})
}

// HandleHealthz serves a liveness probe: the process is up and able to
// answer HTTP requests at all.
func HandleHealthz(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// Pinger is implemented by anything HandleReadyz should check before
// reporting ready (e.g. a BadgerDB handle wrapper or a stream client).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleReadyz serves a readiness probe against a set of dependencies.
// It reports 503 if any dependency's Ping fails.
func HandleReadyz(deps ...Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, d := range deps {
			if err := d.Ping(r.Context()); err != nil {
				WriteError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())
				return
			}
		}
		NewResponseWriter(w, r).Success(map[string]string{"status": "ready"})
	}
}
