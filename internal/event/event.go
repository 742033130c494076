// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package event defines the wire and domain representation of an ingested
// event, shared by the ingestion service, the stream, the worker, and the
// event store.
package event

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// Status describes the outcome of an Ingest or IngestBatch call for a
// single event.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusDuplicate Status = "duplicate"
	StatusRejected Status = "rejected"
)

// Event is the canonical event record once accepted by the ingestion
// service. EventID, IngestedAt, and SourceUserID are populated by the
// ingestion service; every other field is supplied by the caller.
type Event struct {
	EventID      string                 `json:"event_id"`
	EventType    string                 `json:"event_type"`
	UserID       string                 `json:"user_id"`
	SessionID    string                 `json:"session_id,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Priority     int                    `json:"priority"`
	Metadata     map[string]string      `json:"metadata,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	IngestedAt   time.Time              `json:"ingested_at"`
	SourceUserID string                 `json:"source_user_id"`
}

// IngestRequest is the decoded, not-yet-validated shape of a single event
// submitted by a producer. Unknown top-level fields are rejected at the
// JSON-decode stage before this struct is populated (internal/validation).
type IngestRequest struct {
	EventID   string                 `json:"event_id,omitempty" validate:"omitempty,min=1,max=256"`
	EventType string                 `json:"event_type" validate:"required,event_type"`
	UserID    string                 `json:"user_id" validate:"required,min=1,max=256"`
	SessionID string                 `json:"session_id,omitempty" validate:"omitempty,max=256"`
	Timestamp time.Time              `json:"timestamp" validate:"required"`
	Priority  *int                   `json:"priority,omitempty" validate:"omitempty,gte=0,lte=3"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// DefaultPriority is used when a producer omits the priority field.
const DefaultPriority = 1

// NewEventID generates an id of the form evt_<base36 UnixNano>_<16 hex
// random characters>, unique with overwhelming probability. Ids are only
// roughly time-ordered: the order of ids generated at the same instant is
// not defined.
func NewEventID(now time.Time) (string, error) {
	ts := strconv.FormatInt(now.UnixNano(), 36)
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "evt_" + ts + "_" + hex.EncodeToString(buf), nil
}

// ToEvent builds the canonical Event from a validated IngestRequest.
func (r IngestRequest) ToEvent(eventID, sourceUserID string, ingestedAt time.Time) Event {
	priority := DefaultPriority
	if r.Priority != nil {
		priority = *r.Priority
	}
	return Event{
		EventID:      eventID,
		EventType:    r.EventType,
		UserID:       r.UserID,
		SessionID:    r.SessionID,
		Timestamp:    r.Timestamp,
		Priority:     priority,
		Metadata:     r.Metadata,
		Payload:      r.Payload,
		IngestedAt:   ingestedAt,
		SourceUserID: sourceUserID,
	}
}

// IngestResult reports the per-event outcome of Ingest/IngestBatch.
type IngestResult struct {
	EventID string `json:"event_id,omitempty"`
	Status  Status `json:"status"`
	Reason  string `json:"reason,omitempty"`
}
