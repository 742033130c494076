// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package ingest implements the Ingestion Service (C4): validates,
// deduplicates, and appends producer-submitted events to the event stream.
// It never writes synchronously to the event store — that is the worker's
// job — so its latency budget is bounded by the dedup index and the stream
// append alone.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/evp-stream/ingestor/internal/dedup"
	"github.com/evp-stream/ingestor/internal/event"
	"github.com/evp-stream/ingestor/internal/ingesterr"
	"github.com/evp-stream/ingestor/internal/logging"
	"github.com/evp-stream/ingestor/internal/metrics"
	"github.com/evp-stream/ingestor/internal/stream"
	"github.com/evp-stream/ingestor/internal/validation"
)

// MaxBatchSize is the largest number of events accepted by IngestBatch in
// a single call.
const MaxBatchSize = 1000

// DedupTTL is how long a claimed event_id blocks a repeat ingest.
const DedupTTL = 600 * time.Second

// Service is the Ingestion Service (C4).
type Service struct {
	Dedup  dedup.Index
	Stream stream.Stream
	Group  string
	Source string
}

// NewService wires the Ingestion Service against a dedup index and event
// stream. group is the consumer group workers read from; source labels the
// evp_events_ingested_total metric (e.g. "http", "grpc").
func NewService(idx dedup.Index, st stream.Stream, group, source string) *Service {
	return &Service{Dedup: idx, Stream: st, Group: group, Source: source}
}

// Ingest validates, deduplicates, and appends a single event: validate,
// assign an event id, claim it against the dedup index, append to the
// stream, then record ingestion metrics.
func (s *Service) Ingest(ctx context.Context, req event.IngestRequest, sourceUserID string) (event.IngestResult, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return event.IngestResult{Status: event.StatusRejected, Reason: err.Error()}, nil
	}

	eventID := req.EventID
	if eventID == "" {
		var err error
		eventID, err = event.NewEventID(time.Now())
		if err != nil {
			return event.IngestResult{}, ingesterr.Transient("generate event id", err)
		}
	}

	outcome, err := s.Dedup.TryClaim(ctx, eventID, DedupTTL)
	if err != nil {
		return event.IngestResult{}, ingesterr.Transient("dedup index unreachable", err)
	}
	if outcome == dedup.ClaimDuplicate {
		return event.IngestResult{EventID: eventID, Status: event.StatusDuplicate}, nil
	}

	ingestedAt := time.Now()
	ev := req.ToEvent(eventID, sourceUserID, ingestedAt)

	if err := s.append(ctx, ev); err != nil {
		return event.IngestResult{}, ingesterr.Transient("append to stream", err)
	}

	metrics.IncIngested(s.Source)
	return event.IngestResult{EventID: eventID, Status: event.StatusAccepted}, nil
}

// IngestBatch validates, deduplicates, and appends up to MaxBatchSize
// events, rejecting the whole batch if it exceeds that limit. Individual
// events that fail validation, or that fail to append after being claimed
// as new, are reported as rejected and are not credited in the ingested
// counter.
func (s *Service) IngestBatch(ctx context.Context, reqs []event.IngestRequest, sourceUserID string) (accepted []string, duplicateCount int, rejected []event.IngestResult, err error) {
	if len(reqs) > MaxBatchSize {
		return nil, 0, nil, ingesterr.Validation(fmt.Sprintf("batch of %d events exceeds the %d-event limit", len(reqs), MaxBatchSize), nil)
	}

	type candidate struct {
		idx int
		id  string
		ev  event.Event
	}

	var candidates []candidate
	ids := make([]string, 0, len(reqs))
	now := time.Now()

	for i, req := range reqs {
		if verr := validation.ValidateStruct(&req); verr != nil {
			rejected = append(rejected, event.IngestResult{Status: event.StatusRejected, Reason: verr.Error()})
			continue
		}
		eventID := req.EventID
		if eventID == "" {
			var idErr error
			eventID, idErr = event.NewEventID(now)
			if idErr != nil {
				rejected = append(rejected, event.IngestResult{Status: event.StatusRejected, Reason: idErr.Error()})
				continue
			}
		}
		candidates = append(candidates, candidate{idx: i, id: eventID, ev: req.ToEvent(eventID, sourceUserID, now)})
		ids = append(ids, eventID)
	}

	if len(ids) == 0 {
		return nil, 0, rejected, nil
	}

	outcomes, claimErr := s.Dedup.BatchTryClaim(ctx, ids, DedupTTL)
	if claimErr != nil {
		return nil, 0, nil, ingesterr.Transient("dedup index unreachable", claimErr)
	}

	for i, c := range candidates {
		switch outcomes[i] {
		case dedup.ClaimDuplicate:
			duplicateCount++
		case dedup.ClaimNew:
			if appendErr := s.append(ctx, c.ev); appendErr != nil {
				logging.Ctx(ctx).Warn().Str("event_id", c.id).Err(appendErr).Msg("ingest: append failed after claim, event rejected")
				rejected = append(rejected, event.IngestResult{EventID: c.id, Status: event.StatusRejected, Reason: "append failed"})
				continue
			}
			metrics.IncIngested(s.Source)
			accepted = append(accepted, c.id)
		}
	}

	return accepted, duplicateCount, rejected, nil
}

// append serializes ev and writes it to the stream as an entry with
// "event_id" and "data" fields.
func (s *Service) append(ctx context.Context, ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.Stream.Append(ctx, map[string]string{
		"event_id": ev.EventID,
		"data":     string(data),
	})
	return err
}
