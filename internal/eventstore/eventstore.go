// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package eventstore provides the reference EventStore backing the worker's
// bulk-write path: a DuckDB-backed document collection with the unique and
// secondary indexes the pipeline's analytics surface requires, plus an
// in-memory implementation for tests.
package eventstore

import (
	"context"
	"sync"

	"github.com/evp-stream/ingestor/internal/event"
)

// BulkInsertResult reports how many events in a batch were newly persisted
// versus already present (a unique-key conflict on event_id, counted as
// success per the idempotent bulk-write contract).
type BulkInsertResult struct {
	Inserted  int
	Conflicts int
}

// EventStore is the document-store contract the worker writes batches
// through. Implementations must treat a unique-key conflict on EventID as a
// success, not an error, so that redelivered entries are idempotent.
type EventStore interface {
	// BulkInsert persists events. ordered=false semantics: a conflict on
	// any single document must not fail the rest of the batch.
	BulkInsert(ctx context.Context, events []event.Event, ordered bool) (BulkInsertResult, error)

	Close() error
}

// MemoryEventStore is an in-memory EventStore for tests, keyed by EventID to
// mirror the unique-index conflict-as-success semantics.
type MemoryEventStore struct {
	mu     sync.Mutex
	byID   map[string]event.Event
	closed bool
}

// NewMemoryEventStore creates an empty in-memory store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{byID: make(map[string]event.Event)}
}

func (s *MemoryEventStore) BulkInsert(ctx context.Context, events []event.Event, ordered bool) (BulkInsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res BulkInsertResult
	for _, e := range events {
		if _, exists := s.byID[e.EventID]; exists {
			res.Conflicts++
			continue
		}
		s.byID[e.EventID] = e
		res.Inserted++
	}
	return res, nil
}

// All returns every stored event, for test assertions.
func (s *MemoryEventStore) All() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, 0, len(s.byID))
	for _, e := range s.byID {
		out = append(out, e)
	}
	return out
}

func (s *MemoryEventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var (
	_ EventStore = (*MemoryEventStore)(nil)
	_ EventStore = (*DuckDBEventStore)(nil)
)
