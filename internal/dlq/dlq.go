// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package dlq implements the Dead-Letter Sink (C6): a durable store of
// permanently-failed events, keyed uniquely by original_event_id so a
// claim-idle re-processed entry that fails again is a no-op rather than a
// duplicate record.
package dlq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Record is a single dead-letter entry.
type Record struct {
	OriginalEventID      string    `json:"original_event_id"`
	UserID               string    `json:"user_id"`
	OriginalEventPayload []byte    `json:"original_event_payload"`
	ErrorMessage         string    `json:"error_message"`
	FailedAt             time.Time `json:"failed_at"`
	RetryCount           int       `json:"retry_count"`
	StreamEntryID        string    `json:"stream_entry_id"`
}

// Sink is the Dead-Letter Sink contract.
type Sink interface {
	// Write persists records. A record whose OriginalEventID already
	// exists is a no-op, not an error, so repeated failed flushes (after
	// claim-idle re-processing) don't duplicate dead-letter entries.
	Write(ctx context.Context, records []Record) error

	// ListEntries returns up to limit records, most recently failed
	// first. Intended for operator tooling, not the hot path.
	ListEntries(ctx context.Context, limit int) ([]Record, error)

	// Stats reports the current entry count.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Stats is a point-in-time summary of the sink's contents.
type Stats struct {
	EntryCount int
}

// ErrClosed is returned once a sink has been closed.
var ErrClosed = errors.New("dlq: sink is closed")

// BadgerSink is the production Dead-Letter Sink, backed by BadgerDB.
type BadgerSink struct {
	db     *badger.DB
	prefix []byte
	mu     sync.RWMutex
	closed bool
}

// NewBadgerSink wraps an already-open BadgerDB handle.
func NewBadgerSink(db *badger.DB, prefix string) *BadgerSink {
	if prefix == "" {
		prefix = "dlq:"
	}
	return &BadgerSink{db: db, prefix: []byte(prefix)}
}

func (s *BadgerSink) key(originalEventID string) []byte {
	return append(append([]byte{}, s.prefix...), []byte(originalEventID)...)
}

func (s *BadgerSink) Write(ctx context.Context, records []Record) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	return s.db.Update(func(txn *badger.Txn) error {
		for _, rec := range records {
			key := s.key(rec.OriginalEventID)
			if _, err := txn.Get(key); err == nil {
				continue // already dead-lettered, no-op
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerSink) ListEntries(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	s.mu.RUnlock()

	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && (limit <= 0 || len(records) < limit); it.Next() {
			item := it.Item()
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func (s *BadgerSink) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return Stats{}, ErrClosed
	}
	s.mu.RUnlock()

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return Stats{EntryCount: count}, err
}

func (s *BadgerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MemorySink is an in-memory Dead-Letter Sink for tests.
type MemorySink struct {
	mu      sync.Mutex
	records map[string]Record
	closed  bool
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string]Record)}
}

func (s *MemorySink) Write(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, rec := range records {
		if _, exists := s.records[rec.OriginalEventID]; exists {
			continue
		}
		s.records[rec.OriginalEventID] = rec
	}
	return nil
}

func (s *MemorySink) ListEntries(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemorySink) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Stats{}, ErrClosed
	}
	return Stats{EntryCount: len(s.records)}, nil
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var (
	_ Sink = (*BadgerSink)(nil)
	_ Sink = (*MemorySink)(nil)
)
