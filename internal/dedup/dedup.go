// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package dedup implements the Dedup Index (C1): an atomic check-and-set
// with TTL over event_id, used by the ingestion service to reject
// already-seen events before they reach the stream.
package dedup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/evp-stream/ingestor/internal/logging"
	"github.com/evp-stream/ingestor/internal/metrics"
)

// ClaimOutcome is the result of a single TryClaim call.
type ClaimOutcome string

const (
	ClaimNew       ClaimOutcome = "NEW"
	ClaimDuplicate ClaimOutcome = "DUPLICATE"
)

// ErrClosed is returned once the index has been closed.
var ErrClosed = errors.New("dedup: index is closed")

// Index is the Dedup Index contract.
type Index interface {
	// TryClaim atomically checks whether eventID has been claimed within
	// the last ttl and, if not, claims it. Returns ClaimNew the first
	// time an event_id is seen within the TTL window, ClaimDuplicate on
	// every subsequent call until the claim expires.
	TryClaim(ctx context.Context, eventID string, ttl time.Duration) (ClaimOutcome, error)

	// BatchTryClaim claims multiple event ids in one round-trip, returning
	// a parallel slice of outcomes in the same order as eventIDs.
	BatchTryClaim(ctx context.Context, eventIDs []string, ttl time.Duration) ([]ClaimOutcome, error)

	// Clear removes every claim, regardless of TTL. Intended for tests.
	Clear(ctx context.Context) error

	// Size returns the approximate number of live claims.
	Size(ctx context.Context) (int, error)

	Close() error
}

// BadgerIndex is the production Dedup Index, backed by BadgerDB's native
// per-key TTL: a claim is simply a key write with WithTTL(ttl), and BadgerDB
// expires it for us.
type BadgerIndex struct {
	db     *badger.DB
	prefix []byte
	mu     sync.RWMutex
	closed bool
}

// NewBadgerIndex wraps an already-open BadgerDB handle. The caller owns the
// DB's lifecycle; Close here only marks this index unusable.
func NewBadgerIndex(db *badger.DB, prefix string) *BadgerIndex {
	if prefix == "" {
		prefix = "dedup:"
	}
	return &BadgerIndex{db: db, prefix: []byte(prefix)}
}

func (idx *BadgerIndex) key(eventID string) []byte {
	return append(append([]byte{}, idx.prefix...), []byte(eventID)...)
}

func (idx *BadgerIndex) TryClaim(ctx context.Context, eventID string, ttl time.Duration) (ClaimOutcome, error) {
	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return "", ErrClosed
	}
	idx.mu.RUnlock()

	key := idx.key(eventID)
	var outcome ClaimOutcome

	err := idx.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			outcome = ClaimDuplicate
			metrics.IncDedupDuplicate()
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			entry := badger.NewEntry(key, []byte{1}).WithTTL(ttl)
			if setErr := txn.SetEntry(entry); setErr != nil {
				return setErr
			}
			outcome = ClaimNew
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// BatchTryClaim claims each event id within a single BadgerDB transaction.
// A batch that is too large for one transaction is retried per-key outside
// a transaction; this keeps the common case (a single ingest batch well
// under Badger's transaction size limit) fast without imposing an
// artificial cap on caller batch sizes.
func (idx *BadgerIndex) BatchTryClaim(ctx context.Context, eventIDs []string, ttl time.Duration) ([]ClaimOutcome, error) {
	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return nil, ErrClosed
	}
	idx.mu.RUnlock()

	outcomes := make([]ClaimOutcome, len(eventIDs))

	err := idx.db.Update(func(txn *badger.Txn) error {
		for i, eventID := range eventIDs {
			key := idx.key(eventID)
			_, err := txn.Get(key)
			switch {
			case err == nil:
				outcomes[i] = ClaimDuplicate
				metrics.IncDedupDuplicate()
			case errors.Is(err, badger.ErrKeyNotFound):
				entry := badger.NewEntry(key, []byte{1}).WithTTL(ttl)
				if setErr := txn.SetEntry(entry); setErr != nil {
					return setErr
				}
				outcomes[i] = ClaimNew
			default:
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		logging.Warn().Int("batch_size", len(eventIDs)).Msg("dedup batch too large for one transaction, falling back to per-key claims")
		for i, eventID := range eventIDs {
			o, perKeyErr := idx.TryClaim(ctx, eventID, ttl)
			if perKeyErr != nil {
				return nil, perKeyErr
			}
			outcomes[i] = o
		}
		return outcomes, nil
	}
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (idx *BadgerIndex) Clear(ctx context.Context) error {
	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return ErrClosed
	}
	idx.mu.RUnlock()

	return idx.db.DropPrefix(idx.prefix)
}

func (idx *BadgerIndex) Size(ctx context.Context) (int, error) {
	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return 0, ErrClosed
	}
	idx.mu.RUnlock()

	count := 0
	err := idx.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = idx.prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (idx *BadgerIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

// MemoryIndex is an in-memory Dedup Index for tests.
type MemoryIndex struct {
	mu      sync.Mutex
	entries map[string]time.Time
	closed  bool
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]time.Time)}
}

func (idx *MemoryIndex) TryClaim(ctx context.Context, eventID string, ttl time.Duration) (ClaimOutcome, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return "", ErrClosed
	}

	now := time.Now()
	if expiresAt, ok := idx.entries[eventID]; ok && now.Before(expiresAt) {
		metrics.IncDedupDuplicate()
		return ClaimDuplicate, nil
	}
	idx.entries[eventID] = now.Add(ttl)
	return ClaimNew, nil
}

func (idx *MemoryIndex) BatchTryClaim(ctx context.Context, eventIDs []string, ttl time.Duration) ([]ClaimOutcome, error) {
	outcomes := make([]ClaimOutcome, len(eventIDs))
	for i, id := range eventIDs {
		o, err := idx.TryClaim(ctx, id, ttl)
		if err != nil {
			return nil, err
		}
		outcomes[i] = o
	}
	return outcomes, nil
}

func (idx *MemoryIndex) Clear(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	idx.entries = make(map[string]time.Time)
	return nil
}

func (idx *MemoryIndex) Size(ctx context.Context) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return 0, ErrClosed
	}
	now := time.Now()
	n := 0
	for _, exp := range idx.entries {
		if now.Before(exp) {
			n++
		}
	}
	return n, nil
}

func (idx *MemoryIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	idx.entries = nil
	return nil
}

var (
	_ Index = (*BadgerIndex)(nil)
	_ Index = (*MemoryIndex)(nil)
)
