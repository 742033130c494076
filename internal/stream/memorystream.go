// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evp-stream/ingestor/internal/cache"
)

// MemoryStream is an in-memory Stream for tests, implementing the same
// append/PEL/claim-idle semantics as NATSStream without a network
// dependency.
type MemoryStream struct {
	mu       sync.Mutex
	entries  map[string]map[string]string
	nextSeq  uint64
	groups   map[string]*cache.MinHeap[Entry]
}

// NewMemoryStream creates an empty in-memory stream.
func NewMemoryStream() *MemoryStream {
	return &MemoryStream{
		entries: make(map[string]map[string]string),
		groups:  make(map[string]*cache.MinHeap[Entry]),
	}
}

func (s *MemoryStream) Append(ctx context.Context, fields map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	id := fmt.Sprintf("mem-%d", s.nextSeq)
	s.entries[id] = fields
	return id, nil
}

func (s *MemoryStream) EnsureGroup(ctx context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group]; !ok {
		s.groups[group] = cache.NewMinHeap[Entry](0)
	}
	return nil
}

func (s *MemoryStream) ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pel, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("stream: group %s not initialized, call EnsureGroup first", group)
	}

	claimed := make(map[string]struct{})
	for _, h := range pel.All() {
		claimed[h.Key] = struct{}{}
	}

	var out []Entry
	now := time.Now()
	for id, fields := range s.entries {
		if len(out) >= count {
			break
		}
		if _, inFlight := claimed[id]; inFlight {
			continue
		}
		e := Entry{
			EntryID:          id,
			Fields:           fields,
			DeliveryCount:    1,
			FirstDeliveredAt: now,
			LastDeliveredAt:  now,
			OwnerConsumer:    consumer,
		}
		pel.Push(id, e, now)
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStream) Acknowledge(ctx context.Context, group string, entryIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pel, ok := s.groups[group]
	if !ok {
		return fmt.Errorf("stream: group %s not initialized", group)
	}
	for _, id := range entryIDs {
		pel.Remove(id)
		delete(s.entries, id)
	}
	return nil
}

func (s *MemoryStream) ClaimIdle(ctx context.Context, group, newOwner string, minIdle time.Duration, count int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pel, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("stream: group %s not initialized", group)
	}

	cutoff := time.Now().Add(-minIdle)
	stale := pel.PopBefore(cutoff)

	claimed := make([]Entry, 0, len(stale))
	now := time.Now()
	for i, h := range stale {
		if count > 0 && i >= count {
			pel.Push(h.Key, h.Value, h.Timestamp)
			continue
		}
		e := h.Value
		e.OwnerConsumer = newOwner
		e.DeliveryCount++
		e.LastDeliveredAt = now
		pel.Push(h.Key, e, now)
		claimed = append(claimed, e)
	}
	return claimed, nil
}

func (s *MemoryStream) Info(ctx context.Context, group string) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pel, ok := s.groups[group]
	if !ok {
		return Info{}, fmt.Errorf("stream: group %s not initialized", group)
	}

	owners := make(map[string]struct{})
	for _, h := range pel.All() {
		owners[h.Value.OwnerConsumer] = struct{}{}
	}
	ownerList := make([]string, 0, len(owners))
	for o := range owners {
		ownerList = append(ownerList, o)
	}

	return Info{
		StreamLength:   int64(len(s.entries)),
		PendingCount:   pel.Len(),
		OwnerConsumers: ownerList,
	}, nil
}

func (s *MemoryStream) Close() error {
	return nil
}

var _ Stream = (*MemoryStream)(nil)
