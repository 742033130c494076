// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package stream implements the Event Stream (C2): an append-only log with
// consumer-group semantics, a pending entry list (PEL), and a claim-idle
// operation for reclaiming work from a stalled or crashed consumer.
package stream

import (
	"context"
	"time"
)

// Entry is a single record read from the stream, carrying its serialized
// event plus the stream-assigned bookkeeping fields a consumer needs to
// acknowledge or track it.
type Entry struct {
	EntryID          string
	Fields           map[string]string
	DeliveryCount    int
	FirstDeliveredAt time.Time
	LastDeliveredAt  time.Time
	OwnerConsumer    string
}

// Info reports point-in-time stream and consumer-group state.
type Info struct {
	StreamLength  int64
	PendingCount  int
	OwnerConsumers []string
}

// Stream is the Event Stream contract: durable append, consumer groups, a
// PEL, claim-idle, and block-on-empty read, over monotonically-assigned
// entry ids.
type Stream interface {
	// Append durably appends fields as a new entry and returns its id.
	Append(ctx context.Context, fields map[string]string) (entryID string, err error)

	// EnsureGroup idempotently creates (or binds to) a durable consumer
	// group named group.
	EnsureGroup(ctx context.Context, group string) error

	// ReadGroup fetches up to count unacknowledged entries for consumer
	// within group, blocking up to block for entries to become available.
	// Every fetched entry is recorded in the PEL under consumer's
	// ownership.
	ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration) ([]Entry, error)

	// Acknowledge marks entryIDs as done within group, removing them from
	// the PEL.
	Acknowledge(ctx context.Context, group string, entryIDs []string) error

	// ClaimIdle reassigns PEL entries within group that have been idle for
	// at least minIdle to newOwner, incrementing their delivery count, and
	// returns the reassigned entries.
	ClaimIdle(ctx context.Context, group, newOwner string, minIdle time.Duration, count int) ([]Entry, error)

	// Info reports stream length, PEL size, and the set of distinct owners
	// within group.
	Info(ctx context.Context, group string) (Info, error)

	Close() error
}

// NewConsumerID builds the pipeline's consumer identity:
// worker-<hostname>-<pid>-<6 hex chars>.
func NewConsumerID(hostname string, pid int) (string, error) {
	suffix, err := randomHex(3)
	if err != nil {
		return "", err
	}
	return "worker-" + hostname + "-" + itoa(pid) + "-" + suffix, nil
}
