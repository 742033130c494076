// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"

	"github.com/evp-stream/ingestor/internal/event"
	"github.com/evp-stream/ingestor/internal/logging"
)

// Config holds the DuckDB connection and schema tuning parameters.
type Config struct {
	Path                   string
	Threads                int
	MaxMemory              string
	PreserveInsertionOrder bool
	MaxOpenConns           int
	ConnMaxLifetime        time.Duration
}

// DefaultConfig returns sane defaults for a single-node reference deployment.
func DefaultConfig() Config {
	return Config{
		Path:                   "./data/events.duckdb",
		MaxMemory:              "2GB",
		PreserveInsertionOrder: false,
		MaxOpenConns:           runtime.NumCPU(),
		ConnMaxLifetime:        time.Hour,
	}
}

// DuckDBEventStore is the reference EventStore, backed by a single DuckDB
// file. It is a reference implementation of the external EventStore
// contract, not the pipeline's primary scaling axis: the contract calls for
// sharding by user_id hash across a document store cluster, which this
// single-node embedded database does not attempt to replicate. Swapping in
// a sharded document store behind the same EventStore interface is expected
// in production.
type DuckDBEventStore struct {
	conn *sql.DB
	cfg  Config
}

// New opens (creating if necessary) the DuckDB file at cfg.Path and ensures
// the events table and its indexes exist.
func New(cfg Config) (*DuckDBEventStore, error) {
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}
	if cfg.MaxMemory == "" {
		cfg.MaxMemory = "2GB"
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = runtime.NumCPU()
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = time.Hour
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("eventstore: create data dir %s: %w", dir, err)
		}
	}

	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s",
		cfg.Path, cfg.Threads, cfg.MaxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open duckdb: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventstore: ping duckdb: %w", err)
	}

	store := &DuckDBEventStore{conn: conn, cfg: cfg}
	if err := store.migrate(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventstore: migrate: %w", err)
	}
	return store, nil
}

func (s *DuckDBEventStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id        VARCHAR PRIMARY KEY,
			event_type      VARCHAR NOT NULL,
			user_id         VARCHAR NOT NULL,
			session_id      VARCHAR,
			timestamp       TIMESTAMP NOT NULL,
			priority        INTEGER NOT NULL,
			metadata        JSON,
			payload         JSON,
			ingested_at     TIMESTAMP NOT NULL,
			source_user_id  VARCHAR,
			created_at      TIMESTAMP DEFAULT current_timestamp
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_event_type ON events (event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_timestamp ON events (user_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp_type ON events (timestamp, event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created_type ON events (created_at, event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_type_timestamp ON events (user_id, event_type, timestamp)`,
		`CREATE TABLE IF NOT EXISTS events_dlq (
			original_event_id     VARCHAR PRIMARY KEY,
			user_id               VARCHAR NOT NULL,
			original_event_payload JSON NOT NULL,
			error_message         VARCHAR NOT NULL,
			failed_at             TIMESTAMP NOT NULL,
			retry_count           INTEGER NOT NULL,
			stream_entry_id       VARCHAR
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// BulkInsert writes events one statement per row inside a single
// transaction, using ON CONFLICT DO NOTHING on event_id so a redelivered
// (already-persisted) event counts as a conflict, not a failure. ordered is
// accepted for interface symmetry with EventStore.BulkInsert's contract but
// is a no-op here: DuckDB's per-row conflict handling already makes the
// batch ordered=false-equivalent regardless of statement order.
func (s *DuckDBEventStore) BulkInsert(ctx context.Context, events []event.Event, ordered bool) (BulkInsertResult, error) {
	if len(events) == 0 {
		return BulkInsertResult{}, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return BulkInsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (event_id, event_type, user_id, session_id, timestamp, priority, metadata, payload, ingested_at, source_user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`)
	if err != nil {
		return BulkInsertResult{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var res BulkInsertResult
	for _, e := range events {
		metadataJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return BulkInsertResult{}, fmt.Errorf("marshal metadata for %s: %w", e.EventID, err)
		}
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return BulkInsertResult{}, fmt.Errorf("marshal payload for %s: %w", e.EventID, err)
		}

		result, err := stmt.ExecContext(ctx,
			e.EventID, e.EventType, e.UserID, e.SessionID, e.Timestamp, e.Priority,
			string(metadataJSON), string(payloadJSON), e.IngestedAt, e.SourceUserID,
		)
		if err != nil {
			return BulkInsertResult{}, fmt.Errorf("insert %s: %w", e.EventID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return BulkInsertResult{}, fmt.Errorf("rows affected for %s: %w", e.EventID, err)
		}
		if n > 0 {
			res.Inserted++
		} else {
			res.Conflicts++
		}
	}

	if err := tx.Commit(); err != nil {
		return BulkInsertResult{}, fmt.Errorf("commit: %w", err)
	}

	logging.Ctx(ctx).Debug().Int("inserted", res.Inserted).Int("conflicts", res.Conflicts).Msg("bulk insert committed")
	return res, nil
}

func (s *DuckDBEventStore) Close() error {
	return s.conn.Close()
}
