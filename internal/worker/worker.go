// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package worker implements the Worker (C5): a long-lived consumer that
// drains a stream consumer group into bounded batches, bulk-inserts them
// into the event store, and routes exhausted-retry batches to the
// dead-letter sink. One goroutine owns the buffer; a "processing" gate
// (not a lock, per the pipeline's cooperative-scheduler design) keeps at
// most one ReadGroup or BulkInsert round-trip in flight at a time.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/evp-stream/ingestor/internal/dlq"
	"github.com/evp-stream/ingestor/internal/event"
	"github.com/evp-stream/ingestor/internal/eventstore"
	"github.com/evp-stream/ingestor/internal/ingesterr"
	"github.com/evp-stream/ingestor/internal/logging"
	"github.com/evp-stream/ingestor/internal/metrics"
	"github.com/evp-stream/ingestor/internal/retry"
	"github.com/evp-stream/ingestor/internal/stream"
)

// Config holds the worker's loop tunables, matching the pipeline's named
// constants.
type Config struct {
	ReadCount      int
	BlockDuration  time.Duration
	BatchSize      int
	BatchTimeout   time.Duration
	ClaimInterval  time.Duration
	StaleAge       time.Duration
	ClaimCount     int
	LoopErrorSleep time.Duration
	ShutdownTimeout time.Duration
	Retry          retry.Config
}

// DefaultConfig returns the pipeline's default loop parameters.
func DefaultConfig() Config {
	return Config{
		ReadCount:       50,
		BlockDuration:   100 * time.Millisecond,
		BatchSize:       100,
		BatchTimeout:    500 * time.Millisecond,
		ClaimInterval:   30 * time.Second,
		StaleAge:        60 * time.Second,
		ClaimCount:      100,
		LoopErrorSleep:  2 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		Retry:           retry.DefaultConfig(),
	}
}

// bufEntry pairs a stream entry with its decoded event so a flush can both
// bulk-insert the event and, on failure, acknowledge or dead-letter the
// originating entry.
type bufEntry struct {
	entry stream.Entry
	ev    event.Event
}

// Stats is a point-in-time snapshot of a worker's state, exposed for
// health checks and operator tooling.
type Stats struct {
	ConsumerID     string
	BufferSize     int
	LastFlushAt    time.Time
	Processing     bool
	Processed      int64
	Failed         int64
	DeadLettered   int64
}

// Worker drains one stream consumer group into the event store.
type Worker struct {
	Stream     stream.Stream
	Store      eventstore.EventStore
	DLQ        dlq.Sink
	Group      string
	ConsumerID string
	Config     Config

	insertBreaker *gobreaker.CircuitBreaker[eventstore.BulkInsertResult]
	dlqBreaker    *gobreaker.CircuitBreaker[struct{}]

	mu         sync.Mutex
	buffer     []bufEntry
	lastFlush  time.Time
	processing bool

	processed    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64

	running atomic.Bool
	stopped chan struct{}
}

// New wires a Worker against its stream, event store, and dead-letter
// sink. group is the consumer group to drain; consumerID must be globally
// unique (see stream.NewConsumerID).
func New(st stream.Stream, store eventstore.EventStore, sink dlq.Sink, group, consumerID string, cfg Config) *Worker {
	insertSettings := gobreaker.Settings{
		Name:        "event_store_bulk_insert",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	dlqSettings := insertSettings
	dlqSettings.Name = "dlq_write"

	w := &Worker{
		Stream:        st,
		Store:         store,
		DLQ:           sink,
		Group:         group,
		ConsumerID:    consumerID,
		Config:        cfg,
		insertBreaker: gobreaker.NewCircuitBreaker[eventstore.BulkInsertResult](insertSettings),
		dlqBreaker:    gobreaker.NewCircuitBreaker[struct{}](dlqSettings),
		lastFlush:     time.Now(),
		stopped:       make(chan struct{}),
	}
	return w
}

// Serve implements suture.Service: it runs the main loop until ctx is
// canceled, then flushes any remaining buffer once, best-effort, before
// returning.
func (w *Worker) Serve(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)
	defer close(w.stopped)

	if err := w.Stream.EnsureGroup(ctx, w.Group); err != nil {
		return ingesterr.Fatal("ensure consumer group", err)
	}

	claimTicker := time.NewTicker(w.Config.ClaimInterval)
	defer claimTicker.Stop()
	claimCh := make(chan struct{}, 1)
	claimTickerDone := make(chan struct{})
	go func() {
		defer close(claimTickerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-claimTicker.C:
				select {
				case claimCh <- struct{}{}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.flushRemainder(context.Background())
			<-claimTickerDone
			return nil
		case <-claimCh:
			w.claimIdle(ctx)
		default:
		}

		if ctx.Err() != nil {
			continue
		}

		entries, err := w.Stream.ReadGroup(ctx, w.Group, w.ConsumerID, w.Config.ReadCount, w.Config.BlockDuration)
		if err != nil {
			logging.Warn().Str("consumer_id", w.ConsumerID).Err(err).Msg("worker: read group failed, backing off")
			w.sleep(ctx, w.Config.LoopErrorSleep)
			continue
		}

		for _, e := range entries {
			w.ingestEntry(ctx, e)
		}

		w.mu.Lock()
		shouldFlush := len(w.buffer) >= w.Config.BatchSize ||
			(len(w.buffer) > 0 && time.Since(w.lastFlush) >= w.Config.BatchTimeout)
		w.mu.Unlock()

		if shouldFlush {
			w.flush(ctx)
		}
	}
}

// ingestEntry decodes a stream entry's event payload, pushing it into the
// buffer on success or acknowledging-and-dropping it on decode failure
// (an unparseable entry can never succeed, so redelivering it forever
// would only waste PEL slots).
func (w *Worker) ingestEntry(ctx context.Context, e stream.Entry) {
	var ev event.Event
	if err := json.Unmarshal([]byte(e.Fields["data"]), &ev); err != nil {
		logging.Warn().Str("entry_id", e.EntryID).Err(err).Msg("worker: could not decode entry, dropping")
		if ackErr := w.Stream.Acknowledge(ctx, w.Group, []string{e.EntryID}); ackErr != nil {
			logging.Warn().Str("entry_id", e.EntryID).Err(ackErr).Msg("worker: ack of dropped entry failed")
		}
		return
	}

	w.mu.Lock()
	w.buffer = append(w.buffer, bufEntry{entry: e, ev: ev})
	w.mu.Unlock()
}

// claimIdle reassigns idle PEL entries to this worker and feeds them
// through the same decode path as freshly-read entries.
func (w *Worker) claimIdle(ctx context.Context) {
	claimed, err := w.Stream.ClaimIdle(ctx, w.Group, w.ConsumerID, w.Config.StaleAge, w.Config.ClaimCount)
	if err != nil {
		logging.Warn().Err(err).Msg("worker: claim idle failed")
		return
	}
	for _, e := range claimed {
		w.ingestEntry(ctx, e)
	}
}

// flush executes the drain loop's flush(state) step: move the buffer
// out under the processing gate, bulk-insert with retry+circuit-breaker,
// and on exhausted retries route to the dead-letter sink.
func (w *Worker) flush(ctx context.Context) {
	w.mu.Lock()
	if w.processing || len(w.buffer) == 0 {
		w.mu.Unlock()
		return
	}
	w.processing = true
	batch := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.processing = false
		w.lastFlush = time.Now()
		w.mu.Unlock()
	}()

	start := time.Now()
	events := make([]event.Event, len(batch))
	entryIDs := make([]string, len(batch))
	for i, b := range batch {
		events[i] = b.ev
		entryIDs[i] = b.entry.EntryID
	}

	result := retry.Do(ctx, "bulk_insert", w.Config.Retry, func(ctx context.Context, attempt int) (eventstore.BulkInsertResult, error) {
		return w.insertBreaker.Execute(func() (eventstore.BulkInsertResult, error) {
			return w.Store.BulkInsert(ctx, events, false)
		})
	})
	metrics.ObserveFlush(time.Since(start), len(batch))

	if result.Err == nil {
		if ackErr := w.Stream.Acknowledge(ctx, w.Group, entryIDs); ackErr != nil {
			logging.Warn().Err(ackErr).Msg("worker: acknowledge after successful flush failed, entries will redeliver")
		}
		eventTypes := make([]string, len(events))
		for i, ev := range events {
			eventTypes[i] = ev.EventType
		}
		metrics.IncProcessed(w.Group, len(batch), eventTypes, time.Since(start))
		w.processed.Add(int64(len(batch)))
		return
	}

	logging.Error().Err(result.Err).Int("batch_size", len(batch)).Msg("worker: bulk insert exhausted retries, routing to dead-letter sink")
	metrics.IncFailed(w.Group, string(ingesterr.CategoryOf(result.Err)))
	w.failed.Add(int64(len(batch)))

	records := make([]dlq.Record, len(batch))
	for i, b := range batch {
		payload, _ := json.Marshal(b.ev)
		records[i] = dlq.Record{
			OriginalEventID:      b.ev.EventID,
			UserID:               b.ev.UserID,
			OriginalEventPayload: payload,
			ErrorMessage:         result.Err.Error(),
			RetryCount:           result.Attempts,
			FailedAt:             time.Now(),
			StreamEntryID:        b.entry.EntryID,
		}
	}

	dlqResult := retry.Do(ctx, "dlq_write", w.Config.Retry, func(ctx context.Context, attempt int) (struct{}, error) {
		return w.dlqBreaker.Execute(func() (struct{}, error) {
			return struct{}{}, w.DLQ.Write(ctx, records)
		})
	})

	if dlqResult.Err == nil {
		if ackErr := w.Stream.Acknowledge(ctx, w.Group, entryIDs); ackErr != nil {
			logging.Warn().Err(ackErr).Msg("worker: acknowledge after dead-letter write failed, entries will redeliver")
		}
		metrics.IncDLQ(w.Group, string(ingesterr.CategoryOf(result.Err)))
		w.deadLettered.Add(int64(len(batch)))
		return
	}

	logging.Error().Err(dlqResult.Err).Int("batch_size", len(batch)).Msg("worker: dead-letter write also failed, entries left unacknowledged for redelivery")
}

// flushRemainder is the best-effort shutdown flush: a non-empty buffer at
// Stop time is flushed once, with failures simply left to redeliver to the
// next owner.
func (w *Worker) flushRemainder(ctx context.Context) {
	w.mu.Lock()
	empty := len(w.buffer) == 0
	w.mu.Unlock()
	if empty {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, w.Config.ShutdownTimeout)
	defer cancel()
	w.flush(shutdownCtx)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Stop signals the worker to stop and waits up to Config.ShutdownTimeout
// for the in-flight loop iteration (including any best-effort final
// flush) to finish. Callers typically cancel the context passed to Serve
// and then call Stop to block until shutdown completes.
func (w *Worker) Stop() {
	select {
	case <-w.stopped:
	case <-time.After(w.Config.ShutdownTimeout):
	}
}

// Stats reports a point-in-time snapshot of the worker's state.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		ConsumerID:   w.ConsumerID,
		BufferSize:   len(w.buffer),
		LastFlushAt:  w.lastFlush,
		Processing:   w.processing,
		Processed:    w.processed.Load(),
		Failed:       w.failed.Load(),
		DeadLettered: w.deadLettered.Load(),
	}
}

// String implements fmt.Stringer so suture logs this service under its
// consumer id.
func (w *Worker) String() string {
	return w.ConsumerID
}
