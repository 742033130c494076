// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/evp-stream/ingestor/internal/cache"
	"github.com/evp-stream/ingestor/internal/logging"
)

var (
	eventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evp_events_ingested_total",
			Help: "Total number of events accepted by the ingestion service.",
		},
		[]string{"source"},
	)

	eventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evp_events_processed_total",
			Help: "Total number of events successfully written to the event store.",
		},
		[]string{"consumer_group"},
	)

	eventsProcessedByTypeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evp_events_processed_by_type_total",
			Help: "Total number of events successfully written to the event store, by event type.",
		},
		[]string{"consumer_group", "event_type"},
	)

	eventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evp_events_failed_total",
			Help: "Total number of events that failed processing (before DLQ or drop).",
		},
		[]string{"consumer_group", "category"},
	)

	eventsDLQTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evp_events_dlq_total",
			Help: "Total number of events routed to the dead-letter sink.",
		},
		[]string{"consumer_group", "category"},
	)

	dedupDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evp_dedup_duplicates_total",
			Help: "Total number of ingest requests rejected as duplicates by the dedup index.",
		},
	)

	batchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evp_worker_flush_duration_seconds",
			Help:    "Duration of a worker's bulk-insert flush to the event store.",
			Buckets: prometheus.DefBuckets,
		},
	)

	batchSizeHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evp_worker_batch_size",
			Help:    "Number of events in each flushed batch.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	streamPendingGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evp_stream_pending_entries",
			Help: "Number of unacknowledged entries currently held in a consumer group's pending entry list.",
		},
		[]string{"consumer_group"},
	)

	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evp_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		},
		[]string{"name"},
	)

	// ingestRate is a 60-bucket, 1-second sliding window feeding RateIngest.
	ingestRate = cache.NewSlidingWindowCounter(60*time.Second, 60)

	ingestedTotal           atomic.Int64
	lastBatchSize           atomic.Int64
	lastProcessedAtUnixNano atomic.Int64
	lastProcessingMs        atomic.Int64
)

// IncIngested records one accepted ingest event from the given source.
// Non-fatal: swallows any internal error.
func IncIngested(source string) {
	defer recoverMetric("IncIngested")
	if source == "" {
		source = "unknown"
	}
	eventsIngestedTotal.WithLabelValues(source).Inc()
	ingestRate.IncrementOne()
	ingestedTotal.Add(1)
}

// IncProcessed records a flushed batch of batchSize events, one per
// eventTypes entry, successfully written to the event store for the given
// consumer group, and updates the last-batch accessors. Non-fatal.
func IncProcessed(consumerGroup string, batchSize int, eventTypes []string, processingDuration time.Duration) {
	defer recoverMetric("IncProcessed")
	eventsProcessedTotal.WithLabelValues(consumerGroup).Add(float64(batchSize))
	for _, t := range eventTypes {
		if t == "" {
			t = "unknown"
		}
		eventsProcessedByTypeTotal.WithLabelValues(consumerGroup, t).Inc()
	}
	lastBatchSize.Store(int64(batchSize))
	lastProcessedAtUnixNano.Store(time.Now().UnixNano())
	lastProcessingMs.Store(processingDuration.Milliseconds())
}

// IncFailed records a processing failure classified under category
// (transient, permanent, validation, ...). Non-fatal.
func IncFailed(consumerGroup, category string) {
	defer recoverMetric("IncFailed")
	eventsFailedTotal.WithLabelValues(consumerGroup, category).Inc()
}

// IncDLQ records an event routed to the dead-letter sink. Non-fatal.
func IncDLQ(consumerGroup, category string) {
	defer recoverMetric("IncDLQ")
	eventsDLQTotal.WithLabelValues(consumerGroup, category).Inc()
}

// IncDedupDuplicate records a request rejected by the dedup index as a
// duplicate event_id. Non-fatal.
func IncDedupDuplicate() {
	defer recoverMetric("IncDedupDuplicate")
	dedupDuplicatesTotal.Inc()
}

// ObserveFlush records the duration and size of a worker's flush to the
// event store. Non-fatal.
func ObserveFlush(d time.Duration, batchSize int) {
	defer recoverMetric("ObserveFlush")
	batchFlushDuration.Observe(d.Seconds())
	batchSizeHistogram.Observe(float64(batchSize))
}

// SetStreamPending reports the current PEL size for a consumer group.
// Non-fatal.
func SetStreamPending(consumerGroup string, n int) {
	defer recoverMetric("SetStreamPending")
	streamPendingGauge.WithLabelValues(consumerGroup).Set(float64(n))
}

// SetBreakerState reports a circuit breaker's numeric state (0/1/2).
// Non-fatal.
func SetBreakerState(name string, state int) {
	defer recoverMetric("SetBreakerState")
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RateIngest returns the mean ingested events per second over the trailing
// 60-second window.
func RateIngest() float64 {
	defer recoverMetric("RateIngest")
	return float64(ingestRate.Count()) / 60.0
}

// TotalIngested returns the lifetime count of events accepted by the
// ingestion service, across all sources.
func TotalIngested() int64 {
	return ingestedTotal.Load()
}

// LastBatchSize returns the size of the most recently flushed batch.
func LastBatchSize() int {
	return int(lastBatchSize.Load())
}

// LastProcessedAt returns when the most recent batch was flushed, or the
// zero time if no batch has been flushed yet.
func LastProcessedAt() time.Time {
	ns := lastProcessedAtUnixNano.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LastProcessingDuration returns how long the most recently flushed batch
// took to write to the event store.
func LastProcessingDuration() time.Duration {
	return time.Duration(lastProcessingMs.Load()) * time.Millisecond
}

// recoverMetric ensures a panic inside the metrics package (e.g. a label
// cardinality mismatch) never propagates to the caller.
func recoverMetric(op string) {
	if r := recover(); r != nil {
		logging.Error().Interface("panic", r).Str("op", op).Msg("metrics operation recovered from panic")
	}
}
