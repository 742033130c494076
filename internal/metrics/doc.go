// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

/*
Package metrics implements the pipeline's Metrics Counters component.

Every recording operation is non-fatal: a panic while recording is
recovered and logged, never propagated to the caller, since a metrics
outage must never stop the pipeline from ingesting or processing events.
Metrics are registered at package init through promauto, which panics if
registration fails.

RateIngest reports the mean ingested-events-per-second over the trailing
60 seconds using an in-process sliding window, independent of whatever
scrape interval Prometheus is configured with.
*/
package metrics
