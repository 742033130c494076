// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

/*
Package cache provides the generic in-memory data structures used by the
stream and metrics packages.

# MinHeap

MinHeap[T] is a generic min-heap ordered by timestamp with O(log n)
Push/Pop/Remove/Update and O(1) Get/Peek, backed by a parallel map for
key lookup. It is used for the event stream's pending entry list, ordered
by last-delivered time, so idle entries can be claimed with
GetBefore/PopBefore.

# SlidingWindowCounter

SlidingWindowCounter is a fixed-bucket rolling counter used to compute a
requests-per-second rate over a trailing window without storing individual
timestamps.
*/
package cache
