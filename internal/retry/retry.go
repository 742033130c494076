// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Package retry implements the pipeline's generic retry/backoff utility
// (withRetry): exponential backoff with jitter, a bounded attempt count,
// and a context-aware sleep that returns early on cancellation.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/evp-stream/ingestor/internal/ingesterr"
	"github.com/evp-stream/ingestor/internal/logging"
)

// Config holds the retry/backoff parameters. Defaults match the pipeline's
// contract: max_retries=3, base=100ms, cap=5s, jitter=0.3.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
	Jitter      float64
}

// DefaultConfig returns the pipeline's default retry parameters.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		CapDelay:    5 * time.Second,
		Jitter:      0.3,
	}
}

// Result is the outcome of Do.
type Result[T any] struct {
	Value    T
	Attempts int
	Err      error
}

// Do calls fn until it succeeds, a non-retryable error is returned, the
// context is canceled, or MaxAttempts is exhausted, sleeping with
// exponential backoff and jitter between attempts. Attempt numbering starts
// at 0 for the first call, matching the pipeline's "retry N of max_retries"
// accounting (so MaxAttempts=3 permits the initial call plus 3 retries).
func Do[T any](ctx context.Context, name string, cfg Config, fn func(ctx context.Context, attempt int) (T, error)) Result[T] {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Result[T]{Value: zero, Attempts: attempt, Err: ctx.Err()}
		default:
		}

		value, err := fn(ctx, attempt)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt + 1, Err: nil}
		}
		lastErr = err

		if !ingesterr.IsRetryable(err) {
			logging.Warn().Str("op", name).Int("attempt", attempt).Err(err).Msg("non-retryable error, giving up")
			return Result[T]{Value: zero, Attempts: attempt + 1, Err: err}
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := CalculateBackoff(cfg, attempt)
		logging.Warn().Str("op", name).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("retrying after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result[T]{Value: zero, Attempts: attempt + 1, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	return Result[T]{Value: zero, Attempts: cfg.MaxAttempts + 1, Err: lastErr}
}

// CalculateBackoff computes backoff = min(cap, base * 2^attempt) plus
// jitter in [-jitterFraction, +jitterFraction] of that value, floored at
// zero.
func CalculateBackoff(cfg Config, attempt int) time.Duration {
	base := cfg.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	capDelay := cfg.CapDelay
	if capDelay <= 0 {
		capDelay = 5 * time.Second
	}

	backoff := float64(base) * math.Pow(2, float64(attempt))
	if backoff > float64(capDelay) || math.IsInf(backoff, 1) {
		backoff = float64(capDelay)
	}

	jitter := cfg.Jitter
	if jitter > 0 {
		jitterRange := backoff * jitter
		backoff += jitterRange * (rand.Float64()*2 - 1)
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}
