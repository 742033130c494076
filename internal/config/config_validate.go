// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package config

import (
	"fmt"
	"strings"
)

// Validate checks the loaded configuration for fatal misconfiguration.
// It is called once at startup by LoadWithKoanf; a non-nil error must abort
// the process before any component connects to its backend.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Stream.BackendURL == "" {
		errs = append(errs, "stream.backend_url is required")
	}
	if c.Stream.ConsumerGroup == "" {
		errs = append(errs, "stream.consumer_group is required")
	}
	if c.Dedup.TTL <= 0 {
		errs = append(errs, "dedup.ttl must be positive")
	}
	if c.Worker.Count <= 0 {
		errs = append(errs, "worker.count must be positive")
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, "worker.batch_size must be positive")
	}
	if c.Worker.BatchTimeout <= 0 {
		errs = append(errs, "worker.batch_timeout must be positive")
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts must be non-negative")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, "retry.jitter must be between 0 and 1")
	}
	if c.Breaker.FailureThreshold == 0 {
		errs = append(errs, "breaker.failure_threshold must be positive")
	}
	if c.DLQ.MaxEntries <= 0 {
		errs = append(errs, "dlq.max_entries must be positive")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
