// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package config

import "time"

// Config is the root configuration for both the ingest API process and the
// worker process. Both binaries load the same Config and only read the
// sections relevant to their role.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Stream      StreamConfig      `koanf:"stream"`
	Dedup       DedupConfig       `koanf:"dedup"`
	EventStore  EventStoreConfig  `koanf:"eventstore"`
	Credential  CredentialConfig  `koanf:"credential"`
	Worker      WorkerConfig      `koanf:"worker"`
	Retry       RetryConfig       `koanf:"retry"`
	Breaker     BreakerConfig     `koanf:"breaker"`
	DLQ         DLQConfig         `koanf:"dlq"`
	RateLimit   RateLimitConfig   `koanf:"ratelimit"`
	Logging     LoggingConfig     `koanf:"logging"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// ServerConfig configures the ingest API's HTTP surface.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StreamConfig configures the append-only event stream backend.
type StreamConfig struct {
	BackendURL     string        `koanf:"backend_url"`
	StreamName     string        `koanf:"stream_name"`
	Subject        string        `koanf:"subject"`
	ConsumerGroup  string        `koanf:"consumer_group"`
	ConsumerName   string        `koanf:"consumer_name"`
	AckWait        time.Duration `koanf:"ack_wait"`
	MaxDeliver     int           `koanf:"max_deliver"`
	MaxAckPending  int           `koanf:"max_ack_pending"`
	MaxLenApprox   int64         `koanf:"max_len_approx"`
}

// DedupConfig configures the dedup index (C1).
type DedupConfig struct {
	BackendURL string        `koanf:"backend_url"`
	DBPath     string        `koanf:"db_path"`
	TTL        time.Duration `koanf:"ttl"`
}

// EventStoreConfig configures the reference document store.
type EventStoreConfig struct {
	URL  string `koanf:"url"`
	DB   string `koanf:"db"`
	Path string `koanf:"path"`
}

// CredentialConfig configures the reference API-key credential store.
type CredentialConfig struct {
	URL    string `koanf:"url"`
	DBPath string `koanf:"db_path"`
}

// WorkerConfig configures the C5 worker loop.
type WorkerConfig struct {
	Count             int           `koanf:"count"`
	BatchSize         int           `koanf:"batch_size"`
	BatchTimeout      time.Duration `koanf:"batch_timeout"`
	ReadCount         int           `koanf:"read_count"`
	ReadBlock         time.Duration `koanf:"read_block"`
	StaleAge          time.Duration `koanf:"stale_age"`
	ClaimInterval     time.Duration `koanf:"claim_interval"`
	ShutdownGrace     time.Duration `koanf:"shutdown_grace"`
}

// RetryConfig configures the generic retry/backoff utility (C7).
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	CapDelay    time.Duration `koanf:"cap_delay"`
	Jitter      float64       `koanf:"jitter"`
}

// BreakerConfig configures the circuit breaker wrapping EventStore/DLQ calls.
type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
}

// DLQConfig configures the dead-letter sink (C6).
type DLQConfig struct {
	DBPath        string        `koanf:"db_path"`
	MaxEntries    int           `koanf:"max_entries"`
	RetentionTime time.Duration `koanf:"retention_time"`
}

// RateLimitConfig configures per-API-key ingest rate limiting.
type RateLimitConfig struct {
	Disabled      bool          `koanf:"disabled"`
	RequestsPerS  float64       `koanf:"requests_per_second"`
	Burst         int           `koanf:"burst"`
	CleanupPeriod time.Duration `koanf:"cleanup_period"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Port int    `koanf:"port"`
	Path string `koanf:"path"`
}
