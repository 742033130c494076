// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched for, in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/evp/config.yaml",
	"/etc/evp/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			BackendURL:    "nats://127.0.0.1:4222",
			StreamName:    "events_stream",
			Subject:       "events.ingest",
			ConsumerGroup: "workers",
			ConsumerName:  "",
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			MaxAckPending: 1000,
			MaxLenApprox:  10_000_000,
		},
		Dedup: DedupConfig{
			BackendURL: "badger://",
			DBPath:     "/data/dedup",
			TTL:        600 * time.Second,
		},
		EventStore: EventStoreConfig{
			URL:  "duckdb://",
			DB:   "events",
			Path: "/data/events.duckdb",
		},
		Credential: CredentialConfig{
			URL:    "badger://",
			DBPath: "/data/credentials",
		},
		Worker: WorkerConfig{
			Count:         4,
			BatchSize:     100,
			BatchTimeout:  500 * time.Millisecond,
			ReadCount:     50,
			ReadBlock:     100 * time.Millisecond,
			StaleAge:      60 * time.Second,
			ClaimInterval: 30 * time.Second,
			ShutdownGrace: 5 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			CapDelay:    5 * time.Second,
			Jitter:      0.3,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		DLQ: DLQConfig{
			DBPath:        "/data/dlq",
			MaxEntries:    100_000,
			RetentionTime: 7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Disabled:      false,
			RequestsPerS:  1000,
			Burst:         2000,
			CleanupPeriod: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// LoadWithKoanf loads configuration from defaults, an optional YAML file,
// and environment variables (highest precedence), then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps the environment variable names named in the ingest
// service's operational contract onto koanf's dotted config paths. Unmapped
// variables are ignored so unrelated process environment doesn't leak in.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	mappings := map[string]string{
		"server_port":             "server.port",
		"server_host":             "server.host",
		"server_read_timeout":     "server.read_timeout",
		"server_write_timeout":    "server.write_timeout",
		"server_shutdown_timeout": "server.shutdown_timeout",

		"stream_backend_url":     "stream.backend_url",
		"nats_url":               "stream.backend_url",
		"stream_name":            "stream.stream_name",
		"stream_subject":         "stream.subject",
		"consumer_group":         "stream.consumer_group",
		"consumer_name":          "stream.consumer_name",
		"stream_ack_wait":        "stream.ack_wait",
		"stream_max_deliver":     "stream.max_deliver",
		"stream_max_ack_pending": "stream.max_ack_pending",
		"stream_max_len_approx":  "stream.max_len_approx",

		"dedup_backend_url": "dedup.backend_url",
		"dedup_db_path":     "dedup.db_path",
		"dedup_ttl":         "dedup.ttl",

		"eventstore_url":  "eventstore.url",
		"eventstore_db":   "eventstore.db",
		"eventstore_path": "eventstore.path",

		"credential_store_url": "credential.url",
		"credential_db_path":   "credential.db_path",

		"worker_count":              "worker.count",
		"worker_batch_size":         "worker.batch_size",
		"worker_batch_timeout_ms":   "worker.batch_timeout",
		"worker_read_count":         "worker.read_count",
		"worker_read_block_ms":      "worker.read_block",
		"worker_stale_age_ms":       "worker.stale_age",
		"worker_claim_interval_ms":  "worker.claim_interval",
		"worker_shutdown_grace_ms":  "worker.shutdown_grace",

		"retry_max_attempts": "retry.max_attempts",
		"retry_base_ms":      "retry.base_delay",
		"retry_cap_ms":       "retry.cap_delay",
		"retry_jitter":       "retry.jitter",

		"breaker_failure_threshold": "breaker.failure_threshold",
		"breaker_timeout_ms":        "breaker.open_timeout",

		"dlq_db_path":        "dlq.db_path",
		"dlq_max_entries":    "dlq.max_entries",
		"dlq_retention_time": "dlq.retention_time",

		"ratelimit_disabled":       "ratelimit.disabled",
		"ratelimit_requests_per_s": "ratelimit.requests_per_second",
		"ratelimit_burst":          "ratelimit.burst",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"metrics_port": "metrics.port",
		"metrics_path": "metrics.path",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}
