// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Command server runs the ingest API: it accepts producer-submitted
// events over HTTP, deduplicates and validates them, and appends them to
// the event stream for workers to drain. It performs no synchronous
// writes to the event store.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/evp-stream/ingestor/internal/api"
	"github.com/evp-stream/ingestor/internal/auth"
	"github.com/evp-stream/ingestor/internal/config"
	"github.com/evp-stream/ingestor/internal/dedup"
	"github.com/evp-stream/ingestor/internal/ingest"
	"github.com/evp-stream/ingestor/internal/logging"
	"github.com/evp-stream/ingestor/internal/stream"
	"github.com/evp-stream/ingestor/internal/supervisor"
	"github.com/evp-stream/ingestor/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server: fatal startup or runtime error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dedupDB, err := badger.Open(badger.DefaultOptions(cfg.Dedup.DBPath).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("open dedup db: %w", err)
	}
	defer dedupDB.Close()
	dedupIndex := dedup.NewBadgerIndex(dedupDB, "dedup:")

	credDB, err := badger.Open(badger.DefaultOptions(cfg.Credential.DBPath).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("open credential db: %w", err)
	}
	defer credDB.Close()
	credentials := auth.NewBadgerCredentialStore(credDB, "cred:")

	natsStream, err := stream.New(ctx, stream.Config{
		URL:           cfg.Stream.BackendURL,
		StreamName:    cfg.Stream.StreamName,
		Subject:       cfg.Stream.Subject,
		AckWait:       cfg.Stream.AckWait,
		MaxDeliver:    cfg.Stream.MaxDeliver,
		MaxAckPending: cfg.Stream.MaxAckPending,
		MaxLenApprox:  cfg.Stream.MaxLenApprox,
	})
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}
	defer natsStream.Close()

	if err := natsStream.EnsureGroup(ctx, cfg.Stream.ConsumerGroup); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	ingestService := ingest.NewService(dedupIndex, natsStream, cfg.Stream.ConsumerGroup, "http")

	router := api.NewRouter(api.RouterConfig{
		IngestHandler:  api.NewIngestHandler(ingestService),
		Credentials:    credentials,
		RateLimitRPS:   cfg.RateLimit.RequestsPerS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("build supervisor tree: %w", err)
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", httpServer.Addr).Msg("server: starting ingest API")
	if err := tree.Serve(ctx); err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	logging.Info().Msg("server: shutdown complete")
	return nil
}
