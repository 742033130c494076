// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

// Command worker drains the event stream's consumer group into the event
// store: it runs one Worker per configured concurrency slot plus a single
// claim-idle sweeper, all under a supervisor tree so a panicking worker is
// restarted rather than taking the process down.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"github.com/evp-stream/ingestor/internal/config"
	"github.com/evp-stream/ingestor/internal/dlq"
	"github.com/evp-stream/ingestor/internal/eventstore"
	"github.com/evp-stream/ingestor/internal/logging"
	"github.com/evp-stream/ingestor/internal/retry"
	"github.com/evp-stream/ingestor/internal/stream"
	"github.com/evp-stream/ingestor/internal/supervisor"
	"github.com/evp-stream/ingestor/internal/worker"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("worker: fatal startup or runtime error")
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

	store, err := eventstore.New(eventstore.Config{Path: cfg.EventStore.Path})
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer store.Close()

	dlqDB, err := badger.Open(badger.DefaultOptions(cfg.DLQ.DBPath).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("open dead-letter db: %w", err)
	}
	defer dlqDB.Close()
	sink := dlq.NewBadgerSink(dlqDB, "dlq:")

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

	workerCfg := worker.Config{
		ReadCount:       cfg.Worker.ReadCount,
		BlockDuration:   cfg.Worker.ReadBlock,
		BatchSize:       cfg.Worker.BatchSize,
		BatchTimeout:    cfg.Worker.BatchTimeout,
		ClaimInterval:   cfg.Worker.ClaimInterval,
		StaleAge:        cfg.Worker.StaleAge,
		ClaimCount:      cfg.Worker.BatchSize,
		LoopErrorSleep:  worker.DefaultConfig().LoopErrorSleep,
		ShutdownTimeout: cfg.Worker.ShutdownGrace,
		Retry: retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			CapDelay:    cfg.Retry.CapDelay,
			Jitter:      cfg.Retry.Jitter,
		},
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Worker.ShutdownGrace,
	})
	if err != nil {
		return fmt.Errorf("build supervisor tree: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	count := cfg.Worker.Count
	if count <= 0 {
		count = 1
	}
	for i := 0; i < count; i++ {
		consumerID, err := stream.NewConsumerID(hostname, os.Getpid())
		if err != nil {
			return fmt.Errorf("generate consumer id: %w", err)
		}
		w := worker.New(natsStream, store, sink, cfg.Stream.ConsumerGroup, consumerID, workerCfg)
		tree.AddWorkerService(w)
		logging.Info().Str("consumer_id", consumerID).Msg("worker: registered consumer")
	}

	claimSvc := stream.NewClaimIdleService(natsStream, cfg.Stream.ConsumerGroup, hostname+"-claim-sweeper")
	claimSvc.Interval = cfg.Worker.ClaimInterval
	claimSvc.MinIdle = cfg.Worker.StaleAge
	tree.AddStreamService(claimSvc)

	logging.Info().Int("worker_count", count).Msg("worker: starting consumer group drain")
	if err := tree.Serve(ctx); err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	logging.Info().Msg("worker: shutdown complete")
	return nil
}
