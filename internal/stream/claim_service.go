// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package stream

import (
	"context"
	"time"

	"github.com/evp-stream/ingestor/internal/logging"
	"github.com/evp-stream/ingestor/internal/metrics"
)

// ClaimIdleService periodically reclaims PEL entries idle past minIdle,
// reassigning them to newOwner, as a supervised background task
// independent of any single worker's own claim-interval ticker (useful
// when a whole worker process, not just one goroutine, has died).
type ClaimIdleService struct {
	Stream   Stream
	Group    string
	NewOwner string
	Interval time.Duration
	MinIdle  time.Duration
	Count    int
}

// NewClaimIdleService constructs a ClaimIdleService with the pipeline's
// default claim interval and stale-age thresholds.
func NewClaimIdleService(st Stream, group, newOwner string) *ClaimIdleService {
	return &ClaimIdleService{
		Stream:   st,
		Group:    group,
		NewOwner: newOwner,
		Interval: 30 * time.Second,
		MinIdle:  60 * time.Second,
		Count:    100,
	}
}

// Serve implements suture.Service.
func (s *ClaimIdleService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			claimed, err := s.Stream.ClaimIdle(ctx, s.Group, s.NewOwner, s.MinIdle, s.Count)
			if err != nil {
				logging.Warn().Str("group", s.Group).Err(err).Msg("claim-idle service: ClaimIdle failed")
				continue
			}
			if len(claimed) > 0 {
				logging.Info().Str("group", s.Group).Int("count", len(claimed)).Msg("claim-idle service: reassigned stale entries")
			}
			if info, err := s.Stream.Info(ctx, s.Group); err == nil {
				metrics.SetStreamPending(s.Group, info.PendingCount)
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *ClaimIdleService) String() string {
	return "claim-idle-" + s.Group
}
