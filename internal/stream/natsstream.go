// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/evp-stream/ingestor/internal/cache"
	"github.com/evp-stream/ingestor/internal/logging"
)

// Config holds the NATS JetStream connection and stream provisioning
// parameters.
type Config struct {
	URL           string
	StreamName    string
	Subject       string
	MaxAckPending int
	MaxDeliver    int
	AckWait       time.Duration
	MaxLenApprox  int64
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the pipeline's default stream parameters.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "events_stream",
		Subject:       "events.ingest",
		MaxAckPending: 10000,
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxLenApprox:  10_000_000,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// pelEntry is what NATSStream stores in its per-group MinHeap, keyed by
// entry id, ordered by last-delivered time so ClaimIdle can pop everything
// older than a threshold in one call.
type pelEntry struct {
	entry Entry
	msg   jetstream.Msg
}

// groupState holds one consumer group's durable consumer handle plus its
// in-process PEL, layered over JetStream's own AckWait/MaxDeliver
// redelivery as defense in depth: the PEL gives ClaimIdle explicit,
// backend-agnostic semantics instead of waiting out JetStream's redelivery
// timer.
type groupState struct {
	consumer jetstream.Consumer
	pel      *cache.MinHeap[pelEntry]
}

// NATSStream is the production Stream implementation, backed by a NATS
// JetStream stream with one durable pull consumer per consumer group.
type NATSStream struct {
	cfg    Config
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream

	mu     sync.Mutex
	groups map[string]*groupState
}

// New connects to NATS and ensures the pipeline's stream exists.
func New(ctx context.Context, cfg Config) (*NATSStream, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "events_stream"
	}
	if cfg.Subject == "" {
		cfg.Subject = "events.ingest"
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 10000
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("stream connection disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info().Str("url", c.ConnectedUrl()).Msg("stream connection reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("stream: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("stream: jetstream context: %w", err)
	}

	st, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{cfg.Subject},
		MaxMsgs:    cfg.MaxLenApprox,
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		Discard:    jetstream.DiscardOld,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("stream: ensure stream %s: %w", cfg.StreamName, err)
	}

	return &NATSStream{
		cfg:    cfg,
		nc:     nc,
		js:     js,
		stream: st,
		groups: make(map[string]*groupState),
	}, nil
}

func (s *NATSStream) Append(ctx context.Context, fields map[string]string) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("stream: marshal fields: %w", err)
	}

	ack, err := s.js.Publish(ctx, s.cfg.Subject, data)
	if err != nil {
		return "", fmt.Errorf("stream: publish: %w", err)
	}
	return entryIDFromSeq(ack.Stream, ack.Sequence), nil
}

func (s *NATSStream) EnsureGroup(ctx context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[group]; ok {
		return nil
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.StreamName, jetstream.ConsumerConfig{
		Durable:       group,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.cfg.AckWait,
		MaxDeliver:    s.cfg.MaxDeliver,
		MaxAckPending: s.cfg.MaxAckPending,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("stream: ensure consumer %s: %w", group, err)
	}

	s.groups[group] = &groupState{
		consumer: consumer,
		pel:      cache.NewMinHeap[pelEntry](0),
	}
	return nil
}

func (s *NATSStream) group(group string) (*groupState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("stream: group %s not initialized, call EnsureGroup first", group)
	}
	return g, nil
}

func (s *NATSStream) ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	g, err := s.group(group)
	if err != nil {
		return nil, err
	}

	msgs, err := g.consumer.Fetch(count, jetstream.FetchMaxWait(block))
	if err != nil {
		return nil, fmt.Errorf("stream: fetch: %w", err)
	}

	var entries []Entry
	now := time.Now()
	for msg := range msgs.Messages() {
		md, err := msg.Metadata()
		if err != nil {
			logging.Warn().Err(err).Msg("stream: could not read message metadata, skipping")
			continue
		}

		var fields map[string]string
		if err := json.Unmarshal(msg.Data(), &fields); err != nil {
			logging.Warn().Err(err).Msg("stream: could not decode message fields, skipping")
			continue
		}

		entryID := entryIDFromSeq(s.cfg.StreamName, md.Sequence.Stream)
		e := Entry{
			EntryID:          entryID,
			Fields:           fields,
			DeliveryCount:    int(md.NumDelivered),
			FirstDeliveredAt: now,
			LastDeliveredAt:  now,
			OwnerConsumer:    consumer,
		}
		if existing := g.pel.Get(entryID); existing != nil {
			e.FirstDeliveredAt = existing.Value.entry.FirstDeliveredAt
			e.DeliveryCount = existing.Value.entry.DeliveryCount + 1
		}

		g.pel.Push(entryID, pelEntry{entry: e, msg: msg}, now)
		entries = append(entries, e)
	}
	if err := msgs.Error(); err != nil && len(entries) == 0 {
		return nil, fmt.Errorf("stream: fetch iteration: %w", err)
	}
	return entries, nil
}

func (s *NATSStream) Acknowledge(ctx context.Context, group string, entryIDs []string) error {
	g, err := s.group(group)
	if err != nil {
		return err
	}

	for _, id := range entryIDs {
		h := g.pel.Get(id)
		if h == nil {
			continue
		}
		if err := h.Value.msg.Ack(); err != nil {
			logging.Warn().Str("entry_id", id).Err(err).Msg("stream: ack failed, entry will redeliver")
			continue
		}
		g.pel.Remove(id)
	}
	return nil
}

func (s *NATSStream) ClaimIdle(ctx context.Context, group, newOwner string, minIdle time.Duration, count int) ([]Entry, error) {
	g, err := s.group(group)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-minIdle)
	stale := g.pel.PopBefore(cutoff)

	claimed := make([]Entry, 0, len(stale))
	now := time.Now()
	for i, h := range stale {
		if count > 0 && i >= count {
			g.pel.Push(h.Key, h.Value, h.Timestamp)
			continue
		}
		e := h.Value.entry
		e.OwnerConsumer = newOwner
		e.DeliveryCount++
		e.LastDeliveredAt = now

		msg := h.Value.msg
		if err := msg.Nak(); err != nil {
			logging.Warn().Str("entry_id", h.Key).Err(err).Msg("stream: nak on claim-idle failed")
		}

		g.pel.Push(h.Key, pelEntry{entry: e, msg: msg}, now)
		claimed = append(claimed, e)
	}
	return claimed, nil
}

func (s *NATSStream) Info(ctx context.Context, group string) (Info, error) {
	info, err := s.stream.Info(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("stream: stream info: %w", err)
	}

	g, err := s.group(group)
	if err != nil {
		return Info{}, err
	}

	owners := make(map[string]struct{})
	for _, h := range g.pel.All() {
		owners[h.Value.entry.OwnerConsumer] = struct{}{}
	}
	ownerList := make([]string, 0, len(owners))
	for o := range owners {
		ownerList = append(ownerList, o)
	}

	return Info{
		StreamLength:   int64(info.State.Msgs),
		PendingCount:   g.pel.Len(),
		OwnerConsumers: ownerList,
	}, nil
}

func (s *NATSStream) Close() error {
	s.nc.Close()
	return nil
}

func entryIDFromSeq(streamName string, seq uint64) string {
	return fmt.Sprintf("%s-%d", streamName, seq)
}

var _ Stream = (*NATSStream)(nil)
