// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evp-stream/ingestor/internal/logging"
	"github.com/evp-stream/ingestor/internal/metrics"
)

var statsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleStatsStream upgrades to a websocket connection and pushes the
// current ingest rate once a second until the client disconnects. Intended
// for operator dashboards that want a live rate rather than polling
// GET /v1/events/stats.
func HandleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := statsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("stats stream: upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			payload := map[string]float64{"ingest_rate_per_second": metrics.RateIngest()}
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}
