// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package alerting

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
)

// AnalystQueue hands incidents off to the analyst review service.
//
// Enqueue never blocks the caller: ids go into a bounded channel and a
// background worker posts them, rate-limited. When the channel is full the
// id is dropped with a log line — review handoff is advisory, the incident
// row itself is already persisted.
type AnalystQueue struct {
	url     string
	enabled bool
	client  *http.Client
	limiter *rate.Limiter
	queue   chan int64
}

// NewAnalystQueue builds the queue from configuration. Run must be started
// for enqueued ids to be delivered.
func NewAnalystQueue(cfg *config.AlertingConfig) *AnalystQueue {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &AnalystQueue{
		url:     cfg.WebhookURL,
		enabled: cfg.Enabled && cfg.WebhookURL != "",
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		queue:   make(chan int64, size),
	}
}

// Enqueue queues an incident for analyst review. Non-blocking.
func (q *AnalystQueue) Enqueue(ctx context.Context, incidentID int64) {
	if !q.enabled {
		return
	}
	select {
	case q.queue <- incidentID:
	default:
		logging.Ctx(ctx).Warn().
			Int64("incident_id", incidentID).
			Msg("Analyst queue full, dropping handoff")
		metrics.RecordAlert("queue", fmt.Errorf("queue full"))
	}
}

// Run drains the queue until ctx is canceled. Intended to run under the
// service supervisor.
func (q *AnalystQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case incidentID := <-q.queue:
			if err := q.limiter.Wait(ctx); err != nil {
				return err
			}
			err := q.post(ctx, incidentID)
			metrics.RecordAlert("queue", err)
			if err != nil {
				logging.Err(err).
					Int64("incident_id", incidentID).
					Msg("Analyst handoff failed")
			}
		}
	}
}

type handoffPayload struct {
	IncidentID int64  `json:"incident_id"`
	Source     string `json:"source"`
}

func (q *AnalystQueue) post(ctx context.Context, incidentID int64) error {
	body, err := json.Marshal(handoffPayload{IncidentID: incidentID, Source: "watchgate"})
	if err != nil {
		return fmt.Errorf("failed to encode handoff: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url+"/analyst/queue", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create handoff request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("handoff request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("analyst queue returned status %d", resp.StatusCode)
	}
	return nil
}
