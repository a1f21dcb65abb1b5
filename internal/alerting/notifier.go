// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package alerting delivers analyst-facing notifications: push alerts when
// an incident lands on (or threatens) the watchlist and fire-and-forget
// handoffs to the analyst review queue. Delivery is strictly best effort;
// a failed or rate-limited alert is logged and counted, never retried, and
// never blocks the operation that raised it.
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
	"github.com/vigilant-labs/watchgate/internal/models"
)

// AlertKind selects the notification template.
type AlertKind string

const (
	// AlertWatchlist announces a subject that entered the watchlist.
	AlertWatchlist AlertKind = "watchlist"
	// AlertSensitive announces a detection awaiting analyst review. The
	// payload deliberately omits descriptors and imagery.
	AlertSensitive AlertKind = "sensitive"
	// AlertEscape announces an incident marked as an escape theft.
	AlertEscape AlertKind = "escape"
	// AlertStopped announces an incident marked as stopped in store.
	AlertStopped AlertKind = "stopped"
)

// payload is the JSON body posted to the notifications webhook.
type payload struct {
	Kind         AlertKind `json:"kind"`
	IncidentUUID string    `json:"incident_uuid"`
	BranchID     int64     `json:"branch_id"`
	Name         string    `json:"name,omitempty"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
}

// Notifier posts incident alerts to the configured webhook, rate-limited
// so a detection storm cannot flood the notification channel.
//
// Thread Safety: safe for concurrent use.
type Notifier struct {
	url     string
	enabled bool
	client  *http.Client
	limiter *rate.Limiter
}

// NewNotifier builds a notifier from configuration. A disabled notifier
// accepts and silently discards every alert.
func NewNotifier(cfg *config.AlertingConfig) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Notifier{
		url:     cfg.WebhookURL,
		enabled: cfg.Enabled && cfg.WebhookURL != "",
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
	}
}

// Notify sends one alert. Rate-limited or failed sends are dropped with a
// log line; the returned state is observable only through metrics.
func (n *Notifier) Notify(ctx context.Context, kind AlertKind, inc *models.Incident) {
	if !n.enabled {
		return
	}
	if !n.limiter.Allow() {
		logging.Ctx(ctx).Warn().
			Str("kind", string(kind)).
			Str("incident_uuid", inc.IncidentUUID).
			Msg("Alert dropped by rate limit")
		metrics.RecordAlert(string(kind), fmt.Errorf("rate limited"))
		return
	}

	p := payload{
		Kind:         kind,
		IncidentUUID: inc.IncidentUUID,
		BranchID:     inc.BranchID,
		Timestamp:    time.Now().UTC(),
		Source:       "watchgate",
	}
	// Sensitive alerts go to channels that may be visible outside the
	// review team, so they carry identifiers only.
	if kind != AlertSensitive {
		p.Name = inc.Name
		p.PhotoURL = inc.PhotoURL
	}

	err := n.post(ctx, p)
	metrics.RecordAlert(string(kind), err)
	if err != nil {
		logging.CtxErr(ctx, err).
			Str("kind", string(kind)).
			Str("incident_uuid", inc.IncidentUUID).
			Msg("Alert delivery failed")
		return
	}
	logging.Ctx(ctx).Debug().
		Str("kind", string(kind)).
		Str("incident_uuid", inc.IncidentUUID).
		Msg("Alert delivered")
}

func (n *Notifier) post(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}
