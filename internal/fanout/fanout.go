// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package fanout pushes watchlist changes to live consumers. A Publisher
// writes JSON messages to per-branch and per-user NATS subjects; the Hub
// bridges those subjects to websocket clients, subscribing to a subject
// while at least one local socket wants it.
package fanout

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
	"github.com/vigilant-labs/watchgate/internal/mirror"
	"github.com/vigilant-labs/watchgate/internal/models"
	"github.com/vigilant-labs/watchgate/internal/resolver"
)

// Message actions
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// Message is the wire format on every fanout subject.
type Message struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}

// RemoveData identifies the subject of a remove message.
type RemoveData struct {
	IncidentUUID string `json:"incident_uuid,omitempty"`
	CustomerUUID string `json:"customer_uuid,omitempty"`
}

// SubjectBranch returns the NATS subject for a branch channel.
func SubjectBranch(branchUUID string) string {
	return "watchlist.branch." + branchUUID
}

// SubjectUser returns the NATS subject for a user channel.
func SubjectUser(userID int64) string {
	return fmt.Sprintf("watchlist.user.%d", userID)
}

// Conn is the publish side of the message bus.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher turns watchlist changes into fanout messages. All publishing is
// best-effort: failures are logged and counted, never returned, so a broker
// outage cannot fail the state change that triggered it.
type Publisher struct {
	conn Conn
	db   *database.DB
	res  *resolver.Resolver
	prop *mirror.Propagator
}

// NewPublisher wires a Publisher over an established bus connection.
func NewPublisher(conn Conn, db *database.DB, res *resolver.Resolver, prop *mirror.Propagator) *Publisher {
	return &Publisher{conn: conn, db: db, res: res, prop: prop}
}

// PublishEntryAdd rebuilds the mirror document for a fresh watchlist entry
// and publishes it to the branch channel, plus the acting user's channel
// when the change was user-initiated.
func (p *Publisher) PublishEntryAdd(ctx context.Context, entryID int64, userID *int64) {
	entry, err := p.db.GetEntryByID(ctx, nil, entryID)
	if err != nil {
		logging.CtxErr(ctx, err).Int64("entry_id", entryID).Msg("fanout add skipped, entry load failed")
		return
	}
	doc, _, _, err := p.prop.Document(ctx, entry)
	if err != nil {
		logging.CtxErr(ctx, err).Int64("entry_id", entryID).Msg("fanout add skipped, document build failed")
		return
	}

	payload := p.marshal(ctx, ActionAdd, doc)
	if payload == nil {
		return
	}
	p.publish(ctx, SubjectBranch(doc.BranchUUID), "branch", payload)
	if userID != nil {
		p.publish(ctx, SubjectUser(*userID), "user", payload)
	}
}

// PublishIncidentRemove announces that an incident left the watchlist.
func (p *Publisher) PublishIncidentRemove(ctx context.Context, inc *models.Incident, userID *int64) {
	p.publishRemove(ctx, inc.BranchID, RemoveData{IncidentUUID: inc.IncidentUUID}, userID)
}

// PublishCustomerRemove announces that a customer left the watchlist.
func (p *Publisher) PublishCustomerRemove(ctx context.Context, cust *models.Customer, userID *int64) {
	p.publishRemove(ctx, cust.BranchID, RemoveData{CustomerUUID: cust.CustomerUUID}, userID)
}

func (p *Publisher) publishRemove(ctx context.Context, branchID int64, data RemoveData, userID *int64) {
	branchUUID, err := p.res.BranchUUID(ctx, branchID)
	if err != nil {
		logging.CtxErr(ctx, err).Int64("branch_id", branchID).Msg("fanout remove skipped, branch resolution failed")
		return
	}

	payload := p.marshal(ctx, ActionRemove, data)
	if payload == nil {
		return
	}
	p.publish(ctx, SubjectBranch(branchUUID), "branch", payload)
	if userID != nil {
		p.publish(ctx, SubjectUser(*userID), "user", payload)
	}
}

func (p *Publisher) marshal(ctx context.Context, action string, data interface{}) []byte {
	payload, err := json.Marshal(Message{Action: action, Data: data})
	if err != nil {
		logging.CtxErr(ctx, err).Str("action", action).Msg("failed to marshal fanout message")
		return nil
	}
	return payload
}

func (p *Publisher) publish(ctx context.Context, subject, channel string, payload []byte) {
	if err := p.conn.Publish(subject, payload); err != nil {
		logging.CtxErr(ctx, err).Str("subject", subject).Msg("failed to publish fanout message")
		return
	}
	metrics.FanoutMessagesPublished.WithLabelValues(channel).Inc()
	logging.Ctx(ctx).Debug().Str("subject", subject).Msg("published fanout message")
}
