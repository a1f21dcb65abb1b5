// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package fanout

import (
	"context"
	"sort"
	"sync"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
)

// Branch connection policies.
const (
	PolicyLastWins = "last-wins"
	PolicyReject   = "reject"
)

// Subscriber is the subscribe side of the message bus. The returned cancel
// function tears down the subscription and closes the channel.
type Subscriber interface {
	Subscribe(subject string) (<-chan []byte, func(), error)
}

// Hub tracks websocket clients per subject and keeps exactly one bus
// subscription alive per subject with local listeners. Branch subjects are
// subject to the connection policy: a branch device holds its channel
// exclusively, users fan out without limit.
type Hub struct {
	sub    Subscriber
	policy string

	mu       sync.Mutex
	channels map[string]map[*Client]bool
	cancels  map[string]func()
	closed   bool
}

// NewHub creates a Hub. An unrecognized branch policy falls back to
// last-wins, matching the behavior branch hardware expects after a reboot
// mid-connection.
func NewHub(sub Subscriber, cfg *config.FanoutConfig) *Hub {
	policy := PolicyLastWins
	if cfg != nil && cfg.BranchPolicy == PolicyReject {
		policy = PolicyReject
	}
	return &Hub{
		sub:      sub,
		policy:   policy,
		channels: make(map[string]map[*Client]bool),
		cancels:  make(map[string]func()),
	}
}

// Register attaches a client to its subject, starting the bus subscription
// if this is the subject's first local listener. For branch clients the
// connection policy applies: reject refuses the newcomer, last-wins closes
// the holder.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperr.Unavailablef("fanout hub is shut down")
	}

	existing := h.channels[client.subject]
	if client.kind == ChannelBranch && len(existing) > 0 {
		if h.policy == PolicyReject {
			return apperr.Conflictf("branch channel %s already connected", client.subject)
		}
		for old := range existing {
			h.dropLocked(old)
			metrics.FanoutDisplacements.Inc()
			logging.Info().
				Str("subject", client.subject).
				Uint64("displaced", old.id).
				Msg("branch connection displaced by newer socket")
		}
	}

	if len(h.channels[client.subject]) == 0 {
		msgs, cancel, err := h.sub.Subscribe(client.subject)
		if err != nil {
			return apperr.Unavailablef("failed to subscribe to %s: %v", client.subject, err)
		}
		h.cancels[client.subject] = cancel
		go h.forward(client.subject, msgs)
	}

	if h.channels[client.subject] == nil {
		h.channels[client.subject] = make(map[*Client]bool)
	}
	h.channels[client.subject][client] = true
	metrics.FanoutConnections.WithLabelValues(string(client.kind)).Inc()
	logging.Info().
		Str("subject", client.subject).
		Int("subject_clients", len(h.channels[client.subject])).
		Msg("fanout client connected")
	return nil
}

// Unregister detaches a client, tearing down the bus subscription when the
// subject has no listeners left.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[client.subject][client]; !ok {
		return
	}
	h.dropLocked(client)
	logging.Info().Str("subject", client.subject).Msg("fanout client disconnected")
}

// dropLocked removes a client and unsubscribes an emptied subject.
// Callers hold h.mu.
func (h *Hub) dropLocked(client *Client) {
	delete(h.channels[client.subject], client)
	close(client.send)
	metrics.FanoutConnections.WithLabelValues(string(client.kind)).Dec()

	if len(h.channels[client.subject]) == 0 {
		delete(h.channels, client.subject)
		if cancel, ok := h.cancels[client.subject]; ok {
			cancel()
			delete(h.cancels, client.subject)
		}
	}
}

// forward copies bus messages to every local client on the subject. The
// payload is already a marshaled Message, delivered verbatim. Clients whose
// send buffer is full are disconnected rather than allowed to stall the
// subject.
func (h *Hub) forward(subject string, msgs <-chan []byte) {
	for payload := range msgs {
		h.mu.Lock()
		clients := make([]*Client, 0, len(h.channels[subject]))
		for client := range h.channels[subject] {
			clients = append(clients, client)
		}
		sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

		for _, client := range clients {
			select {
			case client.send <- payload:
				metrics.FanoutMessagesDelivered.Inc()
			default:
				h.dropLocked(client)
				logging.Warn().
					Str("subject", subject).
					Uint64("client", client.id).
					Msg("dropping slow fanout client")
			}
		}
		h.mu.Unlock()
	}
}

// ClientCount reports the number of clients on a subject.
func (h *Hub) ClientCount(subject string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[subject])
}

// Serve blocks until the context ends, then closes every client and
// subscription. Designed to run under supervision.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	var closed int
	for _, clients := range h.channels {
		for client := range clients {
			close(client.send)
			closed++
		}
	}
	h.channels = make(map[string]map[*Client]bool)
	for _, cancel := range h.cancels {
		cancel()
	}
	h.cancels = make(map[string]func())
	h.closed = true
	h.mu.Unlock()

	metrics.FanoutConnections.Reset()
	logging.Info().Int("clients_closed", closed).Msg("fanout hub stopped")
	return ctx.Err()
}
