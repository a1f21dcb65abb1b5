// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package fanout

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/vigilant-labs/watchgate/internal/logging"
)

// NATSBus adapts a core NATS connection to the Conn and Subscriber ports.
// Fanout uses plain subjects, not JetStream: live consumers only care about
// now, and reconciliation covers anything they missed.
type NATSBus struct {
	nc *nats.Conn
}

// NewNATSBus wraps an established connection.
func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{nc: nc}
}

// Publish sends a payload to a subject.
func (b *NATSBus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

// Subscribe opens a subject subscription and forwards payloads until the
// cancel function runs. Cancel unsubscribes and closes the returned channel.
func (b *NATSBus) Subscribe(subject string) (<-chan []byte, func(), error) {
	inbox := make(chan *nats.Msg, 64)
	sub, err := b.nc.ChanSubscribe(subject, inbox)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan []byte, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-inbox:
				if !ok {
					return
				}
				out <- msg.Data
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				logging.Err(err).Str("subject", subject).Msg("failed to unsubscribe fanout subject")
			}
			close(done)
		})
	}
	return out, cancel, nil
}
