// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package main

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/fanout"
	"github.com/vigilant-labs/watchgate/internal/ingest"
	"github.com/vigilant-labs/watchgate/internal/logging"
)

// natsComponents bundles everything the NATS layer owns: the optional
// embedded server, the fanout connection, and the bus handed to the hub
// and publisher. The ingest listener opens its own connection so consumer
// backpressure never stalls fanout publishes.
type natsComponents struct {
	embedded *ingest.EmbeddedServer
	conn     *natsgo.Conn

	// Bus is nil when NATS is disabled; callers treat that as
	// fanout-off.
	Bus *fanout.NATSBus
}

// initNATS starts the embedded server when configured, connects, and
// builds the fanout bus. With NATS disabled it returns an empty component
// set whose Close is a no-op.
func initNATS(cfg *config.Config) (*natsComponents, error) {
	if !cfg.NATS.Enabled {
		return &natsComponents{}, nil
	}

	c := &natsComponents{}

	if cfg.NATS.EmbeddedServer {
		srv, err := ingest.NewEmbeddedServer(&cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("embedded NATS server: %w", err)
		}
		c.embedded = srv
		cfg.NATS.URL = srv.ClientURL()
		logging.Info().Str("url", cfg.NATS.URL).Msg("Embedded NATS server running")
	}

	conn, err := natsgo.Connect(cfg.NATS.URL,
		natsgo.Name("watchgate-fanout"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("NATS connect: %w", err)
	}
	c.conn = conn
	c.Bus = fanout.NewNATSBus(conn)

	return c, nil
}

// Close tears the layer down in dependency order: connection first, then
// the embedded server.
func (c *natsComponents) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.embedded != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.embedded.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Embedded NATS shutdown error")
		}
	}
}
