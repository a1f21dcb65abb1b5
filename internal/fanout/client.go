// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package fanout

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/logging"
)

const maxInboundSize = 4 * 1024 // clients only send pings, anything bigger is noise

// ChannelKind distinguishes branch-device sockets from analyst-user sockets.
type ChannelKind string

const (
	ChannelBranch ChannelKind = "branch"
	ChannelUser   ChannelKind = "user"
)

// clientIDCounter orders clients for deterministic broadcast and
// displacement behavior.
var clientIDCounter atomic.Uint64

// Client is one websocket connection bound to a single fanout subject.
type Client struct {
	id      uint64
	hub     *Hub
	subject string
	kind    ChannelKind
	conn    *websocket.Conn
	send    chan []byte

	writeWait time.Duration
	pongWait  time.Duration
}

// NewClient builds a client for a subject. Register it with the hub before
// calling Start.
func NewClient(hub *Hub, conn *websocket.Conn, subject string, kind ChannelKind, cfg *config.FanoutConfig) *Client {
	writeWait := 10 * time.Second
	pongWait := 60 * time.Second
	buffer := 256
	if cfg != nil {
		if cfg.WriteTimeout > 0 {
			writeWait = cfg.WriteTimeout
		}
		if cfg.PongTimeout > 0 {
			pongWait = cfg.PongTimeout
		}
		if cfg.SendBuffer > 0 {
			buffer = cfg.SendBuffer
		}
	}
	return &Client{
		id:        clientIDCounter.Add(1),
		hub:       hub,
		subject:   subject,
		kind:      kind,
		conn:      conn,
		send:      make(chan []byte, buffer),
		writeWait: writeWait,
		pongWait:  pongWait,
	}
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump drains the connection so pong frames are processed. Inbound data
// frames are ignored; the fanout channel is one-way.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		logging.Err(err).Msg("failed to set fanout read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Err(err).Str("subject", c.subject).Msg("unexpected fanout close")
			}
			return
		}
	}
}

// writePump forwards hub payloads and keeps the connection alive with pings.
func (c *Client) writePump() {
	pingPeriod := (c.pongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				logging.Err(err).Msg("failed to set fanout write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Err(err).Str("subject", c.subject).Msg("failed to write fanout message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
