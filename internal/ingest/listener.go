// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package ingest consumes the detection pipeline from NATS JetStream through
// a watermill router. Processing is at-most-once: handlers ack every message
// and record failures in the error log instead of requesting redelivery.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/logging"
)

// Listener owns the router and subscription lifecycle. Start and Stop are
// idempotent so the control API can toggle ingestion at runtime; the
// supervisor drives Serve.
type Listener struct {
	cfg      *config.NATSConfig
	handlers *Handlers

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewListener builds a Listener; nothing connects until Start.
func NewListener(cfg *config.NATSConfig, handlers *Handlers) *Listener {
	return &Listener{cfg: cfg, handlers: handlers}
}

// Running reports whether the listener is consuming.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start connects the subscriber and runs the router in the background.
// Calling Start while running is a no-op.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		logging.Ctx(ctx).Debug().Msg("ingest listener already running")
		return nil
	}

	logger := newWatermillLogger()
	sub, err := newSubscriber(l.cfg, logger)
	if err != nil {
		return err
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: l.cfg.RouterCloseTimeout}, logger)
	if err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to create ingest router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)

	if l.cfg.RouterPoisonQueueEnabled && l.cfg.RouterPoisonQueueTopic != "" {
		pub, err := newPublisher(l.cfg, logger)
		if err != nil {
			_ = sub.Close()
			return err
		}
		poison, err := middleware.PoisonQueue(pub, l.cfg.RouterPoisonQueueTopic)
		if err != nil {
			_ = sub.Close()
			return fmt.Errorf("failed to create poison queue middleware: %w", err)
		}
		router.AddMiddleware(poison)
	}

	router.AddConsumerHandler("incident-detections", SubjectDetected, sub, l.handlers.HandleDetected)
	router.AddConsumerHandler("incident-updates", SubjectUpdated, sub, l.handlers.HandleUpdated)
	router.AddConsumerHandler("customer-updates", SubjectCustomers, sub, l.handlers.HandleCustomer)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := router.Run(runCtx); err != nil && runCtx.Err() == nil {
			logging.Err(err).Msg("ingest router stopped unexpectedly")
		}
		_ = sub.Close()

		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	l.running = true
	l.cancel = cancel
	l.done = done
	logging.Ctx(ctx).Info().Str("url", l.cfg.URL).Msg("ingest listener started")
	return nil
}

// Stop cancels the router and waits for in-flight handlers to drain.
// Calling Stop while stopped is a no-op.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	logging.Info().Msg("ingest listener stopped")
}

// Serve runs the listener under supervision: start, block until the context
// ends, then stop.
func (l *Listener) Serve(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	l.Stop()
	return ctx.Err()
}
