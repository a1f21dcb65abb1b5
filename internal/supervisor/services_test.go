// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/vigilant-labs/watchgate/internal/logging"
)

// fakeServer simulates *http.Server lifecycle.
type fakeServer struct {
	startErr error
	closed   chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{closed: make(chan struct{})}
}

func (s *fakeServer) ListenAndServe() error {
	if s.startErr != nil {
		return s.startErr
	}
	<-s.closed
	return http.ErrServerClosed
}

func (s *fakeServer) Shutdown(context.Context) error {
	close(s.closed)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	srv := newFakeServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestHTTPServiceStartFailure(t *testing.T) {
	srv := newFakeServer()
	srv.startErr = errors.New("address in use")
	svc := NewHTTPService(srv, time.Second)

	if err := svc.Serve(context.Background()); err == nil {
		t.Error("expected start failure to surface")
	}
}

func TestServiceFunc(t *testing.T) {
	ran := make(chan struct{})
	svc := ServiceFunc{
		Name: "test-worker",
		Run: func(ctx context.Context) error {
			close(ran)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	if svc.String() != "test-worker" {
		t.Errorf("got name %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	<-ran
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestTreeRunsSupervisedServices(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	started := make(chan struct{})
	tree.AddMessagingService(ServiceFunc{
		Name: "probe",
		Run: func(ctx context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("supervised service never started")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected terminal error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}
