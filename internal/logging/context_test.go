// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("expected empty request ID for fresh context, got %q", got)
	}

	ctx = ContextWithRequestID(ctx, "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("expected 'req-123', got %q", got)
	}
}

func TestContextWithNewRequestID(t *testing.T) {
	t.Parallel()

	ctx := ContextWithNewRequestID(context.Background())
	id := RequestIDFromContext(ctx)
	if id == "" {
		t.Fatal("expected generated request ID")
	}
	if len(id) != 36 {
		t.Errorf("expected UUID-length request ID, got %q", id)
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer

	ctx := ContextWithLogger(context.Background(), zerolog.New(&buf))
	logger := LoggerFromContext(ctx)
	logger.Info().Msg("stored logger")

	if !strings.Contains(buf.String(), "stored logger") {
		t.Errorf("expected stored logger to be retrieved: %s", buf.String())
	}
}

func TestCtxAddsRequestID(t *testing.T) {
	var buf bytes.Buffer

	ctx := ContextWithLogger(context.Background(), zerolog.New(&buf))
	ctx = ContextWithRequestID(ctx, "req-abc")

	Ctx(ctx).Info().Msg("with request id")

	output := buf.String()
	if !strings.Contains(output, "req-abc") {
		t.Errorf("expected request_id field in output: %s", output)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer

	SetLogger(zerolog.New(&buf))

	logger := WithComponent("resolver")
	logger.Info().Msg("component log")

	output := buf.String()
	if !strings.Contains(output, `"component":"resolver"`) {
		t.Errorf("expected component field in output: %s", output)
	}
}
