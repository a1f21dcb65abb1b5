// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDBQuery(t *testing.T) {
	RecordDBQuery("insert", "incidents", time.Now(), nil)

	if got := testutil.CollectAndCount(DBQueryDuration); got < 1 {
		t.Errorf("expected histogram series to be recorded, got %d", got)
	}
}

func TestRecordDBQueryError(t *testing.T) {
	errCount := testutil.ToFloat64(DBQueryErrors.WithLabelValues("select", "customers"))

	RecordDBQuery("select", "customers", time.Now(), errors.New("boom"))

	got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("select", "customers"))
	if got != errCount+1 {
		t.Errorf("expected error counter to increment, got %f want %f", got, errCount+1)
	}
}

func TestRecordEventDrop(t *testing.T) {
	before := testutil.ToFloat64(EventsDropped.WithLabelValues("incidents.detected", "resolution"))

	RecordEventDrop("incidents.detected", "resolution")

	after := testutil.ToFloat64(EventsDropped.WithLabelValues("incidents.detected", "resolution"))
	if after != before+1 {
		t.Errorf("expected drop counter to increment, before=%f after=%f", before, after)
	}
}

func TestRecordDirectoryCallOutcomes(t *testing.T) {
	okBefore := testutil.ToFloat64(ResolverDirectoryCalls.WithLabelValues("camera", "ok"))
	errBefore := testutil.ToFloat64(ResolverDirectoryCalls.WithLabelValues("camera", "error"))

	RecordDirectoryCall("camera", nil)
	RecordDirectoryCall("camera", errors.New("timeout"))

	if got := testutil.ToFloat64(ResolverDirectoryCalls.WithLabelValues("camera", "ok")); got != okBefore+1 {
		t.Errorf("ok counter = %f, want %f", got, okBefore+1)
	}
	if got := testutil.ToFloat64(ResolverDirectoryCalls.WithLabelValues("camera", "error")); got != errBefore+1 {
		t.Errorf("error counter = %f, want %f", got, errBefore+1)
	}
}

func TestRecordAlert(t *testing.T) {
	before := testutil.ToFloat64(AlertsSent.WithLabelValues("watchlist", "error"))

	RecordAlert("watchlist", errors.New("unreachable"))

	after := testutil.ToFloat64(AlertsSent.WithLabelValues("watchlist", "error"))
	if after != before+1 {
		t.Errorf("expected alert error counter to increment, before=%f after=%f", before, after)
	}
}

func TestFanoutGauge(t *testing.T) {
	FanoutConnections.WithLabelValues("branch").Set(0)
	FanoutConnections.WithLabelValues("branch").Inc()
	FanoutConnections.WithLabelValues("branch").Inc()
	FanoutConnections.WithLabelValues("branch").Dec()

	if got := testutil.ToFloat64(FanoutConnections.WithLabelValues("branch")); got != 1 {
		t.Errorf("expected gauge 1, got %f", got)
	}
}
