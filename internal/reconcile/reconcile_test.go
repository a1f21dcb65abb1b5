// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/directory"
	"github.com/vigilant-labs/watchgate/internal/mirror"
	"github.com/vigilant-labs/watchgate/internal/models"
	"github.com/vigilant-labs/watchgate/internal/resolver"
)

type replayFixture struct {
	db       *database.DB
	replayer *Replayer
}

func newReplayFixture(t *testing.T) *replayFixture {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "512MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	stub := directory.NewStub()
	stub.AddCompanyBranch("comp-1", "branch-1", 11, 22)
	stub.AddBranch(22, "branch-1", "Downtown", "America/Chicago")

	res := resolver.New(stub, &config.ResolverConfig{
		CacheTTL:        time.Hour,
		CleanupInterval: time.Hour,
		Coalesce:        true,
	})
	prop := mirror.NewPropagator(db, res, mirror.NewMemoryStore(), &config.MirrorConfig{Root: "watchlists"})
	return &replayFixture{
		db:       db,
		replayer: NewReplayer(db, res, prop, time.Hour),
	}
}

func (f *replayFixture) insertIncident(t *testing.T, uuid string) *models.Incident {
	t.Helper()
	inc := &models.Incident{
		IncidentUUID: uuid,
		CompanyID:    11,
		BranchID:     22,
		CameraID:     3,
		Name:         "aisle 4 incident",
		IncidentType: models.IncidentTypeCustomerTheft,
		Status:       models.StatusWatchlisted,
	}
	if err := f.db.InsertIncident(context.Background(), nil, inc); err != nil {
		t.Fatalf("failed to insert incident: %v", err)
	}
	return inc
}

func (f *replayFixture) recordAdd(t *testing.T, incidentID, entryID int64) {
	t.Helper()
	rec := &models.DeliveryRecord{
		Action:           models.DeliveryAdd,
		CompanyID:        11,
		BranchID:         22,
		IncidentID:       &incidentID,
		WatchlistEntryID: &entryID,
	}
	if err := f.db.InsertDeliveryRecord(context.Background(), nil, rec); err != nil {
		t.Fatalf("failed to insert add record: %v", err)
	}
}

func (f *replayFixture) recordIncidentRemove(t *testing.T, incidentID int64) {
	t.Helper()
	rec := &models.DeliveryRecord{
		Action:     models.DeliveryRemove,
		CompanyID:  11,
		BranchID:   22,
		IncidentID: &incidentID,
	}
	if err := f.db.InsertDeliveryRecord(context.Background(), nil, rec); err != nil {
		t.Fatalf("failed to insert remove record: %v", err)
	}
}

func TestReplayReturnsAddsAndRemoves(t *testing.T) {
	f := newReplayFixture(t)
	ctx := context.Background()

	kept := f.insertIncident(t, "inc-kept")
	keptEntry, _, err := f.db.GetOrCreateIncidentEntry(ctx, nil, kept.ID)
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}
	f.recordAdd(t, kept.ID, keptEntry.ID)

	gone := f.insertIncident(t, "inc-gone")
	f.recordIncidentRemove(t, gone.ID)

	result, err := f.replayer.Replay(ctx, "comp-1", "branch-1", time.Hour)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(result.Add) != 1 {
		t.Fatalf("expected 1 add, got %d", len(result.Add))
	}
	doc := result.Add[0]
	if doc.IncidentUUID != "inc-kept" || doc.BranchUUID != "branch-1" || doc.CompanyUUID != "comp-1" {
		t.Errorf("unexpected add document: %+v", doc)
	}
	if len(result.Remove) != 1 || result.Remove[0].IncidentUUID != "inc-gone" {
		t.Errorf("unexpected removes: %+v", result.Remove)
	}
}

func TestReplaySkipsVanishedEntries(t *testing.T) {
	f := newReplayFixture(t)
	ctx := context.Background()

	inc := f.insertIncident(t, "inc-1")
	entry, _, err := f.db.GetOrCreateIncidentEntry(ctx, nil, inc.ID)
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}
	f.recordAdd(t, inc.ID, entry.ID)
	if err := f.db.DeleteEntry(ctx, nil, entry.ID); err != nil {
		t.Fatalf("failed to delete entry: %v", err)
	}
	f.recordIncidentRemove(t, inc.ID)

	result, err := f.replayer.Replay(ctx, "comp-1", "branch-1", time.Hour)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(result.Add) != 0 {
		t.Errorf("add row for vanished entry replayed: %+v", result.Add)
	}
	if len(result.Remove) != 1 || result.Remove[0].IncidentUUID != "inc-1" {
		t.Errorf("unexpected removes: %+v", result.Remove)
	}
}

func TestReplayCustomerRemove(t *testing.T) {
	f := newReplayFixture(t)
	ctx := context.Background()

	cust := &models.Customer{
		CustomerUUID: "cust-1",
		CompanyID:    11,
		BranchID:     22,
		CameraID:     3,
	}
	if err := f.db.UpsertCustomer(ctx, nil, cust); err != nil {
		t.Fatalf("failed to upsert customer: %v", err)
	}
	rec := &models.DeliveryRecord{
		Action:     models.DeliveryRemove,
		CompanyID:  11,
		BranchID:   22,
		CustomerID: &cust.ID,
	}
	if err := f.db.InsertDeliveryRecord(ctx, nil, rec); err != nil {
		t.Fatalf("failed to insert remove record: %v", err)
	}

	result, err := f.replayer.Replay(ctx, "comp-1", "branch-1", time.Hour)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(result.Remove) != 1 || result.Remove[0].CustomerUUID != "cust-1" {
		t.Errorf("unexpected removes: %+v", result.Remove)
	}
}

func TestReplayWindowClampedToLookback(t *testing.T) {
	f := newReplayFixture(t)
	ctx := context.Background()

	inc := f.insertIncident(t, "inc-1")
	entry, _, err := f.db.GetOrCreateIncidentEntry(ctx, nil, inc.ID)
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}
	f.recordAdd(t, inc.ID, entry.ID)

	// Asking for a week still only scans the configured hour; the fresh row
	// is inside both, so it comes back either way.
	result, err := f.replayer.Replay(ctx, "comp-1", "branch-1", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(result.Add) != 1 {
		t.Errorf("expected 1 add, got %d", len(result.Add))
	}

	// Zero window falls back to the lookback too.
	result, err = f.replayer.Replay(ctx, "comp-1", "branch-1", 0)
	if err != nil {
		t.Fatalf("Replay with zero window failed: %v", err)
	}
	if len(result.Add) != 1 {
		t.Errorf("expected 1 add with default window, got %d", len(result.Add))
	}
}

func TestReplayUnknownBranch(t *testing.T) {
	f := newReplayFixture(t)

	if _, err := f.replayer.Replay(context.Background(), "comp-x", "branch-x", time.Hour); !apperr.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestReplayEmptyLogIsEmptyResult(t *testing.T) {
	f := newReplayFixture(t)

	result, err := f.replayer.Replay(context.Background(), "comp-1", "branch-1", time.Hour)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if result.Add == nil || result.Remove == nil {
		t.Error("result slices must be non-nil for JSON encoding")
	}
	if len(result.Add) != 0 || len(result.Remove) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}
