// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package ingest

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/models"
)

type fakeRegistry struct {
	detections []models.DetectionEvent
	customers  []models.CustomerEvent
}

func (f *fakeRegistry) Register(_ context.Context, ev *models.DetectionEvent) (*models.Incident, error) {
	f.detections = append(f.detections, *ev)
	return &models.Incident{ID: 1, IncidentUUID: ev.IncidentUUID}, nil
}

func (f *fakeRegistry) RegisterCustomer(_ context.Context, ev *models.CustomerEvent) (*models.Customer, error) {
	f.customers = append(f.customers, *ev)
	return &models.Customer{ID: 1, CustomerUUID: ev.CustomerUUID}, nil
}

type fakeUpdater struct {
	updates []models.UpdateEvent
	reset   string
	err     error
}

func (f *fakeUpdater) HandleUpdate(_ context.Context, ev *models.UpdateEvent) (string, error) {
	f.updates = append(f.updates, *ev)
	return f.reset, f.err
}

type fakeResetter struct {
	resets []string
}

func (f *fakeResetter) ResetIncident(_ context.Context, inc *models.Incident) {
	f.resets = append(f.resets, inc.IncidentUUID)
}

type handlerFixture struct {
	db       *database.DB
	registry *fakeRegistry
	updater  *fakeUpdater
	resetter *fakeResetter
	handlers *Handlers
}

func newHandlerFixture(t *testing.T) *handlerFixture {
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

	f := &handlerFixture{
		db:       db,
		registry: &fakeRegistry{},
		updater:  &fakeUpdater{},
		resetter: &fakeResetter{},
	}
	f.handlers = NewHandlers(db, f.registry, f.updater, f.resetter)
	return f
}

func newMessage(t *testing.T, payload interface{}) *message.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(context.Background())
	return msg
}

func TestHandleDetectedDispatches(t *testing.T) {
	f := newHandlerFixture(t)

	msg := newMessage(t, &models.DetectionEvent{
		IncidentUUID: "inc-1",
		CompanyUUID:  "comp-1",
		BranchUUID:   "branch-1",
		CameraUUID:   "cam-1",
	})
	if err := f.handlers.HandleDetected(msg); err != nil {
		t.Fatalf("HandleDetected returned %v, handlers must always ack", err)
	}
	if len(f.registry.detections) != 1 || f.registry.detections[0].IncidentUUID != "inc-1" {
		t.Errorf("registry not called: %+v", f.registry.detections)
	}
}

func TestHandleDetectedBadJSONAcks(t *testing.T) {
	f := newHandlerFixture(t)

	msg := message.NewMessage(watermill.NewUUID(), []byte("{not json"))
	msg.SetContext(context.Background())
	if err := f.handlers.HandleDetected(msg); err != nil {
		t.Fatalf("undecodable message must still ack, got %v", err)
	}
	if len(f.registry.detections) != 0 {
		t.Error("undecodable message reached the registry")
	}
}

func TestHandleCustomerDispatches(t *testing.T) {
	f := newHandlerFixture(t)

	msg := newMessage(t, &models.CustomerEvent{
		CustomerUUID: "cust-1",
		CompanyUUID:  "comp-1",
		BranchUUID:   "branch-1",
		CameraUUID:   "cam-1",
	})
	if err := f.handlers.HandleCustomer(msg); err != nil {
		t.Fatalf("HandleCustomer failed: %v", err)
	}
	if len(f.registry.customers) != 1 {
		t.Errorf("registry not called: %+v", f.registry.customers)
	}
}

func TestHandleUpdatedDispatches(t *testing.T) {
	f := newHandlerFixture(t)

	status := models.StatusStopped
	msg := newMessage(t, &models.UpdateEvent{IncidentUUID: "inc-1", Status: status})
	if err := f.handlers.HandleUpdated(msg); err != nil {
		t.Fatalf("HandleUpdated failed: %v", err)
	}
	if len(f.updater.updates) != 1 || f.updater.updates[0].IncidentUUID != "inc-1" {
		t.Errorf("updater not called: %+v", f.updater.updates)
	}
	if len(f.resetter.resets) != 0 {
		t.Error("reset fired without a reset uuid")
	}
}

func TestHandleUpdatedErrorAcksAndDrops(t *testing.T) {
	f := newHandlerFixture(t)
	f.updater.err = apperr.BadRequestf("incident not watchlisted")

	msg := newMessage(t, &models.UpdateEvent{IncidentUUID: "inc-1"})
	if err := f.handlers.HandleUpdated(msg); err != nil {
		t.Fatalf("failed update must still ack, got %v", err)
	}
}

func TestHandleUpdatedRunsMirrorReset(t *testing.T) {
	f := newHandlerFixture(t)

	inc := &models.Incident{
		IncidentUUID: "inc-reentry",
		CompanyID:    11,
		BranchID:     22,
		CameraID:     3,
		IncidentType: models.IncidentTypeReentry,
	}
	if err := f.db.InsertIncident(context.Background(), nil, inc); err != nil {
		t.Fatalf("failed to insert incident: %v", err)
	}
	f.updater.reset = "inc-reentry"

	watchlisted := false
	msg := newMessage(t, &models.UpdateEvent{IncidentUUID: "inc-reentry", Watchlisted: &watchlisted})
	if err := f.handlers.HandleUpdated(msg); err != nil {
		t.Fatalf("HandleUpdated failed: %v", err)
	}
	if len(f.resetter.resets) != 1 || f.resetter.resets[0] != "inc-reentry" {
		t.Errorf("mirror reset not fired: %v", f.resetter.resets)
	}
}

func TestHandleUpdatedMissingUUIDAcks(t *testing.T) {
	f := newHandlerFixture(t)

	msg := newMessage(t, &models.UpdateEvent{})
	if err := f.handlers.HandleUpdated(msg); err != nil {
		t.Fatalf("missing uuid must drop silently, got %v", err)
	}
	if len(f.updater.updates) != 0 {
		t.Error("update without uuid reached the updater")
	}
}

func TestListenerLifecycleFlags(t *testing.T) {
	l := NewListener(&config.NATSConfig{URL: "nats://127.0.0.1:4222"}, nil)

	if l.Running() {
		t.Error("fresh listener reports running")
	}
	// Stop before Start is a no-op.
	l.Stop()
	if l.Running() {
		t.Error("stopped listener reports running")
	}
}
