// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/directory"
	"github.com/vigilant-labs/watchgate/internal/mirror"
	"github.com/vigilant-labs/watchgate/internal/models"
	"github.com/vigilant-labs/watchgate/internal/resolver"
)

// fakeConn records published payloads.
type fakeConn struct {
	published map[string][][]byte
	err       error
}

func newFakeConn() *fakeConn {
	return &fakeConn{published: make(map[string][][]byte)}
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.published[subject] = append(c.published[subject], data)
	return nil
}

type publisherFixture struct {
	db   *database.DB
	conn *fakeConn
	pub  *Publisher
}

func newPublisherFixture(t *testing.T) *publisherFixture {
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

	conn := newFakeConn()
	return &publisherFixture{
		db:   db,
		conn: conn,
		pub:  NewPublisher(conn, db, res, prop),
	}
}

func (f *publisherFixture) insertWatchlistedIncident(t *testing.T, uuid string) (*models.Incident, *models.WatchlistEntry) {
	t.Helper()
	ctx := context.Background()
	inc := &models.Incident{
		IncidentUUID: uuid,
		CompanyID:    11,
		BranchID:     22,
		CameraID:     3,
		Name:         "aisle 4 incident",
		IncidentType: models.IncidentTypeCustomerTheft,
		Status:       models.StatusWatchlisted,
	}
	if err := f.db.InsertIncident(ctx, nil, inc); err != nil {
		t.Fatalf("failed to insert incident: %v", err)
	}
	entry, _, err := f.db.GetOrCreateIncidentEntry(ctx, nil, inc.ID)
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}
	return inc, entry
}

func decodeMessage(t *testing.T, payload []byte) Message {
	t.Helper()
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("failed to decode fanout message: %v", err)
	}
	return msg
}

func TestPublishEntryAdd(t *testing.T) {
	f := newPublisherFixture(t)
	ctx := context.Background()

	_, entry := f.insertWatchlistedIncident(t, "inc-1")
	userID := int64(9)
	f.pub.PublishEntryAdd(ctx, entry.ID, &userID)

	branch := f.conn.published["watchlist.branch.branch-1"]
	if len(branch) != 1 {
		t.Fatalf("expected 1 branch message, got %d", len(branch))
	}
	msg := decodeMessage(t, branch[0])
	if msg.Action != ActionAdd {
		t.Errorf("got action %q, want add", msg.Action)
	}
	data, _ := msg.Data.(map[string]interface{})
	if data["incident_uuid"] != "inc-1" {
		t.Errorf("unexpected message data: %v", msg.Data)
	}

	user := f.conn.published["watchlist.user.9"]
	if len(user) != 1 {
		t.Errorf("expected 1 user message, got %d", len(user))
	}
}

func TestPublishEntryAddWithoutUser(t *testing.T) {
	f := newPublisherFixture(t)

	_, entry := f.insertWatchlistedIncident(t, "inc-1")
	f.pub.PublishEntryAdd(context.Background(), entry.ID, nil)

	if len(f.conn.published) != 1 {
		t.Errorf("expected only the branch subject, got %v", subjects(f.conn))
	}
}

func TestPublishIncidentRemove(t *testing.T) {
	f := newPublisherFixture(t)

	inc, _ := f.insertWatchlistedIncident(t, "inc-1")
	f.pub.PublishIncidentRemove(context.Background(), inc, nil)

	branch := f.conn.published["watchlist.branch.branch-1"]
	if len(branch) != 1 {
		t.Fatalf("expected 1 branch message, got %d", len(branch))
	}
	msg := decodeMessage(t, branch[0])
	if msg.Action != ActionRemove {
		t.Errorf("got action %q, want remove", msg.Action)
	}
	data, _ := msg.Data.(map[string]interface{})
	if data["incident_uuid"] != "inc-1" {
		t.Errorf("unexpected remove data: %v", msg.Data)
	}
}

func TestPublishCustomerRemove(t *testing.T) {
	f := newPublisherFixture(t)
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
	f.pub.PublishCustomerRemove(ctx, cust, nil)

	branch := f.conn.published["watchlist.branch.branch-1"]
	if len(branch) != 1 {
		t.Fatalf("expected 1 branch message, got %d", len(branch))
	}
	msg := decodeMessage(t, branch[0])
	data, _ := msg.Data.(map[string]interface{})
	if data["customer_uuid"] != "cust-1" {
		t.Errorf("unexpected remove data: %v", msg.Data)
	}
}

func TestPublishSwallowsBusFailure(t *testing.T) {
	f := newPublisherFixture(t)

	inc, entry := f.insertWatchlistedIncident(t, "inc-1")
	f.conn.err = context.DeadlineExceeded

	// Neither call may panic or surface the error.
	f.pub.PublishEntryAdd(context.Background(), entry.ID, nil)
	f.pub.PublishIncidentRemove(context.Background(), inc, nil)

	if len(f.conn.published) != 0 {
		t.Errorf("failed publishes recorded messages: %v", subjects(f.conn))
	}
}

func subjects(c *fakeConn) []string {
	var out []string
	for s := range c.published {
		out = append(out, s)
	}
	return out
}
