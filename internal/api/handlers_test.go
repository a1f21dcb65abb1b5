// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/models"
	"github.com/vigilant-labs/watchgate/internal/reconcile"
)

// fakeWatchlist records calls and returns canned results.
type fakeWatchlist struct {
	addErr      error
	removeErr   error
	overrideErr error

	addedID      int64
	addedStatus  models.IncidentStatus
	addedComment *string
	removedID    int64
	overrideUUID string
	overrideFlag bool
}

func (f *fakeWatchlist) Add(_ context.Context, incidentID int64, status models.IncidentStatus, comment *string, _ *int64) (*models.WatchlistEntry, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.addedID = incidentID
	f.addedStatus = status
	f.addedComment = comment
	return &models.WatchlistEntry{ID: 77, IncidentID: &incidentID}, nil
}

func (f *fakeWatchlist) Remove(_ context.Context, incidentID int64, _ *string, _ *int64) (models.RemovalResult, error) {
	if f.removeErr != nil {
		return models.RemovalResult{}, f.removeErr
	}
	f.removedID = incidentID
	return models.RemovalResult{Kind: models.RemovalIncident}, nil
}

func (f *fakeWatchlist) AnalystOverride(_ context.Context, incidentUUID string, watchlisted bool, _ *string, _ *int64) error {
	if f.overrideErr != nil {
		return f.overrideErr
	}
	f.overrideUUID = incidentUUID
	f.overrideFlag = watchlisted
	return nil
}

type fakeReplayer struct {
	err         error
	companyUUID string
	branchUUID  string
	window      time.Duration
}

func (f *fakeReplayer) Replay(_ context.Context, companyUUID, branchUUID string, window time.Duration) (*reconcile.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.companyUUID = companyUUID
	f.branchUUID = branchUUID
	f.window = window
	return &reconcile.Result{
		Add:    []models.WatchlistDocument{},
		Remove: []reconcile.RemovePair{{IncidentUUID: "inc-gone"}},
	}, nil
}

type fakeMirror struct {
	pushes []int64
}

func (f *fakeMirror) Push(_ context.Context, entryID int64) { f.pushes = append(f.pushes, entryID) }

type fakeListener struct {
	running  bool
	startErr error
}

func (f *fakeListener) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}
func (f *fakeListener) Stop()         { f.running = false }
func (f *fakeListener) Running() bool { return f.running }

type apiFixture struct {
	db        *database.DB
	watchlist *fakeWatchlist
	replayer  *fakeReplayer
	mirror    *fakeMirror
	listener  *fakeListener
	server    http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
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

	f := &apiFixture{
		db:        db,
		watchlist: &fakeWatchlist{},
		replayer:  &fakeReplayer{},
		mirror:    &fakeMirror{},
		listener:  &fakeListener{},
	}
	handler := NewHandler(db, f.watchlist, f.replayer, f.mirror, f.listener, nil, nil, nil)
	f.server = NewRouter(handler, NewMiddleware(&MiddlewareConfig{RateLimitDisabled: true})).Setup()
	return f
}

func (f *apiFixture) insertIncident(t *testing.T, uuid string) *models.Incident {
	t.Helper()
	inc := &models.Incident{
		IncidentUUID: uuid,
		CompanyID:    11,
		BranchID:     22,
		CameraID:     3,
		Name:         "register 2 incident",
		IncidentType: models.IncidentTypeCustomerTheft,
		Status:       models.StatusNone,
	}
	if err := f.db.InsertIncident(context.Background(), nil, inc); err != nil {
		t.Fatalf("failed to insert incident: %v", err)
	}
	return inc
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return &resp
}

func TestAddWatchlist(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/watchlist",
		`{"incident_id": 42, "status": 3, "comment": "stopped at door", "user_id": 9}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if f.watchlist.addedID != 42 {
		t.Errorf("got incident id %d, want 42", f.watchlist.addedID)
	}
	if f.watchlist.addedStatus != models.StatusStopped {
		t.Errorf("got status %d, want stopped", f.watchlist.addedStatus)
	}
	if f.watchlist.addedComment == nil || *f.watchlist.addedComment != "stopped at door" {
		t.Errorf("comment not forwarded: %v", f.watchlist.addedComment)
	}

	resp := decodeResponse(t, rec)
	if resp.Status != "success" {
		t.Errorf("got response status %q, want success", resp.Status)
	}
}

func TestAddWatchlistDefaultsStatus(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/watchlist", `{"incident_id": 7}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if f.watchlist.addedStatus != models.StatusWatchlisted {
		t.Errorf("got status %d, want watchlisted default", f.watchlist.addedStatus)
	}
}

func TestAddWatchlistValidation(t *testing.T) {
	f := newAPIFixture(t)

	for name, body := range map[string]string{
		"missing incident id": `{"comment": "x"}`,
		"malformed json":      `{"incident_id": `,
	} {
		rec := f.do(t, http.MethodPost, "/api/v1/watchlist", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got status %d, want 400", name, rec.Code)
		}
	}
}

func TestAddWatchlistErrorMapping(t *testing.T) {
	f := newAPIFixture(t)

	cases := []struct {
		err  error
		want int
	}{
		{apperr.NotFoundf("incident 5 not found"), http.StatusNotFound},
		{apperr.BadRequestf("already watchlisted"), http.StatusBadRequest},
		{apperr.Conflictf("concurrent update"), http.StatusConflict},
		{apperr.Unavailablef("database down"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		f.watchlist.addErr = tc.err
		rec := f.do(t, http.MethodPost, "/api/v1/watchlist", `{"incident_id": 5}`)
		if rec.Code != tc.want {
			t.Errorf("error %v: got status %d, want %d", tc.err, rec.Code, tc.want)
		}
		resp := decodeResponse(t, rec)
		if resp.Error == nil || resp.Error.Message == "" {
			t.Errorf("error %v: response carries no error detail", tc.err)
		}
	}
}

func TestRemoveWatchlist(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/v1/watchlist/31?comment=cleared&user_id=4", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if f.watchlist.removedID != 31 {
		t.Errorf("got incident id %d, want 31", f.watchlist.removedID)
	}
}

func TestRemoveWatchlistBadID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/v1/watchlist/not-a-number", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestAnalystOverride(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/watchlist/analyst",
		`{"incident_uuid": "inc-9", "watchlisted": true, "user_id": 3}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if f.watchlist.overrideUUID != "inc-9" || !f.watchlist.overrideFlag {
		t.Errorf("override not forwarded: uuid=%q flag=%v", f.watchlist.overrideUUID, f.watchlist.overrideFlag)
	}
}

func TestAnalystOverrideRequiresWatchlisted(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/watchlist/analyst", `{"incident_uuid": "inc-9"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}

	// Explicit false must pass validation; a declined ruling is a valid ruling.
	rec = f.do(t, http.MethodPost, "/api/v1/watchlist/analyst",
		`{"incident_uuid": "inc-9", "watchlisted": false}`)
	if rec.Code != http.StatusOK {
		t.Errorf("explicit false: got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if f.watchlist.overrideFlag {
		t.Error("explicit false not forwarded")
	}
}

func TestHardwareSync(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/watchlist/hardware-sync",
		`{"company_uuid": "comp-1", "branch_uuid": "branch-1", "window_seconds": 600}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if f.replayer.companyUUID != "comp-1" || f.replayer.branchUUID != "branch-1" {
		t.Errorf("replay ids not forwarded: %q/%q", f.replayer.companyUUID, f.replayer.branchUUID)
	}
	if f.replayer.window != 10*time.Minute {
		t.Errorf("got window %v, want 10m", f.replayer.window)
	}
	if !strings.Contains(rec.Body.String(), "inc-gone") {
		t.Errorf("replay removes missing from body: %s", rec.Body.String())
	}
}

func TestHardwareSyncUnknownBranch(t *testing.T) {
	f := newAPIFixture(t)
	f.replayer.err = apperr.NotFoundf("branch branch-x not found")

	rec := f.do(t, http.MethodPost, "/api/v1/watchlist/hardware-sync",
		`{"company_uuid": "comp-1", "branch_uuid": "branch-x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rec.Code)
	}
}

func TestMirrorRepush(t *testing.T) {
	f := newAPIFixture(t)
	inc := f.insertIncident(t, "inc-push")
	entry, _, err := f.db.GetOrCreateIncidentEntry(context.Background(), nil, inc.ID)
	if err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/watchlist/mirror/"+strconv.FormatInt(inc.ID, 10), "")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(f.mirror.pushes) != 1 || f.mirror.pushes[0] != entry.ID {
		t.Errorf("got pushes %v, want [%d]", f.mirror.pushes, entry.ID)
	}
}

func TestMirrorRepushNotWatchlisted(t *testing.T) {
	f := newAPIFixture(t)
	inc := f.insertIncident(t, "inc-bare")

	rec := f.do(t, http.MethodPost, "/api/v1/watchlist/mirror/"+strconv.FormatInt(inc.ID, 10), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rec.Code)
	}
	if len(f.mirror.pushes) != 0 {
		t.Errorf("unexpected pushes: %v", f.mirror.pushes)
	}
}

func TestIncidentDetail(t *testing.T) {
	f := newAPIFixture(t)
	inc := f.insertIncident(t, "inc-detail")

	rec := f.do(t, http.MethodGet, "/api/v1/incidents/"+strconv.FormatInt(inc.ID, 10), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "inc-detail") {
		t.Errorf("incident uuid missing from body: %s", rec.Body.String())
	}
}

func TestIncidentDetailNotFound(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/incidents/9999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rec.Code)
	}
}

func TestListenerLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/listener/status", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"running":false`) {
		t.Fatalf("initial status: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/v1/listener/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: got status %d: %s", rec.Code, rec.Body.String())
	}
	if !f.listener.running {
		t.Error("listener not started")
	}

	rec = f.do(t, http.MethodPost, "/api/v1/listener/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: got status %d: %s", rec.Code, rec.Body.String())
	}
	if f.listener.running {
		t.Error("listener not stopped")
	}
}

func TestListenerStartFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.listener.startErr = apperr.Unavailablef("broker unreachable")

	rec := f.do(t, http.MethodPost, "/api/v1/listener/start", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"database":true`) {
		t.Errorf("database state missing: %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestWebsocketMissingParams(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/ws", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("/ws without user_id: got status %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/ws/branches", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("/ws/branches without branch_uuid: got status %d, want 400", rec.Code)
	}
}

func TestWebsocketHubDisabled(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/ws?user_id=5", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503 when hub is nil", rec.Code)
	}
}
