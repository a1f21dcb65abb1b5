// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/models"
)

func testDoc(incidentUUID string) *models.WatchlistDocument {
	return &models.WatchlistDocument{
		IncidentUUID: incidentUUID,
		CompanyUUID:  "comp-1",
		BranchUUID:   "branch-1",
		Name:         "aisle 4 incident",
		VisitCount:   2,
		Watchlisted:  true,
		PushedAt:     time.Now().UTC(),
	}
}

// storeContract exercises the Store behavior every backend must share.
func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	const path = "watchlists/comp-1/branch-1"

	doc := testDoc("inc-1")
	if err := store.Set(ctx, path, "incident_inc-1", doc); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	exists, err := store.Exists(ctx, path, "incident_inc-1", nil)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected document to exist after Set")
	}

	// Filter matching and mismatching.
	exists, err = store.Exists(ctx, path, "incident_inc-1", map[string]interface{}{"watchlisted": true})
	if err != nil || !exists {
		t.Errorf("matching filter: exists=%v err=%v", exists, err)
	}
	exists, err = store.Exists(ctx, path, "incident_inc-1", map[string]interface{}{"watchlisted": false})
	if err != nil || exists {
		t.Errorf("mismatching filter: exists=%v err=%v", exists, err)
	}

	// Overwrite is allowed.
	doc.VisitCount = 3
	if err := store.Set(ctx, path, "incident_inc-1", doc); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	if err := store.Delete(ctx, path, "incident_inc-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = store.Exists(ctx, path, "incident_inc-1", nil)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected document gone after Delete")
	}

	// Deleting a missing document is not an error.
	if err := store.Delete(ctx, path, "incident_missing"); err != nil {
		t.Errorf("delete of missing document failed: %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestBadgerStoreContract(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open badger store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	})
	storeContract(t, store)
}

func TestHTTPStoreContract(t *testing.T) {
	backing := NewMemoryStore()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/documents/{path}/{key}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "mirror-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		path, key := r.PathValue("path"), r.PathValue("key")
		switch r.Method {
		case http.MethodPut:
			var doc models.WatchlistDocument
			if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = backing.Set(r.Context(), path, key, &doc)
		case http.MethodDelete:
			_ = backing.Delete(r.Context(), path, key)
		case http.MethodHead:
			filters := map[string]interface{}{}
			if v := r.URL.Query().Get("watchlisted"); v != "" {
				filters["watchlisted"] = v == "true"
			}
			exists, _ := backing.Exists(r.Context(), path, key, filters)
			if !exists {
				w.WriteHeader(http.StatusNotFound)
			}
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := NewHTTPStore(&config.MirrorConfig{
		BaseURL: srv.URL,
		APIKey:  "mirror-key",
		Timeout: 5 * time.Second,
	})
	storeContract(t, store)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	store, err := NewStore(&config.MirrorConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("memory backend failed: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", store)
	}

	if _, err := NewStore(&config.MirrorConfig{Backend: "cloud"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
