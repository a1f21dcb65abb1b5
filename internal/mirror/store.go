// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

// Package mirror keeps the per-branch document store in sync with the
// watchlist. Branch hardware reads denormalized watchlist documents from a
// mirror rather than querying Watchgate directly, so every watchlist change
// is pushed (or pulled) through the Propagator after the database commit.
//
// Mirror writes are best effort: a failed push is logged and counted, never
// surfaced to the operation that triggered it. The delivery log plus
// reconciliation replay close the gap for branches that missed an update.
package mirror

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/models"
)

// Store is a path-addressed document store. Documents live under
// hierarchical paths ("{root}/{companyUUID}/{branchUUID}") keyed by document
// name ("incident_{uuid}", "customer_{uuid}").
type Store interface {
	// Set writes doc at path/key, replacing any existing document.
	Set(ctx context.Context, path, key string, doc *models.WatchlistDocument) error

	// Delete removes path/key. Deleting a missing document is not an error.
	Delete(ctx context.Context, path, key string) error

	// Exists reports whether a document at path/key matches all filters.
	// Nil or empty filters reduce to a presence check.
	Exists(ctx context.Context, path, key string, filters map[string]interface{}) (bool, error)

	// Close releases backend resources.
	Close() error
}

// NewStore builds the configured Store backend.
func NewStore(cfg *config.MirrorConfig) (Store, error) {
	switch cfg.Backend {
	case "http":
		return NewHTTPStore(cfg), nil
	case "badger":
		return NewBadgerStore(cfg.BadgerPath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown mirror backend %q", cfg.Backend)
	}
}

// MemoryStore is an in-process Store used in tests and single-node setups.
// Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*models.WatchlistDocument
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*models.WatchlistDocument)}
}

func storeKey(path, key string) string {
	return strings.TrimSuffix(path, "/") + "/" + key
}

func (m *MemoryStore) Set(_ context.Context, path, key string, doc *models.WatchlistDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *doc
	m.docs[storeKey(path, key)] = &copied
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, path, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, storeKey(path, key))
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, path, key string, filters map[string]interface{}) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[storeKey(path, key)]
	if !ok {
		return false, nil
	}
	return matchesFilters(doc, filters), nil
}

func (m *MemoryStore) Close() error { return nil }

// Get returns the stored document, or nil when absent. Test helper.
func (m *MemoryStore) Get(path, key string) *models.WatchlistDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[storeKey(path, key)]
	if !ok {
		return nil
	}
	copied := *doc
	return &copied
}

// Len returns the number of stored documents. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// matchesFilters checks the handful of filterable document fields the
// duplicate-suppression query uses.
func matchesFilters(doc *models.WatchlistDocument, filters map[string]interface{}) bool {
	for field, want := range filters {
		switch field {
		case "watchlisted":
			if b, ok := want.(bool); !ok || doc.Watchlisted != b {
				return false
			}
		case "incident_uuid":
			if s, ok := want.(string); !ok || doc.IncidentUUID != s {
				return false
			}
		case "customer_uuid":
			if s, ok := want.(string); !ok || doc.CustomerUUID != s {
				return false
			}
		default:
			return false
		}
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
