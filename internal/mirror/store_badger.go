// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package mirror

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/models"
)

// BadgerStore persists mirror documents in an embedded Badger database.
// Used for single-node deployments where branch hardware syncs through the
// reconciliation endpoint instead of a shared remote store.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the Badger database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open mirror badger store: %w", err)
	}

	logging.Info().Str("path", path).Msg("Mirror badger store opened")
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Set(_ context.Context, path, key string, doc *models.WatchlistDocument) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", path, key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(storeKey(path, key)), value)
	})
	if err != nil {
		return fmt.Errorf("mirror set %s/%s failed: %w", path, key, err)
	}
	return nil
}

func (s *BadgerStore) Delete(_ context.Context, path, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(storeKey(path, key)))
	})
	if err != nil {
		return fmt.Errorf("mirror delete %s/%s failed: %w", path, key, err)
	}
	return nil
}

func (s *BadgerStore) Exists(_ context.Context, path, key string, filters map[string]interface{}) (bool, error) {
	var doc *models.WatchlistDocument
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(storeKey(path, key)))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			doc = &models.WatchlistDocument{}
			return json.Unmarshal(value, doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mirror exists %s/%s failed: %w", path, key, err)
	}
	return matchesFilters(doc, filters), nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
