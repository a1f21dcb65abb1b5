// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/models"
)

// HTTPStore talks to a remote document-store gateway. Documents map onto
// `PUT/DELETE/HEAD {base}/v1/documents/{path}/{key}`; Exists filters travel
// as query parameters and the gateway answers 200/404.
//
// Thread Safety: safe for concurrent use.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPStore creates a store client from configuration.
func NewHTTPStore(cfg *config.MirrorConfig) *HTTPStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPStore{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) docURL(path, key string) string {
	return s.baseURL + "/v1/documents/" + url.PathEscape(path) + "/" + url.PathEscape(key)
}

func (s *HTTPStore) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-API-Key", s.apiKey)
	return s.client.Do(req)
}

func (s *HTTPStore) Set(ctx context.Context, path, key string, doc *models.WatchlistDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s/%s: %w", path, key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.docURL(path, key), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create set request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.do(req)
	if err != nil {
		return fmt.Errorf("mirror set %s/%s failed: %w", path, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("mirror set %s/%s failed with status %d", path, key, resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPStore) Delete(ctx context.Context, path, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.docURL(path, key), http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}

	resp, err := s.do(req)
	if err != nil {
		return fmt.Errorf("mirror delete %s/%s failed: %w", path, key, err)
	}
	defer resp.Body.Close()

	// 404 means the document was already gone, which delete semantics allow.
	if resp.StatusCode != http.StatusNotFound && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return fmt.Errorf("mirror delete %s/%s failed with status %d", path, key, resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPStore) Exists(ctx context.Context, path, key string, filters map[string]interface{}) (bool, error) {
	reqURL := s.docURL(path, key)
	if len(filters) > 0 {
		query := url.Values{}
		for field, want := range filters {
			query.Set(field, fmt.Sprintf("%v", want))
		}
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, reqURL, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("failed to create exists request: %w", err)
	}

	resp, err := s.do(req)
	if err != nil {
		return false, fmt.Errorf("mirror exists %s/%s failed: %w", path, key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("mirror exists %s/%s failed with status %d", path, key, resp.StatusCode)
	}
}

func (s *HTTPStore) Close() error { return nil }

var _ Store = (*HTTPStore)(nil)
