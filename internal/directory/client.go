// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package directory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigilant-labs/watchgate/internal/apperr"
	"github.com/vigilant-labs/watchgate/internal/config"
)

// maxErrorBodySize limits how much of an error response body is read back
// for diagnostics, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// Client is the HTTP implementation of Directory.
//
// Authentication is token based: the client logs in with its API key on the
// first request and caches the bearer token. A 401 response invalidates the
// token and triggers exactly one re-login before the call is retried.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu    sync.Mutex
	token string
}

// NewClient creates a directory client from configuration. The HTTP timeout
// comes from config; the circuit breaker lives in the wrapper returned by
// NewBreakerClient, not here.
func NewClient(cfg *config.DirectoryConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type loginRequest struct {
	APIKey string `json:"api_key"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// ensureToken returns the cached bearer token, logging in first if needed.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	body, err := json.Marshal(loginRequest{APIKey: c.apiKey})
	if err != nil {
		return "", fmt.Errorf("failed to encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.Unavailablef("directory login failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.Unavailablef("directory login failed with status %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", apperr.Unavailablef("failed to decode login response: %v", err)
	}
	if lr.Token == "" {
		return "", apperr.Unavailablef("directory login returned empty token")
	}

	c.token = lr.Token
	return c.token, nil
}

// invalidateToken drops the cached token so the next call re-authenticates.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// readBodyForError reads a bounded amount of the response body for error
// reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// doRequest performs an authenticated request against the directory API.
// A 401 response triggers one re-login and retry.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload, result interface{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return err
		}

		var body io.Reader = http.NoBody
		if payload != nil {
			encoded, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
			}
			body = bytes.NewReader(encoded)
		}

		reqURL := c.baseURL + path
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return fmt.Errorf("failed to create %s %s request: %w", method, path, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return apperr.Unavailablef("directory request %s %s failed: %v", method, path, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_ = resp.Body.Close()
			c.invalidateToken()
			continue
		}

		err = c.handleResponse(resp, method, path, result)
		_ = resp.Body.Close()
		return err
	}

	return apperr.Unavailablef("directory request %s %s rejected after re-login", method, path)
}

// handleResponse validates the status code and decodes the body. An empty
// body counts as a resolution failure: the directory always returns a record
// on success.
func (c *Client) handleResponse(resp *http.Response, method, path string, result interface{}) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.NotFoundf("directory %s %s returned 404", method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body := readBodyForError(resp.Body)
		return apperr.Unavailablef("directory %s %s failed with status %d: %s", method, path, resp.StatusCode, string(body))
	}

	if result == nil {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Unavailablef("failed to read %s %s response: %v", method, path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return apperr.Unavailablef("directory %s %s returned empty body", method, path)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return apperr.Unavailablef("failed to decode %s %s response: %v", method, path, err)
	}
	return nil
}

type companyBranchResponse struct {
	CompanyID int64 `json:"company_id"`
	BranchID  int64 `json:"branch_id"`
}

// CompanyBranchIDs resolves a company/branch UUID pair to internal ids.
func (c *Client) CompanyBranchIDs(ctx context.Context, companyUUID, branchUUID string) (int64, int64, error) {
	query := url.Values{}
	query.Set("company_uuid", companyUUID)
	query.Set("branch_uuid", branchUUID)

	var out companyBranchResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/companies/lookup", query, nil, &out); err != nil {
		return 0, 0, err
	}
	if out.CompanyID == 0 || out.BranchID == 0 {
		return 0, 0, apperr.NotFoundf("directory has no mapping for company %s branch %s", companyUUID, branchUUID)
	}
	return out.CompanyID, out.BranchID, nil
}

// CameraByUUID looks up a camera by its external UUID.
func (c *Client) CameraByUUID(ctx context.Context, cameraUUID string) (*Camera, error) {
	var out Camera
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/cameras/"+url.PathEscape(cameraUUID), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, apperr.NotFoundf("directory has no camera %s", cameraUUID)
	}
	return &out, nil
}

type createCameraRequest struct {
	CameraUUID string `json:"camera_uuid"`
	BranchID   int64  `json:"branch_id"`
}

// CreateCamera registers an unknown camera under the given branch.
func (c *Client) CreateCamera(ctx context.Context, cameraUUID string, branchID int64) (*Camera, error) {
	var out Camera
	payload := createCameraRequest{CameraUUID: cameraUUID, BranchID: branchID}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/cameras", nil, payload, &out); err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, apperr.Unavailablef("directory returned no id for created camera %s", cameraUUID)
	}
	return &out, nil
}

// BranchInfo returns the branch record for an internal branch id.
func (c *Client) BranchInfo(ctx context.Context, branchID int64) (*Branch, error) {
	var out Branch
	path := fmt.Sprintf("/api/v1/branches/%d", branchID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	if out.BranchUUID == "" {
		return nil, apperr.NotFoundf("directory has no branch %d", branchID)
	}
	return &out, nil
}

type companyResponse struct {
	CompanyUUID string `json:"company_uuid"`
}

// CompanyUUID maps an internal company id back to its external UUID.
func (c *Client) CompanyUUID(ctx context.Context, companyID int64) (string, error) {
	var out companyResponse
	path := fmt.Sprintf("/api/v1/companies/%d", companyID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return "", err
	}
	if out.CompanyUUID == "" {
		return "", apperr.NotFoundf("directory has no company %d", companyID)
	}
	return out.CompanyUUID, nil
}

// interface guard
var _ Directory = (*Client)(nil)
