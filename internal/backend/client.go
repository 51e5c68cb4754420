// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package backend is the client for the main field-operations REST backend.
// It is the single normalization boundary for the backend's loosely-typed
// payloads: everything above this package works with canonical types.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request limits.
const (
	maxResponseLen = 8 << 20 // Maximum response body read (8MB)
	userAgent      = "fieldops/1.0"
)

// ErrNotFound is returned when the backend has no such resource, after all
// legacy path fallbacks were tried.
var ErrNotFound = errors.New("backend: not found")

// APIError is a non-2xx backend response with the error message extracted
// from whichever field the backend used.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether a later retry of the same request may succeed.
// Server errors, timeouts and throttling are retryable; other client errors
// are not.
func (e *APIError) Retryable() bool {
	if e.StatusCode >= 500 {
		return true
	}
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
}

// legacyPaths maps current endpoint paths to the older paths some backend
// deployments still serve. Tried in order on 404.
var legacyPaths = map[string][]string{
	"/inspections/submissions": {"/inspections"},
	"/org/billing":             {"/billing"},
}

// Client talks JSON over HTTP to the main backend. All requests carry the
// bearer token and the tenant's X-Org-ID header.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a backend client. baseURL must be absolute; a trailing slash
// is tolerated.
func New(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// GetJSON fetches path and decodes the response into out. On 404 the known
// legacy path alternates are tried before giving up with ErrNotFound.
func (c *Client) GetJSON(ctx context.Context, orgID, path string, out any) error {
	err := c.do(ctx, http.MethodGet, orgID, path, nil, nil, out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		for _, alt := range legacyPaths[strippedPath(path)] {
			c.logger.Debug("backend path fallback", "path", path, "fallback", alt)
			if altErr := c.do(ctx, http.MethodGet, orgID, withQuery(alt, path), nil, nil, out); altErr == nil {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return err
}

// PostJSON sends body as JSON to path. Extra headers are set verbatim on
// the request (e.g. idempotency keys). The response body, if any, is
// decoded into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, orgID, path string, body any, headers map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, orgID, path, payload, headers, out)
}

// do performs one HTTP round trip and normalizes the error surface.
func (c *Client) do(ctx context.Context, method, orgID, path string, body []byte, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Org-ID", orgID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(data, resp.StatusCode),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// extractErrorMessage pulls a human-readable message out of an error body.
// Backends have been seen using "error", "message" and "detail"; the status
// text is the last resort.
func extractErrorMessage(data []byte, statusCode int) string {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err == nil {
		for _, key := range []string{"error", "message", "detail"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return http.StatusText(statusCode)
}

// strippedPath removes the query string for legacy path lookup.
func strippedPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// withQuery carries the original query string over to a fallback path.
func withQuery(alt, original string) string {
	if i := strings.IndexByte(original, '?'); i >= 0 {
		return alt + original[i:]
	}
	return alt
}

// ListEndpoints maps snapshot list types to their backend endpoints.
var ListEndpoints = map[string]string{
	"projects":    "/projects",
	"tasks":       "/tasks",
	"assets":      "/assets",
	"vehicles":    "/vehicles",
	"inspections": "/inspections/submissions",
	"documents":   "/documents",
	"groups":      "/groups",
	"users":       "/users",
	"definitions": "/definitions",
	"invoices":    "/invoices",
	"clockings":   "/clockings",
}

// FetchList fetches one backend collection as raw records. Responses may be
// a bare array or wrapped in {data|items|results|rows}.
func (c *Client) FetchList(ctx context.Context, orgID, listType string) ([]map[string]any, error) {
	path, ok := ListEndpoints[listType]
	if !ok {
		return nil, fmt.Errorf("backend: unknown list type %q", listType)
	}

	var raw json.RawMessage
	if err := c.GetJSON(ctx, orgID, path, &raw); err != nil {
		return nil, err
	}
	return decodeRecordList(raw)
}

// FetchOrgBilling returns the backend's billing rollup for the org. The
// rollup object may arrive bare or wrapped in {data}.
func (c *Client) FetchOrgBilling(ctx context.Context, orgID string) (OrgBilling, error) {
	var raw map[string]any
	if err := c.GetJSON(ctx, orgID, "/org/billing", &raw); err != nil {
		return OrgBilling{}, err
	}
	if inner, ok := raw["data"].(map[string]any); ok {
		raw = inner
	}
	return OrgBillingFromRecord(raw), nil
}

// FetchTaskGeofences returns the raw fence records attached to a task.
func (c *Client) FetchTaskGeofences(ctx context.Context, orgID, taskID string) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.GetJSON(ctx, orgID, "/tasks/"+url.PathEscape(taskID)+"/geofences", &raw); err != nil {
		return nil, err
	}
	return decodeRecordList(raw)
}

// FetchProjectGeofences returns the raw fence records attached to a project.
func (c *Client) FetchProjectGeofences(ctx context.Context, orgID, projectID string) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := c.GetJSON(ctx, orgID, "/projects/"+url.PathEscape(projectID)+"/geofences", &raw); err != nil {
		return nil, err
	}
	return decodeRecordList(raw)
}

// decodeRecordList accepts a bare JSON array or the common wrapper objects.
func decodeRecordList(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("backend: unexpected list payload: %w", err)
	}
	for _, key := range []string{"data", "items", "results", "rows"} {
		if inner, ok := wrapper[key]; ok {
			if err := json.Unmarshal(inner, &records); err == nil {
				return records, nil
			}
		}
	}
	return nil, errors.New("backend: unexpected list payload shape")
}
