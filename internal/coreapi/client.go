// Package coreapi is the HTTP client for the building's external Core API:
// device configs/state, building consumption, preference and historic
// time series, weather and non-controllable-load forecasts, and the
// setpoint/schedule write endpoints. Modelled on modo.Client's shape
// (bounded http.Client, slog logging, typed response structs) generalized
// from Modo's two hardcoded endpoints to the full Core API surface.
package coreapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cepro/hems-controller/internal/errkind"
)

const (
	maxAttempts  = 3
	retryBaseDur = 200 * time.Millisecond
)

// Client is the Core API HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New returns a Client for baseURL, using httpClient for requests (pass a
// client with a sensible Timeout set; the Core API calls are otherwise
// bounded only by ctx).
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// doGet performs a GET against path+query with bounded retry (transient
// errors get a short backoff, up to maxAttempts, before surfacing
// errkind.DataUnavailable), decoding the JSON response body into out.
func (c *Client) doGet(ctx context.Context, path, query string, out any) error {
	url := c.baseURL + path
	if query != "" {
		url += "?" + query
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return &errkind.DataUnavailable{Reason: "context cancelled during retry", Err: ctx.Err()}
			case <-time.After(retryBaseDur * time.Duration(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("coreapi: build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("coreapi GET failed, retrying", "url", url, "attempt", attempt, "error", err)
			continue
		}

		body := resp.Body
		if resp.StatusCode >= 500 {
			body.Close()
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			c.logger.Warn("coreapi GET server error, retrying", "url", url, "attempt", attempt, "status", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			body.Close()
			return &errkind.DataUnavailable{Reason: fmt.Sprintf("coreapi GET %s: status %d", path, resp.StatusCode)}
		}

		err = json.NewDecoder(body).Decode(out)
		body.Close()
		if err != nil {
			return fmt.Errorf("coreapi: decode response from %s: %w", path, err)
		}
		return nil
	}

	return &errkind.DataUnavailable{Reason: fmt.Sprintf("coreapi GET %s failed after %d attempts", path, maxAttempts), Err: lastErr}
}

// doPost performs a POST with a JSON body, with the same bounded retry as
// doGet. Failures are wrapped as errkind.WriteFailed.
func (c *Client) doPost(ctx context.Context, path string, payload any) error {
	url := c.baseURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("coreapi: encode request body: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return &errkind.WriteFailed{Target: path, Err: ctx.Err()}
			case <-time.After(retryBaseDur * time.Duration(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("coreapi: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("coreapi POST failed, retrying", "url", url, "attempt", attempt, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
			c.logger.Warn("coreapi POST server error, retrying", "url", url, "attempt", attempt, "status", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 300 {
			return &errkind.WriteFailed{Target: path, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
		}
		return nil
	}

	return &errkind.WriteFailed{Target: path, Err: lastErr}
}
