// Package client talks to a running devhost daemon over its control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/orchestrator"
	"github.com/edvin/devhost/internal/site"
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a client for the daemon listening on addr, which may be a bare
// host:port or a full URL.
func New(addr, token string, logger zerolog.Logger) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   token,
		httpClient: &http.Client{
			// A planning pass waits for every backend to spawn.
			Timeout: 60 * time.Second,
		},
		logger: logger.With().Str("component", "api-client").Logger(),
	}
}

type StartResult struct {
	Sites    []site.Site `json:"sites"`
	Warnings []string    `json:"warnings,omitempty"`
}

type StopResult struct {
	Running  bool     `json:"running"`
	Warnings []string `json:"warnings,omitempty"`
}

type PHPVersions struct {
	Versions []string `json:"versions"`
	Current  string   `json:"current"`
}

func (c *Client) Status(ctx context.Context) (bool, error) {
	var out struct {
		Running bool `json:"running"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return false, err
	}
	return out.Running, nil
}

func (c *Client) Start(ctx context.Context) (StartResult, error) {
	var out StartResult
	err := c.do(ctx, http.MethodPost, "/api/v1/start", nil, &out)
	return out, err
}

func (c *Client) Stop(ctx context.Context) (StopResult, error) {
	var out StopResult
	err := c.do(ctx, http.MethodPost, "/api/v1/stop", nil, &out)
	return out, err
}

// Restart returns the daemon's result even when the restart failed; the
// error is only set when no result could be read.
func (c *Client) Restart(ctx context.Context) (orchestrator.Result, error) {
	var out orchestrator.Result
	err := c.do(ctx, http.MethodPost, "/api/v1/restart", nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusInternalServerError && out.Error != "" {
		return out, nil
	}
	return out, err
}

func (c *Client) Sites(ctx context.Context) ([]site.Site, error) {
	var out []site.Site
	err := c.do(ctx, http.MethodGet, "/api/v1/sites", nil, &out)
	return out, err
}

// Toggle only queues the toggle; the daemon reports the outcome as an event.
func (c *Client) Toggle(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sites/"+url.PathEscape(name)+"/toggle", nil, nil)
}

func (c *Client) PHPVersions(ctx context.Context) (PHPVersions, error) {
	var out PHPVersions
	err := c.do(ctx, http.MethodGet, "/api/v1/php/versions", nil, &out)
	return out, err
}

func (c *Client) UsePHP(ctx context.Context, version string) error {
	return c.do(ctx, http.MethodPut, "/api/v1/php/version", map[string]string{"version": version}, nil)
}

// do sends payload as JSON and decodes the response into out when it is
// non-nil. Error bodies are decoded into out as well, then reported as an
// *APIError.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("X-API-Key", c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api call")

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
