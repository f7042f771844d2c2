// Package client is the HTTP client CLI commands use to talk to the
// local daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/bootstrap"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/engine"
	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/session"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to a running daemon over its loopback API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client against the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}
}

// FromBootstrap builds a client from the daemon's bootstrap file. Returns
// an error when no daemon connection details are available.
func FromBootstrap() (*Client, error) {
	cfg, err := bootstrap.Load()
	if err != nil {
		return nil, err
	}
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("client: daemon is not running (no bootstrap file); start it with 'drived'")
	}
	return New(cfg.BaseURL), nil
}

// BaseURL returns the daemon base URL this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// apiError decodes the server's JSON error envelope into a Go error.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return fmt.Errorf("%s", envelope.Error)
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}

func (c *Client) do(ctx context.Context, method, path string, body, into any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: cannot reach daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if into == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// Login authenticates against the remote server via the daemon.
func (c *Client) Login(ctx context.Context, serverURL, email, password string) (session.Identity, error) {
	var identity session.Identity
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"server_url": serverURL,
		"email":      email,
		"password":   password,
	}, &identity)
	return identity, err
}

// Logout ends the current session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// SyncStatus returns the engine's current status.
func (c *Client) SyncStatus(ctx context.Context) (engine.Status, error) {
	var payload struct {
		Status engine.Status `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, "/sync/status", nil, &payload)
	return payload.Status, err
}

// TriggerSync requests a sync cycle. Fire and forget.
func (c *Client) TriggerSync(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/sync/trigger", nil, nil)
}

// GetSyncConfig fetches the full sync configuration.
func (c *Client) GetSyncConfig(ctx context.Context) (store.SyncConfig, error) {
	var cfg store.SyncConfig
	err := c.do(ctx, http.MethodGet, "/config/sync", nil, &cfg)
	return cfg, err
}

// UpdateSyncConfig applies a partial edit and returns the resulting
// configuration.
func (c *Client) UpdateSyncConfig(ctx context.Context, edits store.SyncConfigEdits) (store.SyncConfig, error) {
	var cfg store.SyncConfig
	err := c.do(ctx, http.MethodPut, "/config/sync", edits, &cfg)
	return cfg, err
}

// Activity returns the most recent activity entries, newest first.
func (c *Client) Activity(ctx context.Context, limit int) ([]store.ActivityEntry, error) {
	path := "/activity"
	if limit > 0 {
		path = fmt.Sprintf("/activity?limit=%d", limit)
	}
	var payload struct {
		Entries []store.ActivityEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &payload)
	return payload.Entries, err
}

// DaemonStatus describes the running daemon.
type DaemonStatus struct {
	Version       string        `json:"version"`
	Port          int           `json:"port"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	SyncStatus    engine.Status `json:"sync_status"`
	LoggedIn      bool          `json:"logged_in"`
	ServerURL     string        `json:"server_url,omitempty"`
	UserEmail     string        `json:"user_email,omitempty"`
}

// GetDaemonStatus returns daemon runtime information.
func (c *Client) GetDaemonStatus(ctx context.Context) (DaemonStatus, error) {
	var status DaemonStatus
	err := c.do(ctx, http.MethodGet, "/daemon/status", nil, &status)
	return status, err
}

// ShutdownDaemon asks the daemon to stop.
func (c *Client) ShutdownDaemon(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/daemon/shutdown", nil, nil)
}

// WatchSyncStatus opens the WebSocket event stream and invokes handler
// for every status update until ctx is done or the stream fails.
func (c *Client) WatchSyncStatus(ctx context.Context, handler func(engine.Status)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/sync/events"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("client: connect event stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var event struct {
			Type   string        `json:"type"`
			Status engine.Status `json:"status"`
		}
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("client: event stream closed: %w", err)
		}
		if event.Type == "sync_status" {
			handler(event.Status)
		}
	}
}
