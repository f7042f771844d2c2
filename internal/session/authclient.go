package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAuthTimeout = 15 * time.Second
	maxErrorBody       = 8 << 10

	// deviceName identifies this client in the server's token list.
	deviceName = "ReadyNextOs Drive"
)

// Identity describes the authenticated user as reported by the server.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	TenantID string `json:"tenant_id"`
}

// LoginResponse is the document server's answer to a successful login.
type LoginResponse struct {
	Token string   `json:"token"`
	User  Identity `json:"user"`
}

// AuthClient performs remote authentication against the document server.
type AuthClient struct {
	client *http.Client
}

// NewAuthClient builds an auth client with optional custom transport.
func NewAuthClient(transport http.RoundTripper) *AuthClient {
	client := &http.Client{Timeout: defaultAuthTimeout}
	if transport != nil {
		client.Transport = transport
	}
	return &AuthClient{client: client}
}

// Login exchanges email/password for an API token at
// {server}/api/v1/auth/login.
func (c *AuthClient) Login(ctx context.Context, serverURL, email, password string) (LoginResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"email":       email,
		"password":    password,
		"device_name": deviceName,
	})
	if err != nil {
		return LoginResponse{}, fmt.Errorf("session: encode login request: %w", err)
	}

	url := strings.TrimRight(serverURL, "/") + "/api/v1/auth/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return LoginResponse{}, fmt.Errorf("session: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return LoginResponse{}, NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := extractErrorMessage(body)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
			resp.StatusCode == http.StatusUnprocessableEntity {
			return LoginResponse{}, AuthError{StatusCode: resp.StatusCode, Message: msg}
		}
		return LoginResponse{}, fmt.Errorf("session: login failed (%s): %s", resp.Status, msg)
	}

	var login LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return LoginResponse{}, fmt.Errorf("session: decode login response: %w", err)
	}
	if strings.TrimSpace(login.Token) == "" {
		return LoginResponse{}, fmt.Errorf("session: login response missing token")
	}
	return login, nil
}

func extractErrorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			if msg := strings.TrimSpace(payload.Error); msg != "" {
				return msg
			}
			if msg := strings.TrimSpace(payload.Message); msg != "" {
				return msg
			}
		}
	}
	return trimmed
}
