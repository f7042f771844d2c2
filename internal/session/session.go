// Package session manages the authenticated link between this machine and
// a ReadyNextOs server: remote login, keychain-backed token storage, and
// the identity fields persisted in the config store.
package session

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config/store"
)

// Credentials is what the sync engine needs to reach the WebDAV endpoints.
type Credentials struct {
	ServerURL string
	Email     string
	Token     string
	TenantID  string
}

// Options configures a session Manager.
type Options struct {
	Store *store.Store
	// Auth overrides the remote login client. Nil uses the default.
	Auth *AuthClient
	// Keyring overrides the OS keychain provider. Nil uses the real one.
	Keyring Keyring
}

// Manager owns the login/logout lifecycle. It is safe for concurrent use.
type Manager struct {
	store   *store.Store
	auth    *AuthClient
	keyring Keyring

	mu    sync.Mutex
	token *StoredToken
}

// NewManager builds a Manager from Options. Options.Store is required.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("session: store is required")
	}
	auth := opts.Auth
	if auth == nil {
		auth = NewAuthClient(nil)
	}
	kr := opts.Keyring
	if kr == nil {
		kr = osKeyring{}
	}
	return &Manager{store: opts.Store, auth: auth, keyring: kr}, nil
}

// Login validates the inputs, authenticates against the server, stores the
// token in the OS keychain, and records the identity in the config store.
// A repeated login replaces the previous session.
func (m *Manager) Login(ctx context.Context, serverURL, email, password string) (Identity, error) {
	serverURL = strings.TrimSpace(serverURL)
	email = strings.TrimSpace(email)
	if err := validateServerURL(serverURL); err != nil {
		return Identity{}, err
	}
	if email == "" {
		return Identity{}, ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if password == "" {
		return Identity{}, ValidationError{Field: "password", Reason: "must not be empty"}
	}

	resp, err := m.auth.Login(ctx, serverURL, email, password)
	if err != nil {
		return Identity{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// If a different account was logged in, drop its keychain entry first.
	if cfg, err := m.store.GetSyncConfig(ctx); err == nil && cfg.UserEmail != "" && cfg.UserEmail != email {
		if err := removeToken(m.keyring, cfg.UserEmail); err != nil {
			log.Printf("[Session] Warning: could not remove previous token: %v", err)
		}
	}

	token := StoredToken{Token: resp.Token}
	if err := storeToken(m.keyring, email, token); err != nil {
		return Identity{}, err
	}
	if err := m.store.SetIdentity(ctx, serverURL, email, resp.User.TenantID); err != nil {
		// Keep the store authoritative: a failed identity write means the
		// session is not established, so roll the keychain back.
		_ = removeToken(m.keyring, email)
		return Identity{}, err
	}
	m.token = &token

	log.Printf("[Session] Logged in as %s (%s)", email, serverURL)
	return resp.User, nil
}

// Logout clears the keychain token and the stored identity. It is
// idempotent: logging out while logged out succeeds.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.store.GetSyncConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.UserEmail != "" {
		if err := removeToken(m.keyring, cfg.UserEmail); err != nil {
			log.Printf("[Session] Warning: could not remove token: %v", err)
		}
	}
	if err := m.store.ClearIdentity(ctx); err != nil {
		return err
	}
	m.token = nil
	log.Printf("[Session] Logged out")
	return nil
}

// CurrentIdentity returns the stored server URL, email and tenant, or
// ErrNotLoggedIn when no identity is recorded.
func (m *Manager) CurrentIdentity(ctx context.Context) (serverURL, email, tenantID string, err error) {
	cfg, err := m.store.GetSyncConfig(ctx)
	if err != nil {
		return "", "", "", err
	}
	if !cfg.IsConfigured() {
		return "", "", "", ErrNotLoggedIn
	}
	return cfg.ServerURL, cfg.UserEmail, cfg.TenantID, nil
}

// Credentials returns everything a sync cycle needs. The token comes from
// the in-memory copy when present, otherwise the OS keychain. Returns
// ErrNotLoggedIn when no session exists or the token is gone.
func (m *Manager) Credentials(ctx context.Context) (Credentials, error) {
	cfg, err := m.store.GetSyncConfig(ctx)
	if err != nil {
		return Credentials{}, err
	}
	if !cfg.IsConfigured() {
		return Credentials{}, ErrNotLoggedIn
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		token, err := loadToken(m.keyring, cfg.UserEmail)
		if err != nil {
			return Credentials{}, err
		}
		if token == nil {
			return Credentials{}, ErrNotLoggedIn
		}
		m.token = token
	}
	return Credentials{
		ServerURL: cfg.ServerURL,
		Email:     cfg.UserEmail,
		Token:     m.token.Token,
		TenantID:  cfg.TenantID,
	}, nil
}

func validateServerURL(serverURL string) error {
	if serverURL == "" {
		return ValidationError{Field: "server_url", Reason: "must not be empty"}
	}
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return ValidationError{Field: "server_url", Reason: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{Field: "server_url", Reason: "scheme must be http or https"}
	}
	return nil
}
