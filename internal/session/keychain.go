package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

// keychainService is the OS keychain service name tokens are filed under;
// the keychain user is the account email.
const keychainService = "readynextos-drive"

// StoredToken is the credential blob kept in the OS keychain. It survives
// daemon restarts so the engine can resume syncing without re-login.
type StoredToken struct {
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the token carries an expiry in the past.
func (t StoredToken) Expired() bool {
	return t.ExpiresAt != nil && !time.Now().Before(*t.ExpiresAt)
}

// Keyring abstracts go-keyring calls for testing.
type Keyring interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// osKeyring delegates to the real go-keyring package.
type osKeyring struct{}

func (osKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}
func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Delete(service, user string) error        { return keyring.Delete(service, user) }

// storeToken writes the token for the given email into the keychain.
func storeToken(provider Keyring, email string, token StoredToken) error {
	encoded, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("session: encode token: %w", err)
	}
	if err := provider.Set(keychainService, email, string(encoded)); err != nil {
		return fmt.Errorf("session: store token in keychain: %w", err)
	}
	return nil
}

// loadToken reads the token for the given email. A missing entry returns
// (nil, nil). An expired token is removed and treated as absent.
func loadToken(provider Keyring, email string) (*StoredToken, error) {
	raw, err := provider.Get(keychainService, email)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: read token from keychain: %w", err)
	}

	var token StoredToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("session: decode keychain token: %w", err)
	}
	if token.Expired() {
		_ = provider.Delete(keychainService, email)
		return nil, nil
	}
	return &token, nil
}

// removeToken deletes the keychain entry. A missing entry is not an error.
func removeToken(provider Keyring, email string) error {
	err := provider.Delete(keychainService, email)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("session: remove token from keychain: %w", err)
	}
	return nil
}
