// Package bootstrap stores the daemon's loopback address so CLI clients
// can find it without reading the config database directly.
package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config"
)

// Config holds the connection details a client needs to reach the daemon.
type Config struct {
	BaseURL   string    `json:"base_url"`
	PID       int       `json:"pid,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Path returns the absolute filesystem location of the bootstrap file.
func Path() (string, error) {
	return resolvePath()
}

func resolvePath() (string, error) {
	home := config.GetDriveHome()
	if home == "" {
		return "", fmt.Errorf("bootstrap: resolve home directory")
	}
	return filepath.Join(home, "bootstrap.json"), nil
}

// Load returns the stored bootstrap configuration. If the file does not
// exist, (nil, nil) is returned.
func Load() (*Config, error) {
	p, err := resolvePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("bootstrap: read file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: decode file: %w", err)
	}
	return &cfg, nil
}

// Save persists the given bootstrap configuration to disk, creating
// intermediate directories as needed.
func Save(cfg *Config) error {
	if cfg == nil {
		return errors.New("bootstrap: config is nil")
	}

	p, err := resolvePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("bootstrap: create directory: %w", err)
	}

	cfg.UpdatedAt = time.Now().UTC()

	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("bootstrap: encode config: %w", err)
	}
	if err := os.WriteFile(p, encoded, 0o600); err != nil {
		return fmt.Errorf("bootstrap: write file: %w", err)
	}
	return nil
}

// Remove deletes the bootstrap configuration. A missing file is not an
// error.
func Remove() error {
	p, err := resolvePath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("bootstrap: remove file: %w", err)
	}
	return nil
}
