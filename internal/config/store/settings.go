package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// DefaultHTTPPort is the loopback port the daemon API listens on when no
// override is stored.
const DefaultHTTPPort = 9412

// LoadSettings returns key/value settings for the active instance. Optional
// keys limit the selection to specific entries.
func (s *Store) LoadSettings(ctx context.Context, keys ...string) (map[string]string, error) {
	query := `SELECT key, value FROM settings WHERE instance_name = ?`
	args := []any{s.instanceName}

	if len(keys) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(keys)), ",")
		query += fmt.Sprintf(" AND key IN (%s)", placeholders)
		for _, key := range keys {
			args = append(args, key)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("config: load settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("config: scan settings row: %w", err)
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: iterate settings rows: %w", err)
	}

	return result, nil
}

// SaveSettings upserts the provided key/value pairs.
func (s *Store) SaveSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
            INSERT INTO settings (instance_name, key, value, updated_at)
            VALUES (?, ?, ?, CURRENT_TIMESTAMP)
            ON CONFLICT(instance_name, key) DO UPDATE SET
                value = excluded.value,
                updated_at = CURRENT_TIMESTAMP
        `)
		if err != nil {
			return fmt.Errorf("config: prepare save settings: %w", err)
		}
		defer stmt.Close()

		for key, value := range values {
			if _, err := stmt.ExecContext(ctx, s.instanceName, key, value); err != nil {
				return fmt.Errorf("config: exec save setting %q: %w", key, err)
			}
		}
		return nil
	})
}

// TransportConfig groups the daemon API transport settings.
type TransportConfig struct {
	Port       int    // Loopback HTTP port
	RclonePath string // Path to the rclone binary used for transfers
}

// GetTransportConfig loads transport-related settings with defaults applied.
func (s *Store) GetTransportConfig(ctx context.Context) (TransportConfig, error) {
	settings, err := s.LoadSettings(ctx, "transport.http_port", "sync.rclone_path")
	if err != nil {
		return TransportConfig{}, err
	}

	cfg := TransportConfig{
		Port:       DefaultHTTPPort,
		RclonePath: "rclone",
	}

	if portStr := settings["transport.http_port"]; portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return TransportConfig{}, fmt.Errorf("config: parse transport.http_port: %w", err)
		}
		cfg.Port = port
	}

	if path := strings.TrimSpace(settings["sync.rclone_path"]); path != "" {
		cfg.RclonePath = path
	}

	return cfg, nil
}

// SaveTransportConfig persists the provided transport configuration.
func (s *Store) SaveTransportConfig(ctx context.Context, cfg TransportConfig) error {
	return s.SaveSettings(ctx, map[string]string{
		"transport.http_port": strconv.Itoa(cfg.Port),
		"sync.rclone_path":    cfg.RclonePath,
	})
}
