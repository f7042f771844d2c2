package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	// MinSyncIntervalSecs and MaxSyncIntervalSecs bound the scheduler period.
	// Values submitted outside the range are clamped, not rejected.
	MinSyncIntervalSecs = 30
	MaxSyncIntervalSecs = 3600
)

// SyncConfig is the single persisted configuration record for this client.
// A populated server URL and user email mean the client is logged in; both
// empty means NotConfigured.
type SyncConfig struct {
	ServerURL         string    `json:"server_url"`
	UserEmail         string    `json:"user_email"`
	TenantID          string    `json:"tenant_id"`
	PersonalPath      string    `json:"personal_sync_path"`
	SharedPath        string    `json:"shared_sync_path"`
	SyncIntervalSecs  int       `json:"sync_interval_secs"`
	SyncSchedule      string    `json:"sync_schedule,omitempty"`
	WatchLocalChanges bool      `json:"watch_local_changes"`
	SyncOnStartup     bool      `json:"sync_on_startup"`
	MaxFileSizeBytes  int64     `json:"max_file_size_bytes"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsConfigured reports whether a user is logged in on this client.
func (c SyncConfig) IsConfigured() bool {
	return c.ServerURL != "" && c.UserEmail != ""
}

// PersonalWebDAVURL returns the WebDAV endpoint for personal files.
func (c SyncConfig) PersonalWebDAVURL() string {
	return strings.TrimRight(c.ServerURL, "/") + "/dav/personal"
}

// SharedWebDAVURL returns the WebDAV endpoint for shared files.
func (c SyncConfig) SharedWebDAVURL() string {
	return strings.TrimRight(c.ServerURL, "/") + "/dav/shared"
}

// SyncConfigEdits describes a partial configuration update. Nil fields are
// left unchanged. Identity fields (server URL, email, tenant) are not part of
// the editable surface; only login and logout may change those.
type SyncConfigEdits struct {
	PersonalPath      *string `json:"personal_sync_path,omitempty"`
	SharedPath        *string `json:"shared_sync_path,omitempty"`
	SyncIntervalSecs  *int    `json:"sync_interval_secs,omitempty"`
	SyncSchedule      *string `json:"sync_schedule,omitempty"`
	WatchLocalChanges *bool   `json:"watch_local_changes,omitempty"`
	SyncOnStartup     *bool   `json:"sync_on_startup,omitempty"`
	MaxFileSizeBytes  *int64  `json:"max_file_size_bytes,omitempty"`
}

// ClampSyncInterval clamps an interval into [MinSyncIntervalSecs,
// MaxSyncIntervalSecs]. Clamping is idempotent.
func ClampSyncInterval(secs int) int {
	if secs < MinSyncIntervalSecs {
		return MinSyncIntervalSecs
	}
	if secs > MaxSyncIntervalSecs {
		return MaxSyncIntervalSecs
	}
	return secs
}

// GetSyncConfig returns the current configuration. The row is seeded at Open,
// so a missing row only happens on a corrupted database.
func (s *Store) GetSyncConfig(ctx context.Context) (SyncConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT server_url, user_email, tenant_id, personal_path, shared_path,
		       sync_interval_secs, sync_schedule, watch_local_changes,
		       sync_on_startup, max_file_size_bytes, updated_at
		FROM sync_config WHERE instance_name = ?
	`, s.instanceName)

	var (
		cfg       SyncConfig
		watch     int
		onStartup int
		updatedAt string
	)
	err := row.Scan(&cfg.ServerURL, &cfg.UserEmail, &cfg.TenantID,
		&cfg.PersonalPath, &cfg.SharedPath, &cfg.SyncIntervalSecs,
		&cfg.SyncSchedule, &watch, &onStartup, &cfg.MaxFileSizeBytes, &updatedAt)
	if err == sql.ErrNoRows {
		return SyncConfig{}, NotFoundError{Entity: "sync config", Key: s.instanceName}
	}
	if err != nil {
		return SyncConfig{}, fmt.Errorf("config: load sync config: %w", err)
	}

	cfg.WatchLocalChanges = watch != 0
	cfg.SyncOnStartup = onStartup != 0
	cfg.UpdatedAt = parseStoredTime(updatedAt)
	return cfg, nil
}

// UpdateSyncConfig applies a partial edit atomically and returns the
// resulting full configuration. The sync interval is clamped into range; path
// edits must be non-empty. An update during an in-flight sync cycle does not
// interrupt it; the new values apply starting with the next cycle.
func (s *Store) UpdateSyncConfig(ctx context.Context, edits SyncConfigEdits) (SyncConfig, error) {
	if edits.PersonalPath != nil && strings.TrimSpace(*edits.PersonalPath) == "" {
		return SyncConfig{}, ValidationError{Field: "personal_sync_path", Reason: "must not be empty"}
	}
	if edits.SharedPath != nil && strings.TrimSpace(*edits.SharedPath) == "" {
		return SyncConfig{}, ValidationError{Field: "shared_sync_path", Reason: "must not be empty"}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		set := []string{"updated_at = ?"}
		args := []any{time.Now().UTC().Format(time.RFC3339Nano)}

		if edits.PersonalPath != nil {
			set = append(set, "personal_path = ?")
			args = append(args, strings.TrimSpace(*edits.PersonalPath))
		}
		if edits.SharedPath != nil {
			set = append(set, "shared_path = ?")
			args = append(args, strings.TrimSpace(*edits.SharedPath))
		}
		if edits.SyncIntervalSecs != nil {
			set = append(set, "sync_interval_secs = ?")
			args = append(args, ClampSyncInterval(*edits.SyncIntervalSecs))
		}
		if edits.SyncSchedule != nil {
			set = append(set, "sync_schedule = ?")
			args = append(args, strings.TrimSpace(*edits.SyncSchedule))
		}
		if edits.WatchLocalChanges != nil {
			set = append(set, "watch_local_changes = ?")
			args = append(args, boolToInt(*edits.WatchLocalChanges))
		}
		if edits.SyncOnStartup != nil {
			set = append(set, "sync_on_startup = ?")
			args = append(args, boolToInt(*edits.SyncOnStartup))
		}
		if edits.MaxFileSizeBytes != nil {
			size := *edits.MaxFileSizeBytes
			if size < 0 {
				size = 0
			}
			set = append(set, "max_file_size_bytes = ?")
			args = append(args, size)
		}

		args = append(args, s.instanceName)
		query := fmt.Sprintf("UPDATE sync_config SET %s WHERE instance_name = ?", strings.Join(set, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("config: update sync config: %w", err)
		}
		return nil
	})
	if err != nil {
		return SyncConfig{}, err
	}

	return s.GetSyncConfig(ctx)
}

// SetIdentity persists the login identity. Only the session manager calls
// this, on successful login.
func (s *Store) SetIdentity(ctx context.Context, serverURL, email, tenantID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sync_config
			SET server_url = ?, user_email = ?, tenant_id = ?, updated_at = ?
			WHERE instance_name = ?
		`, serverURL, email, tenantID, time.Now().UTC().Format(time.RFC3339Nano), s.instanceName)
		if err != nil {
			return fmt.Errorf("config: set identity: %w", err)
		}
		return nil
	})
}

// ClearIdentity removes the login identity on logout. Path, interval and
// watch settings are preserved.
func (s *Store) ClearIdentity(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sync_config
			SET server_url = '', user_email = '', tenant_id = '', updated_at = ?
			WHERE instance_name = ?
		`, time.Now().UTC().Format(time.RFC3339Nano), s.instanceName)
		if err != nil {
			return fmt.Errorf("config: clear identity: %w", err)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseStoredTime(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t
	}
	log.Printf("[Config] invalid stored timestamp %q", raw)
	return time.Time{}
}
