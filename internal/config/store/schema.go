package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/ReadyNextOs/ReadyNextOsDrive/internal/config"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sync_config (
		instance_name TEXT PRIMARY KEY,
		server_url TEXT NOT NULL DEFAULT '',
		user_email TEXT NOT NULL DEFAULT '',
		tenant_id TEXT NOT NULL DEFAULT '',
		personal_path TEXT NOT NULL,
		shared_path TEXT NOT NULL,
		sync_interval_secs INTEGER NOT NULL DEFAULT 300,
		sync_schedule TEXT NOT NULL DEFAULT '',
		watch_local_changes INTEGER NOT NULL DEFAULT 1,
		sync_on_startup INTEGER NOT NULL DEFAULT 1,
		max_file_size_bytes INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS activity_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		instance_name TEXT NOT NULL,
		ts TEXT NOT NULL,
		action TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		details TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_log_instance_seq
		ON activity_log (instance_name, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS settings (
		instance_name TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (instance_name, key)
	)`,
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout.Milliseconds())),
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("config: apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("config: begin schema transaction: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("config: apply schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("config: commit schema: %w", err)
	}
	return nil
}

// seedDefaults inserts the default sync_config row for the instance if none
// exists yet. A fresh row carries empty server URL and user email, which
// callers interpret as NotConfigured.
func seedDefaults(ctx context.Context, db *sql.DB, instanceName string) error {
	base := config.DefaultSyncBase()
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_config (instance_name, personal_path, shared_path)
		VALUES (?, ?, ?)
		ON CONFLICT(instance_name) DO NOTHING
	`, instanceName, filepath.Join(base, "Personal"), filepath.Join(base, "Shared"))
	if err != nil {
		return fmt.Errorf("config: seed sync_config defaults: %w", err)
	}
	return nil
}
