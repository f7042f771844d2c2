package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Activity actions recorded by the sync engine.
const (
	ActionSyncPersonal = "sync_personal"
	ActionSyncShared   = "sync_shared"
	ActionUpload       = "upload"
	ActionDownload     = "download"
	ActionDelete       = "delete"
	ActionConflict     = "conflict"
)

// Activity outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// DefaultActivityLimit is used when a caller requests recent activity without
// an explicit limit.
const DefaultActivityLimit = 50

// ActivityEntry is one immutable record in the append-only activity ledger.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	FilePath  string    `json:"file_path,omitempty"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
}

// AppendActivity writes one entry to the ledger and evicts the oldest rows
// beyond the retention cap. Safe for concurrent writers; the insert and the
// trim run in one transaction.
func (s *Store) AppendActivity(ctx context.Context, entry ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activity_log (id, instance_name, ts, action, file_path, status, details)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, entry.ID, s.instanceName, entry.Timestamp.UTC().Format(time.RFC3339Nano),
			entry.Action, entry.FilePath, entry.Status, nullWhenEmpty(entry.Details))
		if err != nil {
			return fmt.Errorf("config: append activity: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM activity_log
			WHERE instance_name = ? AND seq NOT IN (
				SELECT seq FROM activity_log
				WHERE instance_name = ?
				ORDER BY seq DESC
				LIMIT ?
			)
		`, s.instanceName, s.instanceName, s.activityCap)
		if err != nil {
			return fmt.Errorf("config: trim activity: %w", err)
		}
		return nil
	})
}

// RecentActivity returns up to limit entries, most recent first. A
// non-positive limit selects DefaultActivityLimit.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, action, file_path, status, details
		FROM activity_log
		WHERE instance_name = ?
		ORDER BY seq DESC
		LIMIT ?
	`, s.instanceName, limit)
	if err != nil {
		return nil, fmt.Errorf("config: load activity: %w", err)
	}
	defer rows.Close()

	result := make([]ActivityEntry, 0, limit)
	for rows.Next() {
		var (
			entry   ActivityEntry
			ts      string
			details sql.NullString
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.Action, &entry.FilePath, &entry.Status, &details); err != nil {
			return nil, fmt.Errorf("config: scan activity row: %w", err)
		}
		entry.Timestamp = parseStoredTime(ts)
		entry.Details = details.String
		result = append(result, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: iterate activity rows: %w", err)
	}
	return result, nil
}

func nullWhenEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
