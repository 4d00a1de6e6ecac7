// Package sqlite provides the SQLite-backed backoffice journal.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/momentum-oss/momentum/internal/platform/storage/sqlitemigrate"
	"github.com/momentum-oss/momentum/internal/services/backoffice/storage"
	"github.com/momentum-oss/momentum/internal/services/backoffice/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed journal persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a backoffice journal store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record persists one backoffice processing record.
func (s *Store) Record(ctx context.Context, record storage.JournalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	record.EventID = strings.TrimSpace(record.EventID)
	record.Topic = strings.TrimSpace(record.Topic)
	record.Stage = strings.TrimSpace(record.Stage)
	record.Outcome = strings.TrimSpace(record.Outcome)
	record.LastError = strings.TrimSpace(record.LastError)
	if record.EventID == "" {
		return fmt.Errorf("event id is required")
	}
	if record.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if record.Stage == "" {
		return fmt.Errorf("stage is required")
	}
	if record.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO backoffice_journal (
	event_id,
	topic,
	stage,
	outcome,
	attempt,
	last_error,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		record.EventID,
		record.Topic,
		record.Stage,
		record.Outcome,
		record.Attempt,
		record.LastError,
		record.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// Recent lists newest-first journal records.
func (s *Store) Recent(ctx context.Context, limit int) ([]storage.JournalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	event_id,
	topic,
	stage,
	outcome,
	attempt,
	last_error,
	created_at
FROM backoffice_journal
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	records := make([]storage.JournalRecord, 0, limit)
	for rows.Next() {
		var record storage.JournalRecord
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.Topic,
			&record.Stage,
			&record.Outcome,
			&record.Attempt,
			&record.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return records, nil
}

var _ storage.Journal = (*Store)(nil)
