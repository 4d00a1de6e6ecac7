// Package pgmigrate applies ordered, checksummed SQL changesets to a
// Postgres database. Every changeset is recorded in a changelog table so
// reruns are no-ops, and a drifted checksum on an already-applied file is
// treated as corruption rather than silently re-executed.
package pgmigrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const changelogTable = "momentum_changelog"

// advisoryLockKey serializes concurrent migrators across service replicas.
const advisoryLockKey = int64(7464_2026_0101)

// Entry reports the state of a single changeset relative to the changelog.
type Entry struct {
	Name      string
	Checksum  string
	Applied   bool
	AppliedAt time.Time
}

// Apply executes every pending changeset under migrationRoot in lexical
// order and returns how many were applied.
func Apply(ctx context.Context, sqlDB *sql.DB, migrationFS fs.FS, migrationRoot string) (int, error) {
	if sqlDB == nil {
		return 0, fmt.Errorf("sql db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	files, err := listChangesets(migrationFS, migrationRoot)
	if err != nil {
		return 0, err
	}

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", advisoryLockKey); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockKey)
	}()

	if err := ensureChangelog(ctx, conn); err != nil {
		return 0, err
	}

	applied := 0
	for _, file := range files {
		content, err := fs.ReadFile(migrationFS, file.fsPath)
		if err != nil {
			return applied, fmt.Errorf("read changeset %s: %w", file.name, err)
		}
		checksum := Checksum(content)

		recorded, err := recordedChecksum(ctx, conn, file.name)
		if err != nil {
			return applied, fmt.Errorf("check changeset %s: %w", file.name, err)
		}
		if recorded != "" {
			if recorded != checksum {
				return applied, fmt.Errorf("changeset %s checksum drift: changelog has %s, file has %s", file.name, recorded, checksum)
			}
			continue
		}

		upSQL := strings.TrimSpace(ExtractUpMigration(string(content)))
		if upSQL == "" {
			continue
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin changeset %s: %w", file.name, err)
		}
		if _, err := tx.ExecContext(ctx, upSQL); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("exec changeset %s: %w", file.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+changelogTable+" (name, checksum, applied_at) VALUES ($1, $2, $3)",
			file.name, checksum, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record changeset %s: %w", file.name, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit changeset %s: %w", file.name, err)
		}
		applied++
	}

	return applied, nil
}

// Status reports every changeset under migrationRoot against the changelog
// without modifying the database.
func Status(ctx context.Context, sqlDB *sql.DB, migrationFS fs.FS, migrationRoot string) ([]Entry, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	files, err := listChangesets(migrationFS, migrationRoot)
	if err != nil {
		return nil, err
	}

	recorded, err := changelogRows(ctx, sqlDB)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(files))
	for _, file := range files {
		content, err := fs.ReadFile(migrationFS, file.fsPath)
		if err != nil {
			return nil, fmt.Errorf("read changeset %s: %w", file.name, err)
		}
		entry := Entry{Name: file.name, Checksum: Checksum(content)}
		if row, ok := recorded[file.name]; ok {
			entry.Applied = true
			entry.AppliedAt = row.appliedAt
			if row.checksum != entry.Checksum {
				return nil, fmt.Errorf("changeset %s checksum drift: changelog has %s, file has %s", file.name, row.checksum, entry.Checksum)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Checksum returns the hex sha256 digest used to detect changeset drift.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ExtractUpMigration returns the SQL in the -- +migrate Up section.
func ExtractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}

// ExtractDownMigration returns the SQL in the -- +migrate Down section,
// or empty when the changeset declares no rollback.
func ExtractDownMigration(content string) string {
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return ""
	}
	return content[downIdx+len("-- +migrate Down"):]
}

type changesetFile struct {
	name   string
	fsPath string
}

func listChangesets(migrationFS fs.FS, migrationRoot string) ([]changesetFile, error) {
	root := strings.TrimSpace(migrationRoot)
	if root == "" {
		root = "."
	}

	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, fmt.Errorf("read changesets dir: %w", err)
	}

	var files []changesetFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		fsPath := entry.Name()
		if root != "." {
			fsPath = filepath.ToSlash(filepath.Join(root, entry.Name()))
		}
		files = append(files, changesetFile{name: entry.Name(), fsPath: fsPath})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func ensureChangelog(ctx context.Context, conn *sql.Conn) error {
	createSQL := `
CREATE TABLE IF NOT EXISTS ` + changelogTable + ` (
    name TEXT PRIMARY KEY,
    checksum TEXT NOT NULL,
    applied_at BIGINT NOT NULL
);
`
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure changelog table: %w", err)
	}
	return nil
}

func recordedChecksum(ctx context.Context, conn *sql.Conn, name string) (string, error) {
	var checksum string
	row := conn.QueryRowContext(ctx, "SELECT checksum FROM "+changelogTable+" WHERE name = $1", name)
	if err := row.Scan(&checksum); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return checksum, nil
}

type changelogRow struct {
	checksum  string
	appliedAt time.Time
}

func changelogRows(ctx context.Context, sqlDB *sql.DB) (map[string]changelogRow, error) {
	rows, err := sqlDB.QueryContext(ctx, "SELECT name, checksum, applied_at FROM "+changelogTable)
	if err != nil {
		if isMissingTableError(err) {
			return map[string]changelogRow{}, nil
		}
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	defer rows.Close()

	recorded := make(map[string]changelogRow)
	for rows.Next() {
		var name, checksum string
		var appliedAt int64
		if err := rows.Scan(&name, &checksum, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan changelog row: %w", err)
		}
		recorded[name] = changelogRow{checksum: checksum, appliedAt: time.UnixMilli(appliedAt).UTC()}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changelog: %w", err)
	}
	return recorded, nil
}

func isMissingTableError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "does not exist") || strings.Contains(value, "no such table")
}
