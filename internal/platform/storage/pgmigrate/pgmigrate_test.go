package pgmigrate

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestApplyRunsPendingChangesetsInOrder(t *testing.T) {
	db, mock := openMockDB(t)

	first := []byte("-- +migrate Up\nCREATE TABLE cashiers(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE cashiers;")
	second := []byte("-- +migrate Up\nCREATE TABLE invoices(id TEXT PRIMARY KEY);")
	changesets := fstest.MapFS{
		"002_invoices.sql": &fstest.MapFile{Data: second},
		"001_cashiers.sql": &fstest.MapFile{Data: first},
	}

	expectLock(mock)
	expectEnsureChangelog(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT checksum FROM momentum_changelog WHERE name = $1")).
		WithArgs("001_cashiers.sql").
		WillReturnRows(sqlmock.NewRows([]string{"checksum"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE cashiers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO momentum_changelog (name, checksum, applied_at) VALUES ($1, $2, $3)")).
		WithArgs("001_cashiers.sql", Checksum(first), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT checksum FROM momentum_changelog WHERE name = $1")).
		WithArgs("002_invoices.sql").
		WillReturnRows(sqlmock.NewRows([]string{"checksum"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE invoices").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO momentum_changelog (name, checksum, applied_at) VALUES ($1, $2, $3)")).
		WithArgs("002_invoices.sql", Checksum(second), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectUnlock(mock)

	applied, err := Apply(context.Background(), db, changesets, "")
	if err != nil {
		t.Fatalf("apply changesets: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 applied changesets, got %d", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplySkipsRecordedChangeset(t *testing.T) {
	db, mock := openMockDB(t)

	content := []byte("-- +migrate Up\nCREATE TABLE cashiers(id TEXT PRIMARY KEY);")
	changesets := fstest.MapFS{
		"001_cashiers.sql": &fstest.MapFile{Data: content},
	}

	expectLock(mock)
	expectEnsureChangelog(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT checksum FROM momentum_changelog WHERE name = $1")).
		WithArgs("001_cashiers.sql").
		WillReturnRows(sqlmock.NewRows([]string{"checksum"}).AddRow(Checksum(content)))
	expectUnlock(mock)

	applied, err := Apply(context.Background(), db, changesets, "")
	if err != nil {
		t.Fatalf("apply recorded changeset: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected no applied changesets, got %d", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyRejectsChecksumDrift(t *testing.T) {
	db, mock := openMockDB(t)

	changesets := fstest.MapFS{
		"001_cashiers.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE cashiers(id TEXT PRIMARY KEY, name TEXT);"),
		},
	}

	expectLock(mock)
	expectEnsureChangelog(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT checksum FROM momentum_changelog WHERE name = $1")).
		WithArgs("001_cashiers.sql").
		WillReturnRows(sqlmock.NewRows([]string{"checksum"}).AddRow("stale-checksum"))
	expectUnlock(mock)

	_, err := Apply(context.Background(), db, changesets, "")
	if err == nil {
		t.Fatal("expected checksum drift error")
	}
	if !strings.Contains(err.Error(), "checksum drift") {
		t.Fatalf("expected checksum drift error, got %v", err)
	}
}

func TestApplyDoesNotRecordFailedChangeset(t *testing.T) {
	db, mock := openMockDB(t)

	changesets := fstest.MapFS{
		"001_bad.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREAT TABLE broken(id TEXT);"),
		},
	}

	expectLock(mock)
	expectEnsureChangelog(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT checksum FROM momentum_changelog WHERE name = $1")).
		WithArgs("001_bad.sql").
		WillReturnRows(sqlmock.NewRows([]string{"checksum"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREAT TABLE broken").WillReturnError(errors.New(`pq: syntax error at or near "CREAT"`))
	mock.ExpectRollback()
	expectUnlock(mock)

	applied, err := Apply(context.Background(), db, changesets, "")
	if err == nil {
		t.Fatal("expected broken changeset to fail")
	}
	if applied != 0 {
		t.Fatalf("expected no applied changesets, got %d", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStatusReportsPendingWhenChangelogMissing(t *testing.T) {
	db, mock := openMockDB(t)

	changesets := fstest.MapFS{
		"001_cashiers.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE cashiers(id TEXT PRIMARY KEY);"),
		},
	}

	mock.ExpectQuery("SELECT name, checksum, applied_at FROM momentum_changelog").
		WillReturnError(errors.New(`pq: relation "momentum_changelog" does not exist`))

	entries, err := Status(context.Background(), db, changesets, "")
	if err != nil {
		t.Fatalf("status without changelog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Applied {
		t.Fatal("expected pending changeset")
	}
	if entries[0].Name != "001_cashiers.sql" {
		t.Fatalf("unexpected entry name %q", entries[0].Name)
	}
}

func TestExtractUpAndDownMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a(id TEXT);\n-- +migrate Down\nDROP TABLE a;\n"

	up := strings.TrimSpace(ExtractUpMigration(content))
	if up != "CREATE TABLE a(id TEXT);" {
		t.Fatalf("unexpected up section %q", up)
	}

	down := strings.TrimSpace(ExtractDownMigration(content))
	if down != "DROP TABLE a;" {
		t.Fatalf("unexpected down section %q", down)
	}

	if got := ExtractDownMigration("-- +migrate Up\nCREATE TABLE b(id TEXT);"); got != "" {
		t.Fatalf("expected empty down section, got %q", got)
	}
}

func TestChecksumIsStable(t *testing.T) {
	content := []byte("-- +migrate Up\nCREATE TABLE a(id TEXT);")
	if Checksum(content) != Checksum(content) {
		t.Fatal("expected deterministic checksum")
	}
	if Checksum(content) == Checksum([]byte("other")) {
		t.Fatal("expected distinct checksums for distinct content")
	}
}

func openMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("open sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB, mock
}

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(advisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectEnsureChangelog(mock sqlmock.Sqlmock) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS momentum_changelog").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectUnlock(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(advisoryLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
}
