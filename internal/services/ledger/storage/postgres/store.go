// Package postgres provides the Postgres-backed ledger storage implementation.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/momentum-oss/momentum/internal/platform/storage/pgmigrate"
	"github.com/momentum-oss/momentum/internal/services/ledger/domain"
	"github.com/momentum-oss/momentum/internal/services/ledger/storage"
	"github.com/momentum-oss/momentum/internal/services/ledger/storage/postgres/migrations"
)

// Store persists ledger state in Postgres.
type Store struct {
	sqlDB *sql.DB
}

// Open connects to Postgres, pings the server, and applies embedded changesets.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres db: %w", err)
	}
	if _, err := pgmigrate.Apply(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// NewStore wraps an existing handle without running migrations, for tests
// that inject mocked handles.
func NewStore(sqlDB *sql.DB) *Store {
	return &Store{sqlDB: sqlDB}
}

// DB exposes the underlying handle for readiness probes.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close closes the Postgres handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// LoadAccount returns the stored account and its entries.
func (s *Store) LoadAccount(ctx context.Context, tenantID string) (domain.Account, []domain.Entry, error) {
	account := domain.Account{TenantID: tenantID}
	err := s.sqlDB.QueryRowContext(ctx, `
		SELECT outstanding_cents, paid_cents, entry_count, updated_at
		FROM ledger_accounts
		WHERE tenant_id = $1`, tenantID).
		Scan(&account.OutstandingCents, &account.PaidCents, &account.EntryCount, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return account, nil, nil
	}
	if err != nil {
		return domain.Account{}, nil, fmt.Errorf("load ledger account: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT invoice_id, amount_cents, status, updated_at
		FROM ledger_entries
		WHERE tenant_id = $1
		ORDER BY invoice_id`, tenantID)
	if err != nil {
		return domain.Account{}, nil, fmt.Errorf("load ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var entry domain.Entry
		if err := rows.Scan(&entry.InvoiceID, &entry.AmountCents, &entry.Status, &entry.UpdatedAt); err != nil {
			return domain.Account{}, nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.Account{}, nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return account, entries, nil
}

// SaveEntry upserts one entry and the account totals in one transaction.
func (s *Store) SaveEntry(ctx context.Context, tenantID string, entry domain.Entry, account domain.Account) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (tenant_id, invoice_id, amount_cents, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, invoice_id)
		DO UPDATE SET amount_cents = EXCLUDED.amount_cents,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		tenantID, entry.InvoiceID, entry.AmountCents, string(entry.Status), entry.UpdatedAt); err != nil {
		return fmt.Errorf("upsert ledger entry: %w", err)
	}

	if err := saveAccount(ctx, tx, account); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger entry: %w", err)
	}
	return nil
}

// DeleteEntry removes one entry and stores the updated totals.
func (s *Store) DeleteEntry(ctx context.Context, tenantID, invoiceID string, account domain.Account) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM ledger_entries
		WHERE tenant_id = $1 AND invoice_id = $2`, tenantID, invoiceID)
	if err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ledger entry rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if err := saveAccount(ctx, tx, account); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger delete: %w", err)
	}
	return nil
}

func saveAccount(ctx context.Context, tx *sql.Tx, account domain.Account) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_accounts (tenant_id, outstanding_cents, paid_cents, entry_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id)
		DO UPDATE SET outstanding_cents = EXCLUDED.outstanding_cents,
			paid_cents = EXCLUDED.paid_cents,
			entry_count = EXCLUDED.entry_count,
			updated_at = EXCLUDED.updated_at`,
		account.TenantID, account.OutstandingCents, account.PaidCents, account.EntryCount, account.UpdatedAt); err != nil {
		return fmt.Errorf("save ledger account: %w", err)
	}
	return nil
}
