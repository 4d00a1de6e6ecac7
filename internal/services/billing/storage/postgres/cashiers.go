package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/momentum-oss/momentum/internal/services/billing/domain"
	"github.com/momentum-oss/momentum/internal/services/billing/filter"
	"github.com/momentum-oss/momentum/internal/services/billing/storage"
)

const cashierColumns = `id, tenant_id, name, email, version, created_at, updated_at`

// CreateCashier inserts one cashier and its outbox events in one transaction.
func (s *Store) CreateCashier(ctx context.Context, cashier domain.Cashier, events []storage.OutboxEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO cashiers (id, tenant_id, name, email, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`,
		cashier.ID,
		cashier.TenantID,
		cashier.Name,
		cashier.Email,
		cashier.Version,
		cashier.CreatedAt.UTC(),
		cashier.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err, "cashiers_tenant_email_key") {
			return storage.ErrCashierEmailExists
		}
		return fmt.Errorf("create cashier: %w", err)
	}

	if err := appendOutboxTx(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create cashier: %w", err)
	}
	return nil
}

// GetCashier returns one cashier scoped to a tenant.
func (s *Store) GetCashier(ctx context.Context, tenantID, id string) (domain.Cashier, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Cashier{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Cashier{}, fmt.Errorf("cashier id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+cashierColumns+`
FROM cashiers
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)

	cashier, err := scanCashier(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cashier{}, storage.ErrNotFound
		}
		return domain.Cashier{}, fmt.Errorf("get cashier: %w", err)
	}
	return cashier, nil
}

// ListCashiers returns one keyset page of cashier records.
func (s *Store) ListCashiers(ctx context.Context, query storage.CashierQuery) (storage.CashierPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CashierPage{}, err
	}
	if query.PageSize <= 0 {
		return storage.CashierPage{}, fmt.Errorf("page size must be greater than zero")
	}

	where, args := buildListWhere(query.TenantID, query.Filter, strings.TrimSpace(query.PageToken))
	args = append(args, query.PageSize+1)
	sqlQuery := `
SELECT ` + cashierColumns + `
FROM cashiers
WHERE ` + where + fmt.Sprintf(`
ORDER BY id ASC
LIMIT $%d
`, len(args))

	rows, err := s.sqlDB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return storage.CashierPage{}, fmt.Errorf("list cashiers: %w", err)
	}
	defer rows.Close()

	page := storage.CashierPage{Cashiers: make([]domain.Cashier, 0, query.PageSize)}
	for rows.Next() {
		cashier, scanErr := scanCashier(rows)
		if scanErr != nil {
			return storage.CashierPage{}, fmt.Errorf("list cashiers: %w", scanErr)
		}
		page.Cashiers = append(page.Cashiers, cashier)
	}
	if err := rows.Err(); err != nil {
		return storage.CashierPage{}, fmt.Errorf("list cashiers: %w", err)
	}
	if len(page.Cashiers) > query.PageSize {
		page.NextPageToken = page.Cashiers[query.PageSize-1].ID
		page.Cashiers = page.Cashiers[:query.PageSize]
	}
	return page, nil
}

// UpdateCashier writes changed fields guarded by the expected version and
// returns the new version.
func (s *Store) UpdateCashier(ctx context.Context, cashier domain.Cashier, expectedVersion int64, events []storage.OutboxEvent) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE cashiers
SET name = $1, email = $2, version = version + 1, updated_at = $3
WHERE tenant_id = $4 AND id = $5 AND version = $6
`,
		cashier.Name,
		cashier.Email,
		cashier.UpdatedAt.UTC(),
		cashier.TenantID,
		cashier.ID,
		expectedVersion,
	)
	if err != nil {
		if isUniqueViolation(err, "cashiers_tenant_email_key") {
			return 0, storage.ErrCashierEmailExists
		}
		return 0, fmt.Errorf("update cashier: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update cashier rows affected: %w", err)
	}
	if affected == 0 {
		return 0, staleOrMissing(ctx, tx, "cashiers", cashier.TenantID, cashier.ID)
	}

	if err := appendOutboxTx(ctx, tx, events); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit update cashier: %w", err)
	}
	return expectedVersion + 1, nil
}

// DeleteCashier removes one cashier unless unsettled invoices reference it.
func (s *Store) DeleteCashier(ctx context.Context, tenantID, id string, events []storage.OutboxEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("cashier id is required")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var unsettled int64
	err = tx.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM invoices
WHERE tenant_id = $1 AND cashier_id = $2 AND status IN ('draft', 'open', 'overdue')
`, tenantID, id).Scan(&unsettled)
	if err != nil {
		return fmt.Errorf("count unsettled invoices: %w", err)
	}
	if unsettled > 0 {
		return storage.ErrCashierHasOpenInvoices
	}

	result, err := tx.ExecContext(ctx, `
DELETE FROM cashiers
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete cashier: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete cashier rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if err := appendOutboxTx(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete cashier: %w", err)
	}
	return nil
}

// buildListWhere composes the tenant scope, a compiled filter, and a keyset
// token into one WHERE clause with Postgres placeholders.
func buildListWhere(tenantID string, cond filter.SQLCondition, pageToken string) (string, []any) {
	args := []any{tenantID}
	where := "tenant_id = $1"
	if !cond.Empty() {
		where += " AND (" + filter.Rebind(cond.Clause, len(args)+1) + ")"
		args = append(args, cond.Params...)
	}
	if pageToken != "" {
		args = append(args, pageToken)
		where += fmt.Sprintf(" AND id > $%d", len(args))
	}
	return where, args
}

// staleOrMissing distinguishes a version conflict from a missing row after a
// guarded update matched nothing.
func staleOrMissing(ctx context.Context, tx *sql.Tx, table, tenantID, id string) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE tenant_id = $1 AND id = $2)`,
		tenantID, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s existence: %w", table, err)
	}
	if exists {
		return storage.ErrVersionConflict
	}
	return storage.ErrNotFound
}

func scanCashier(scanner rowScanner) (domain.Cashier, error) {
	var cashier domain.Cashier
	if err := scanner.Scan(
		&cashier.ID,
		&cashier.TenantID,
		&cashier.Name,
		&cashier.Email,
		&cashier.Version,
		&cashier.CreatedAt,
		&cashier.UpdatedAt,
	); err != nil {
		return domain.Cashier{}, err
	}
	cashier.CreatedAt = cashier.CreatedAt.UTC()
	cashier.UpdatedAt = cashier.UpdatedAt.UTC()
	return cashier, nil
}
