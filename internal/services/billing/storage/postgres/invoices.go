package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/momentum-oss/momentum/internal/services/billing/domain"
	"github.com/momentum-oss/momentum/internal/services/billing/storage"
)

const invoiceColumns = `id, tenant_id, cashier_id, number, amount_cents, currency, status,
	due_date, paid_at, paid_amount_cents, version, created_at, updated_at`

// CreateInvoice inserts one invoice and its outbox events in one transaction.
// The referenced cashier must exist within the tenant.
func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice, events []storage.OutboxEvent) error {
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

	var cashierExists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cashiers WHERE tenant_id = $1 AND id = $2)`,
		invoice.TenantID, invoice.CashierID).Scan(&cashierExists)
	if err != nil {
		return fmt.Errorf("check cashier existence: %w", err)
	}
	if !cashierExists {
		return storage.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO invoices (id, tenant_id, cashier_id, number, amount_cents, currency, status,
	due_date, paid_at, paid_amount_cents, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`,
		invoice.ID,
		invoice.TenantID,
		invoice.CashierID,
		invoice.Number,
		invoice.AmountCents,
		invoice.Currency,
		string(invoice.Status),
		invoice.DueDate.UTC(),
		toNullTime(invoice.PaidAt),
		invoice.PaidAmountCents,
		invoice.Version,
		invoice.CreatedAt.UTC(),
		invoice.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err, "invoices_tenant_number_key") {
			return storage.ErrInvoiceNumberExists
		}
		return fmt.Errorf("create invoice: %w", err)
	}

	if err := appendOutboxTx(ctx, tx, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create invoice: %w", err)
	}
	return nil
}

// GetInvoice returns one invoice scoped to a tenant.
func (s *Store) GetInvoice(ctx context.Context, tenantID, id string) (domain.Invoice, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Invoice{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Invoice{}, fmt.Errorf("invoice id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)

	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Invoice{}, storage.ErrNotFound
		}
		return domain.Invoice{}, fmt.Errorf("get invoice: %w", err)
	}
	return invoice, nil
}

// ListInvoices returns one keyset page of invoice records.
func (s *Store) ListInvoices(ctx context.Context, query storage.InvoiceQuery) (storage.InvoicePage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.InvoicePage{}, err
	}
	if query.PageSize <= 0 {
		return storage.InvoicePage{}, fmt.Errorf("page size must be greater than zero")
	}

	where, args := buildListWhere(query.TenantID, query.Filter, strings.TrimSpace(query.PageToken))
	args = append(args, query.PageSize+1)
	sqlQuery := `
SELECT ` + invoiceColumns + `
FROM invoices
WHERE ` + where + fmt.Sprintf(`
ORDER BY id ASC
LIMIT $%d
`, len(args))

	rows, err := s.sqlDB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return storage.InvoicePage{}, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	page := storage.InvoicePage{Invoices: make([]domain.Invoice, 0, query.PageSize)}
	for rows.Next() {
		invoice, scanErr := scanInvoice(rows)
		if scanErr != nil {
			return storage.InvoicePage{}, fmt.Errorf("list invoices: %w", scanErr)
		}
		page.Invoices = append(page.Invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return storage.InvoicePage{}, fmt.Errorf("list invoices: %w", err)
	}
	if len(page.Invoices) > query.PageSize {
		page.NextPageToken = page.Invoices[query.PageSize-1].ID
		page.Invoices = page.Invoices[:query.PageSize]
	}
	return page, nil
}

// UpdateInvoiceStatus writes a status transition guarded by the expected
// version and returns the new version.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, invoice domain.Invoice, expectedVersion int64, events []storage.OutboxEvent) (int64, error) {
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
UPDATE invoices
SET status = $1, paid_at = $2, paid_amount_cents = $3, version = version + 1, updated_at = $4
WHERE tenant_id = $5 AND id = $6 AND version = $7
`,
		string(invoice.Status),
		toNullTime(invoice.PaidAt),
		invoice.PaidAmountCents,
		invoice.UpdatedAt.UTC(),
		invoice.TenantID,
		invoice.ID,
		expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("update invoice status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update invoice status rows affected: %w", err)
	}
	if affected == 0 {
		return 0, staleOrMissing(ctx, tx, "invoices", invoice.TenantID, invoice.ID)
	}

	if err := appendOutboxTx(ctx, tx, events); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit update invoice status: %w", err)
	}
	return expectedVersion + 1, nil
}

// ListOverdueCandidates returns open invoices past their due date across all
// tenants for the overdue sweeper.
func (s *Store) ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]domain.Invoice, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+invoiceColumns+`
FROM invoices
WHERE status = 'open' AND due_date <= $1
ORDER BY due_date ASC, id ASC
LIMIT $2
`, asOf.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Invoice
	for rows.Next() {
		invoice, scanErr := scanInvoice(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("list overdue candidates: %w", scanErr)
		}
		candidates = append(candidates, invoice)
	}
	return candidates, rows.Err()
}

func scanInvoice(scanner rowScanner) (domain.Invoice, error) {
	var (
		invoice domain.Invoice
		status  string
		paidAt  sql.NullTime
	)
	if err := scanner.Scan(
		&invoice.ID,
		&invoice.TenantID,
		&invoice.CashierID,
		&invoice.Number,
		&invoice.AmountCents,
		&invoice.Currency,
		&status,
		&invoice.DueDate,
		&paidAt,
		&invoice.PaidAmountCents,
		&invoice.Version,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	); err != nil {
		return domain.Invoice{}, err
	}
	invoice.Status = domain.InvoiceStatus(status)
	invoice.PaidAt = fromNullTime(paidAt)
	invoice.DueDate = invoice.DueDate.UTC()
	invoice.CreatedAt = invoice.CreatedAt.UTC()
	invoice.UpdatedAt = invoice.UpdatedAt.UTC()
	return invoice, nil
}
