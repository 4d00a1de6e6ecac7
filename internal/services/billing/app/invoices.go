package app

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/platform/pagination"
	"github.com/momentum-oss/momentum/internal/services/billing/domain"
	"github.com/momentum-oss/momentum/internal/services/billing/filter"
	"github.com/momentum-oss/momentum/internal/services/billing/storage"
)

// defaultSweepLimit bounds one overdue sweep pass.
const defaultSweepLimit = 100

// CreateInvoiceCommand drafts an invoice for a cashier.
type CreateInvoiceCommand struct {
	TenantID    string
	CashierID   string
	Number      string
	AmountCents int64
	Currency    string
	DueDate     time.Time
}

// Validate implements cqrs.Validator.
func (c CreateInvoiceCommand) Validate() error {
	return requireTenant(c.TenantID)
}

// OpenInvoiceCommand issues a draft invoice. Version zero skips the
// optimistic guard and writes against the current version.
type OpenInvoiceCommand struct {
	TenantID  string
	InvoiceID string
	Version   int64
}

// Validate implements cqrs.Validator.
func (c OpenInvoiceCommand) Validate() error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	return requireID(c.InvoiceID, "invoice id is required")
}

// CancelInvoiceCommand voids a draft, open, or overdue invoice.
type CancelInvoiceCommand struct {
	TenantID  string
	InvoiceID string
	Version   int64
}

// Validate implements cqrs.Validator.
func (c CancelInvoiceCommand) Validate() error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	return requireID(c.InvoiceID, "invoice id is required")
}

// MarkInvoicePaidCommand settles an open or overdue invoice.
// AmountCents zero records a payment of the full invoice amount.
type MarkInvoicePaidCommand struct {
	TenantID    string
	InvoiceID   string
	AmountCents int64
	Version     int64
}

// Validate implements cqrs.Validator.
func (c MarkInvoicePaidCommand) Validate() error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	return requireID(c.InvoiceID, "invoice id is required")
}

// SimulatePaymentCommand emits a synthetic PaymentReceived event for an
// invoice. Invoice state is untouched; the payment consumer settles the
// invoice when the event comes back around.
type SimulatePaymentCommand struct {
	TenantID    string
	InvoiceID   string
	AmountCents int64
	Reference   string
}

// Validate implements cqrs.Validator.
func (c SimulatePaymentCommand) Validate() error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	return requireID(c.InvoiceID, "invoice id is required")
}

// GetInvoiceQuery reads one invoice.
type GetInvoiceQuery struct {
	TenantID  string
	InvoiceID string
}

// Validate implements cqrs.Validator.
func (q GetInvoiceQuery) Validate() error {
	if err := requireTenant(q.TenantID); err != nil {
		return err
	}
	return requireID(q.InvoiceID, "invoice id is required")
}

// ListInvoicesQuery reads one page of invoices, optionally filtered.
type ListInvoicesQuery struct {
	TenantID  string
	PageSize  int32
	PageToken string
	// Filter is an AIP-160 expression over cashier_id, number, status,
	// currency, amount_cents, due_date, and created_at.
	Filter string
}

// Validate implements cqrs.Validator.
func (q ListInvoicesQuery) Validate() error {
	return requireTenant(q.TenantID)
}

// InvoicePage is one page of invoices.
type InvoicePage struct {
	Invoices      []domain.Invoice
	NextPageToken string
}

// SweepOverdueInvoicesCommand marks open invoices past their due date.
// AsOf zero sweeps against the current clock; Limit zero applies the
// default batch bound.
type SweepOverdueInvoicesCommand struct {
	AsOf  time.Time
	Limit int
}

// OverdueSweepResult reports one sweep pass. Skipped counts invoices
// settled or cancelled concurrently between listing and marking.
type OverdueSweepResult struct {
	Marked  int
	Skipped int
}

func (a *App) createInvoice(ctx context.Context, cmd CreateInvoiceCommand) (domain.Invoice, error) {
	invoice, err := domain.NewInvoice(domain.CreateInvoiceInput{
		TenantID:    cmd.TenantID,
		CashierID:   cmd.CashierID,
		Number:      cmd.Number,
		AmountCents: cmd.AmountCents,
		Currency:    cmd.Currency,
		DueDate:     cmd.DueDate,
	}, a.clock, a.newID)
	if err != nil {
		return domain.Invoice{}, err
	}

	event, err := a.outboxEvent(domain.TopicInvoiceCreated, invoice.ID, invoice.ID, invoice.TenantID, domain.InvoiceCreated{
		InvoiceID:   invoice.ID,
		TenantID:    invoice.TenantID,
		CashierID:   invoice.CashierID,
		Number:      invoice.Number,
		AmountCents: invoice.AmountCents,
		Currency:    invoice.Currency,
		Status:      string(invoice.Status),
		DueDate:     invoice.DueDate,
		CreatedAt:   invoice.CreatedAt,
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	if err := a.store.CreateInvoice(ctx, invoice, []storage.OutboxEvent{event}); err != nil {
		return domain.Invoice{}, err
	}
	return invoice, nil
}

func (a *App) openInvoice(ctx context.Context, cmd OpenInvoiceCommand) (domain.Invoice, error) {
	invoice, err := a.store.GetInvoice(ctx, cmd.TenantID, cmd.InvoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}

	opened, err := domain.OpenInvoice(invoice, a.clock)
	if err != nil {
		return domain.Invoice{}, err
	}

	event, err := a.outboxEvent(domain.TopicInvoiceOpened, opened.ID, opened.ID, opened.TenantID, domain.InvoiceOpened{
		InvoiceID: opened.ID,
		TenantID:  opened.TenantID,
		Number:    opened.Number,
		OpenedAt:  opened.UpdatedAt,
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return a.persistTransition(ctx, opened, expectedVersion(cmd.Version, invoice.Version), event)
}

func (a *App) cancelInvoice(ctx context.Context, cmd CancelInvoiceCommand) (domain.Invoice, error) {
	invoice, err := a.store.GetInvoice(ctx, cmd.TenantID, cmd.InvoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}

	cancelled, err := domain.CancelInvoice(invoice, a.clock)
	if err != nil {
		return domain.Invoice{}, err
	}

	event, err := a.outboxEvent(domain.TopicInvoiceCancelled, cancelled.ID, cancelled.ID, cancelled.TenantID, domain.InvoiceCancelled{
		InvoiceID:   cancelled.ID,
		TenantID:    cancelled.TenantID,
		Number:      cancelled.Number,
		CancelledAt: cancelled.UpdatedAt,
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return a.persistTransition(ctx, cancelled, expectedVersion(cmd.Version, invoice.Version), event)
}

func (a *App) markInvoicePaid(ctx context.Context, cmd MarkInvoicePaidCommand) (domain.Invoice, error) {
	invoice, err := a.store.GetInvoice(ctx, cmd.TenantID, cmd.InvoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}

	paid, err := domain.PayInvoice(invoice, cmd.AmountCents, a.clock)
	if err != nil {
		return domain.Invoice{}, err
	}

	event, err := a.outboxEvent(domain.TopicInvoicePaid, paid.ID, paid.ID, paid.TenantID, domain.InvoicePaid{
		InvoiceID:       paid.ID,
		TenantID:        paid.TenantID,
		Number:          paid.Number,
		AmountCents:     paid.AmountCents,
		PaidAmountCents: paid.PaidAmountCents,
		Currency:        paid.Currency,
		PaidAt:          *paid.PaidAt,
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return a.persistTransition(ctx, paid, expectedVersion(cmd.Version, invoice.Version), event)
}

func (a *App) simulatePayment(ctx context.Context, cmd SimulatePaymentCommand) (domain.PaymentReceived, error) {
	invoice, err := a.store.GetInvoice(ctx, cmd.TenantID, cmd.InvoiceID)
	if err != nil {
		return domain.PaymentReceived{}, err
	}

	paymentID, err := a.newID()
	if err != nil {
		return domain.PaymentReceived{}, err
	}

	amount := cmd.AmountCents
	if amount <= 0 {
		amount = invoice.AmountCents
	}
	reference := strings.TrimSpace(cmd.Reference)
	if reference == "" {
		reference = "simulated"
	}

	payment := domain.PaymentReceived{
		PaymentID:   paymentID,
		InvoiceID:   invoice.ID,
		TenantID:    invoice.TenantID,
		AmountCents: amount,
		Currency:    invoice.Currency,
		Reference:   reference,
		ReceivedAt:  a.clock().UTC(),
	}

	// Partitioned by invoice so the payment lands after the invoice's own
	// lifecycle events.
	event, err := a.outboxEvent(domain.TopicPaymentReceived, paymentID, invoice.ID, invoice.TenantID, payment)
	if err != nil {
		return domain.PaymentReceived{}, err
	}

	if err := a.store.AppendOutbox(ctx, []storage.OutboxEvent{event}); err != nil {
		return domain.PaymentReceived{}, err
	}
	return payment, nil
}

func (a *App) getInvoice(ctx context.Context, q GetInvoiceQuery) (domain.Invoice, error) {
	return a.store.GetInvoice(ctx, q.TenantID, q.InvoiceID)
}

func (a *App) listInvoices(ctx context.Context, q ListInvoicesQuery) (InvoicePage, error) {
	cond, err := filter.ParseInvoiceFilter(q.Filter)
	if err != nil {
		return InvoicePage{}, apperrors.WrapWithMetadata(apperrors.CodeFilterInvalid,
			"invalid invoice filter expression",
			map[string]string{"Filter": q.Filter}, err)
	}

	page, err := a.store.ListInvoices(ctx, storage.InvoiceQuery{
		TenantID:  q.TenantID,
		PageSize:  pagination.ClampPageSize(q.PageSize, listPageSize),
		PageToken: q.PageToken,
		Filter:    cond,
	})
	if err != nil {
		return InvoicePage{}, err
	}
	return InvoicePage{Invoices: page.Invoices, NextPageToken: page.NextPageToken}, nil
}

func (a *App) sweepOverdueInvoices(ctx context.Context, cmd SweepOverdueInvoicesCommand) (OverdueSweepResult, error) {
	asOf := cmd.AsOf
	if asOf.IsZero() {
		asOf = a.clock().UTC()
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}

	candidates, err := a.store.ListOverdueCandidates(ctx, asOf, limit)
	if err != nil {
		return OverdueSweepResult{}, err
	}

	var result OverdueSweepResult
	for _, invoice := range candidates {
		overdue, err := domain.MarkInvoiceOverdue(invoice, a.clock)
		if err != nil {
			result.Skipped++
			continue
		}

		event, err := a.outboxEvent(domain.TopicInvoiceOverdue, overdue.ID, overdue.ID, overdue.TenantID, domain.InvoiceOverdue{
			InvoiceID: overdue.ID,
			TenantID:  overdue.TenantID,
			Number:    overdue.Number,
			DueDate:   overdue.DueDate,
			MarkedAt:  overdue.UpdatedAt,
		})
		if err != nil {
			return result, err
		}

		if _, err := a.store.UpdateInvoiceStatus(ctx, overdue, invoice.Version, []storage.OutboxEvent{event}); err != nil {
			// Settled or cancelled between listing and marking.
			if apperrors.IsCode(err, apperrors.CodeVersionConflict) || apperrors.IsCode(err, apperrors.CodeNotFound) {
				a.logger.Debug("overdue sweep skipped invoice",
					"invoice_id", invoice.ID, "tenant", invoice.TenantID, "error", err)
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Marked++
	}
	return result, nil
}

func (a *App) persistTransition(ctx context.Context, invoice domain.Invoice, expected int64, event storage.OutboxEvent) (domain.Invoice, error) {
	version, err := a.store.UpdateInvoiceStatus(ctx, invoice, expected, []storage.OutboxEvent{event})
	if err != nil {
		return domain.Invoice{}, err
	}
	invoice.Version = version
	return invoice, nil
}

func expectedVersion(requested, current int64) int64 {
	if requested > 0 {
		return requested
	}
	return current
}
