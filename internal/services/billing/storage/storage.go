// Package storage defines persistence contracts for billing service state.
package storage

import (
	"context"
	"time"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/services/billing/domain"
	"github.com/momentum-oss/momentum/internal/services/billing/filter"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")
	// ErrVersionConflict indicates a write guarded by a stale version.
	ErrVersionConflict = apperrors.New(apperrors.CodeVersionConflict, "record version is stale")
	// ErrCashierEmailExists indicates a duplicate cashier email within a tenant.
	ErrCashierEmailExists = apperrors.New(apperrors.CodeCashierEmailExists, "cashier email is already registered")
	// ErrInvoiceNumberExists indicates a duplicate invoice number within a tenant.
	ErrInvoiceNumberExists = apperrors.New(apperrors.CodeInvoiceNumberExists, "invoice number is already used")
	// ErrCashierHasOpenInvoices refuses cashier deletion while unsettled invoices remain.
	ErrCashierHasOpenInvoices = apperrors.New(apperrors.CodeCashierHasOpenInvoices, "cashier still has unsettled invoices")
)

// Outbox statuses.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusLeased    = "leased"
	OutboxStatusPublished = "published"
	OutboxStatusDead      = "dead"
)

// OutboxEvent is one integration event awaiting publication. Payload holds
// the full encoded CloudEvents envelope so the relay publishes bytes as-is.
type OutboxEvent struct {
	ID             int64
	EventID        string
	Topic          string
	Subject        string
	TenantID       string
	Payload        []byte
	Status         string
	Attempts       int
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	PublishedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CashierQuery describes a filtered, paged cashier list request.
type CashierQuery struct {
	TenantID  string
	PageSize  int
	PageToken string
	Filter    filter.SQLCondition
}

// InvoiceQuery describes a filtered, paged invoice list request.
type InvoiceQuery struct {
	TenantID  string
	PageSize  int
	PageToken string
	Filter    filter.SQLCondition
}

// CashierPage is one page of cashier records.
type CashierPage struct {
	Cashiers      []domain.Cashier
	NextPageToken string
}

// InvoicePage is one page of invoice records.
type InvoicePage struct {
	Invoices      []domain.Invoice
	NextPageToken string
}

// CashierStore persists cashier records. Mutations commit their integration
// events to the outbox in the same transaction.
type CashierStore interface {
	CreateCashier(ctx context.Context, cashier domain.Cashier, events []OutboxEvent) error
	GetCashier(ctx context.Context, tenantID, id string) (domain.Cashier, error)
	ListCashiers(ctx context.Context, query CashierQuery) (CashierPage, error)
	UpdateCashier(ctx context.Context, cashier domain.Cashier, expectedVersion int64, events []OutboxEvent) (int64, error)
	DeleteCashier(ctx context.Context, tenantID, id string, events []OutboxEvent) error
}

// InvoiceStore persists invoice records with the same outbox coupling.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, invoice domain.Invoice, events []OutboxEvent) error
	GetInvoice(ctx context.Context, tenantID, id string) (domain.Invoice, error)
	ListInvoices(ctx context.Context, query InvoiceQuery) (InvoicePage, error)
	UpdateInvoiceStatus(ctx context.Context, invoice domain.Invoice, expectedVersion int64, events []OutboxEvent) (int64, error)
	ListOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]domain.Invoice, error)
}

// OutboxStore drains the transactional outbox.
type OutboxStore interface {
	AppendOutbox(ctx context.Context, events []OutboxEvent) error
	LeaseOutbox(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]OutboxEvent, error)
	AckOutbox(ctx context.Context, id int64, consumer string, publishedAt time.Time) error
	NackOutbox(ctx context.Context, id int64, consumer string, nextAttemptAt time.Time, lastError string) error
	DeadLetterOutbox(ctx context.Context, id int64, consumer string, lastError string, processedAt time.Time) error
	CountOutboxBacklog(ctx context.Context) (int64, error)
	ListDeadLetters(ctx context.Context, limit int) ([]OutboxEvent, error)
}

// Store is the combined persistence surface of the billing service.
type Store interface {
	CashierStore
	InvoiceStore
	OutboxStore
}
