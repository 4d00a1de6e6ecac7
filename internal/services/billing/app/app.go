// Package app composes the billing application: typed command and query
// handlers wired through the shared middleware chain, writing through the
// storage layer with integration events appended to the transactional
// outbox in the same transaction.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/momentum-oss/momentum/internal/cqrs"
	"github.com/momentum-oss/momentum/internal/platform/id"
	"github.com/momentum-oss/momentum/internal/platform/pagination"
	"github.com/momentum-oss/momentum/internal/services/billing/domain"
	"github.com/momentum-oss/momentum/internal/services/billing/storage"
)

// EventSource is the CloudEvents source URI for billing events.
const EventSource = "/momentum/billing"

var listPageSize = pagination.PageSizeConfig{Default: 50, Max: 200}

// Options configures the billing application.
type Options struct {
	Store  storage.Store
	Logger *slog.Logger
	// Clock and NewID default to the wall clock and random ids; tests
	// inject deterministic versions.
	Clock func() time.Time
	NewID func() (string, error)
	// Source overrides the CloudEvents source URI.
	Source string
	// Middlewares replaces the default logging/tracing/metrics chain.
	Middlewares []cqrs.Middleware
}

// App exposes the billing operations as dispatchable handlers. The REST
// API and the backoffice consumers go through these, never through the
// store directly.
type App struct {
	store  storage.Store
	logger *slog.Logger
	clock  func() time.Time
	newID  func() (string, error)
	source string

	CreateCashier cqrs.CommandFunc[CreateCashierCommand, domain.Cashier]
	UpdateCashier cqrs.CommandFunc[UpdateCashierCommand, domain.Cashier]
	DeleteCashier cqrs.CommandFunc[DeleteCashierCommand, struct{}]
	GetCashier    cqrs.QueryFunc[GetCashierQuery, domain.Cashier]
	ListCashiers  cqrs.QueryFunc[ListCashiersQuery, CashierPage]

	CreateInvoice cqrs.CommandFunc[CreateInvoiceCommand, domain.Invoice]
	OpenInvoice   cqrs.CommandFunc[OpenInvoiceCommand, domain.Invoice]
	CancelInvoice cqrs.CommandFunc[CancelInvoiceCommand, domain.Invoice]
	// MarkInvoicePaid settles an invoice. The payment consumer drives it
	// for PaymentReceived events; the REST API exposes it directly.
	MarkInvoicePaid cqrs.CommandFunc[MarkInvoicePaidCommand, domain.Invoice]
	// SimulatePayment emits a synthetic PaymentReceived event without
	// touching invoice state.
	SimulatePayment cqrs.CommandFunc[SimulatePaymentCommand, domain.PaymentReceived]
	GetInvoice      cqrs.QueryFunc[GetInvoiceQuery, domain.Invoice]
	ListInvoices    cqrs.QueryFunc[ListInvoicesQuery, InvoicePage]
	// SweepOverdueInvoices marks open invoices past their due date. The
	// backoffice cron drives it.
	SweepOverdueInvoices cqrs.CommandFunc[SweepOverdueInvoicesCommand, OverdueSweepResult]
}

// New builds the application and chains every handler.
func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("billing app requires a store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = id.NewID
	}
	source := opts.Source
	if source == "" {
		source = EventSource
	}

	a := &App{
		store:  opts.Store,
		logger: logger,
		clock:  clock,
		newID:  newID,
		source: source,
	}

	mws := opts.Middlewares
	if mws == nil {
		mws = []cqrs.Middleware{
			cqrs.Logging(logger),
			cqrs.Tracing(),
			cqrs.Metrics(),
		}
	}

	a.CreateCashier = cqrs.Chain("billing.CreateCashier", a.createCashier, mws...)
	a.UpdateCashier = cqrs.Chain("billing.UpdateCashier", a.updateCashier, mws...)
	a.DeleteCashier = cqrs.Chain("billing.DeleteCashier", a.deleteCashier, mws...)
	a.GetCashier = cqrs.Chain("billing.GetCashier", a.getCashier, mws...)
	a.ListCashiers = cqrs.Chain("billing.ListCashiers", a.listCashiers, mws...)

	a.CreateInvoice = cqrs.Chain("billing.CreateInvoice", a.createInvoice, mws...)
	a.OpenInvoice = cqrs.Chain("billing.OpenInvoice", a.openInvoice, mws...)
	a.CancelInvoice = cqrs.Chain("billing.CancelInvoice", a.cancelInvoice, mws...)
	a.MarkInvoicePaid = cqrs.Chain("billing.MarkInvoicePaid", a.markInvoicePaid, mws...)
	a.SimulatePayment = cqrs.Chain("billing.SimulatePayment", a.simulatePayment, mws...)
	a.GetInvoice = cqrs.Chain("billing.GetInvoice", a.getInvoice, mws...)
	a.ListInvoices = cqrs.Chain("billing.ListInvoices", a.listInvoices, mws...)
	a.SweepOverdueInvoices = cqrs.Chain("billing.SweepOverdueInvoices", a.sweepOverdueInvoices, mws...)

	return a, nil
}
