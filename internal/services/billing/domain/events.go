package domain

import (
	"time"

	"github.com/momentum-oss/momentum/internal/events"
)

// App is the topic prefix for every billing integration event.
const App = "billing"

// Integration event topics, `<app>.<aggregate>.<event>`.
var (
	TopicCashierCreated = events.Topic(App, "cashiers", "created")
	TopicCashierUpdated = events.Topic(App, "cashiers", "updated")
	TopicCashierDeleted = events.Topic(App, "cashiers", "deleted")

	TopicInvoiceCreated   = events.Topic(App, "invoices", "created")
	TopicInvoiceOpened    = events.Topic(App, "invoices", "opened")
	TopicInvoiceCancelled = events.Topic(App, "invoices", "cancelled")
	TopicInvoicePaid      = events.Topic(App, "invoices", "paid")
	TopicInvoiceOverdue   = events.Topic(App, "invoices", "overdue")

	TopicPaymentReceived = events.Topic(App, "payments", "received")
)

// CashierCreated announces a newly registered cashier.
type CashierCreated struct {
	CashierID string    `json:"cashier_id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// CashierUpdated announces changed cashier details.
type CashierUpdated struct {
	CashierID string    `json:"cashier_id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CashierDeleted announces a removed cashier.
type CashierDeleted struct {
	CashierID string    `json:"cashier_id"`
	TenantID  string    `json:"tenant_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// InvoiceCreated announces a drafted invoice.
type InvoiceCreated struct {
	InvoiceID   string    `json:"invoice_id"`
	TenantID    string    `json:"tenant_id"`
	CashierID   string    `json:"cashier_id"`
	Number      string    `json:"number"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	DueDate     time.Time `json:"due_date"`
	CreatedAt   time.Time `json:"created_at"`
}

// InvoiceOpened announces an issued invoice.
type InvoiceOpened struct {
	InvoiceID string    `json:"invoice_id"`
	TenantID  string    `json:"tenant_id"`
	Number    string    `json:"number"`
	OpenedAt  time.Time `json:"opened_at"`
}

// InvoiceCancelled announces a voided invoice.
type InvoiceCancelled struct {
	InvoiceID   string    `json:"invoice_id"`
	TenantID    string    `json:"tenant_id"`
	Number      string    `json:"number"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// InvoicePaid announces a settled invoice.
type InvoicePaid struct {
	InvoiceID       string    `json:"invoice_id"`
	TenantID        string    `json:"tenant_id"`
	Number          string    `json:"number"`
	AmountCents     int64     `json:"amount_cents"`
	PaidAmountCents int64     `json:"paid_amount_cents"`
	Currency        string    `json:"currency"`
	PaidAt          time.Time `json:"paid_at"`
}

// InvoiceOverdue announces an open invoice that passed its due date.
type InvoiceOverdue struct {
	InvoiceID string    `json:"invoice_id"`
	TenantID  string    `json:"tenant_id"`
	Number    string    `json:"number"`
	DueDate   time.Time `json:"due_date"`
	MarkedAt  time.Time `json:"marked_at"`
}

// PaymentReceived carries an incoming payment against an invoice. The
// backoffice consumer turns it into a MarkInvoicePaid command.
type PaymentReceived struct {
	PaymentID   string    `json:"payment_id"`
	InvoiceID   string    `json:"invoice_id"`
	TenantID    string    `json:"tenant_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Reference   string    `json:"reference"`
	ReceivedAt  time.Time `json:"received_at"`
}

// EventRegistry returns the registry of every billing integration event.
func EventRegistry() *events.Registry {
	registry := events.NewRegistry()
	registry.MustRegister(events.Definition{Topic: TopicCashierCreated, Payload: func() any { return &CashierCreated{} }})
	registry.MustRegister(events.Definition{Topic: TopicCashierUpdated, Payload: func() any { return &CashierUpdated{} }})
	registry.MustRegister(events.Definition{Topic: TopicCashierDeleted, Payload: func() any { return &CashierDeleted{} }})
	registry.MustRegister(events.Definition{Topic: TopicInvoiceCreated, Payload: func() any { return &InvoiceCreated{} }})
	registry.MustRegister(events.Definition{Topic: TopicInvoiceOpened, Payload: func() any { return &InvoiceOpened{} }})
	registry.MustRegister(events.Definition{Topic: TopicInvoiceCancelled, Payload: func() any { return &InvoiceCancelled{} }})
	registry.MustRegister(events.Definition{Topic: TopicInvoicePaid, Payload: func() any { return &InvoicePaid{} }})
	registry.MustRegister(events.Definition{Topic: TopicInvoiceOverdue, Payload: func() any { return &InvoiceOverdue{} }})
	registry.MustRegister(events.Definition{Topic: TopicPaymentReceived, Payload: func() any { return &PaymentReceived{} }})
	return registry
}
