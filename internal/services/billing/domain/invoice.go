package domain

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/platform/id"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	// InvoiceStatusDraft is a created invoice that has not been issued yet.
	InvoiceStatusDraft InvoiceStatus = "draft"
	// InvoiceStatusOpen is an issued invoice awaiting payment.
	InvoiceStatusOpen InvoiceStatus = "open"
	// InvoiceStatusPaid is a settled invoice. Terminal.
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusCancelled is a voided invoice. Terminal.
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	// InvoiceStatusOverdue is an open invoice past its due date.
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

var (
	// ErrInvoiceNumberEmpty indicates a missing invoice number.
	ErrInvoiceNumberEmpty = apperrors.New(apperrors.CodeInvoiceNumberEmpty, "invoice number is required")
	// ErrInvoiceCashierEmpty indicates a missing cashier reference.
	ErrInvoiceCashierEmpty = apperrors.New(apperrors.CodeInvoiceCashierEmpty, "invoice cashier id is required")
	// ErrInvoiceAmountInvalid indicates a non-positive invoice amount.
	ErrInvoiceAmountInvalid = apperrors.New(apperrors.CodeInvoiceAmountInvalid, "invoice amount must be greater than zero")
	// ErrInvoiceDueDateInvalid indicates a missing due date.
	ErrInvoiceDueDateInvalid = apperrors.New(apperrors.CodeInvoiceDueDateInvalid, "invoice due date is required")
)

// invoiceTransitions lists the allowed status moves. Paid and cancelled are
// terminal and therefore absent as source states.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:   {InvoiceStatusOpen, InvoiceStatusCancelled},
	InvoiceStatusOpen:    {InvoiceStatusPaid, InvoiceStatusCancelled, InvoiceStatusOverdue},
	InvoiceStatusOverdue: {InvoiceStatusPaid, InvoiceStatusCancelled},
}

// ParseInvoiceStatus canonicalizes invoice status labels.
func ParseInvoiceStatus(value string) (InvoiceStatus, bool) {
	switch InvoiceStatus(strings.ToLower(strings.TrimSpace(value))) {
	case InvoiceStatusDraft:
		return InvoiceStatusDraft, true
	case InvoiceStatusOpen:
		return InvoiceStatusOpen, true
	case InvoiceStatusPaid:
		return InvoiceStatusPaid, true
	case InvoiceStatusCancelled:
		return InvoiceStatusCancelled, true
	case InvoiceStatusOverdue:
		return InvoiceStatusOverdue, true
	default:
		return "", false
	}
}

// CanTransitionInvoice reports whether an invoice may move between two states.
func CanTransitionInvoice(from, to InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Invoice represents one receivable issued by a cashier.
type Invoice struct {
	ID              string
	TenantID        string
	CashierID       string
	Number          string
	AmountCents     int64
	Currency        string
	Status          InvoiceStatus
	DueDate         time.Time
	PaidAt          *time.Time
	PaidAmountCents int64
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateInvoiceInput describes the fields needed to draft an invoice.
type CreateInvoiceInput struct {
	TenantID    string
	CashierID   string
	Number      string
	AmountCents int64
	Currency    string
	DueDate     time.Time
}

// ValidateCurrency canonicalizes an ISO 4217 currency code.
func ValidateCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", apperrors.WithMetadata(apperrors.CodeInvoiceCurrencyInvalid,
			"invoice currency is not a valid ISO 4217 code",
			map[string]string{"Currency": code})
	}
	return unit.String(), nil
}

// NewInvoice drafts an invoice from normalized input.
func NewInvoice(input CreateInvoiceInput, now func() time.Time, idGenerator func() (string, error)) (Invoice, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateInvoiceInput(input)
	if err != nil {
		return Invoice{}, err
	}

	invoiceID, err := idGenerator()
	if err != nil {
		return Invoice{}, fmt.Errorf("generate invoice id: %w", err)
	}

	createdAt := now().UTC()
	return Invoice{
		ID:          invoiceID,
		TenantID:    normalized.TenantID,
		CashierID:   normalized.CashierID,
		Number:      normalized.Number,
		AmountCents: normalized.AmountCents,
		Currency:    normalized.Currency,
		Status:      InvoiceStatusDraft,
		DueDate:     normalized.DueDate.UTC(),
		Version:     1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

// NormalizeCreateInvoiceInput trims and validates invoice input.
func NormalizeCreateInvoiceInput(input CreateInvoiceInput) (CreateInvoiceInput, error) {
	input.TenantID = strings.TrimSpace(input.TenantID)
	input.CashierID = strings.TrimSpace(input.CashierID)
	if input.CashierID == "" {
		return CreateInvoiceInput{}, ErrInvoiceCashierEmpty
	}
	input.Number = strings.TrimSpace(input.Number)
	if input.Number == "" {
		return CreateInvoiceInput{}, ErrInvoiceNumberEmpty
	}
	if input.AmountCents <= 0 {
		return CreateInvoiceInput{}, ErrInvoiceAmountInvalid
	}
	normalizedCurrency, err := ValidateCurrency(input.Currency)
	if err != nil {
		return CreateInvoiceInput{}, err
	}
	input.Currency = normalizedCurrency
	if input.DueDate.IsZero() {
		return CreateInvoiceInput{}, ErrInvoiceDueDateInvalid
	}
	return input, nil
}

// TransitionInvoice moves an invoice to a new status, enforcing the lifecycle.
func TransitionInvoice(invoice Invoice, to InvoiceStatus, now func() time.Time) (Invoice, error) {
	if now == nil {
		now = time.Now
	}
	if !CanTransitionInvoice(invoice.Status, to) {
		return Invoice{}, apperrors.WithMetadata(apperrors.CodeInvoiceInvalidStatusTransition,
			"invoice status transition is not allowed",
			map[string]string{"FromStatus": string(invoice.Status), "ToStatus": string(to)})
	}
	invoice.Status = to
	invoice.UpdatedAt = now().UTC()
	return invoice, nil
}

// OpenInvoice issues a draft invoice.
func OpenInvoice(invoice Invoice, now func() time.Time) (Invoice, error) {
	return TransitionInvoice(invoice, InvoiceStatusOpen, now)
}

// CancelInvoice voids a draft, open, or overdue invoice.
func CancelInvoice(invoice Invoice, now func() time.Time) (Invoice, error) {
	return TransitionInvoice(invoice, InvoiceStatusCancelled, now)
}

// PayInvoice settles an open or overdue invoice. A zero paid amount records
// the full invoice amount.
func PayInvoice(invoice Invoice, paidAmountCents int64, now func() time.Time) (Invoice, error) {
	if paidAmountCents < 0 {
		return Invoice{}, ErrInvoiceAmountInvalid
	}
	if paidAmountCents == 0 {
		paidAmountCents = invoice.AmountCents
	}
	updated, err := TransitionInvoice(invoice, InvoiceStatusPaid, now)
	if err != nil {
		return Invoice{}, err
	}
	paidAt := updated.UpdatedAt
	updated.PaidAt = &paidAt
	updated.PaidAmountCents = paidAmountCents
	return updated, nil
}

// MarkInvoiceOverdue flags an open invoice past its due date.
func MarkInvoiceOverdue(invoice Invoice, now func() time.Time) (Invoice, error) {
	return TransitionInvoice(invoice, InvoiceStatusOverdue, now)
}
