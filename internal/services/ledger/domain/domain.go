// Package domain defines the ledger's per-tenant balance model: one
// entry per invoice plus running outstanding and paid totals.
package domain

import (
	"strings"
	"time"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
)

// EntryStatus is the settlement state of a ledger entry.
type EntryStatus string

const (
	// EntryStatusOutstanding is an unsettled receivable.
	EntryStatusOutstanding EntryStatus = "outstanding"
	// EntryStatusOverdue is an unsettled receivable past its due date.
	// It still counts toward the outstanding total.
	EntryStatusOverdue EntryStatus = "overdue"
	// EntryStatusPaid is a settled receivable.
	EntryStatusPaid EntryStatus = "paid"
	// EntryStatusCancelled is a voided receivable, excluded from totals.
	EntryStatusCancelled EntryStatus = "cancelled"
)

var (
	// ErrEntryInvoiceEmpty indicates a missing invoice reference.
	ErrEntryInvoiceEmpty = apperrors.New(apperrors.CodeLedgerEntryInvalid, "ledger entry invoice id is required")
	// ErrEntryAmountInvalid indicates a negative entry amount.
	ErrEntryAmountInvalid = apperrors.New(apperrors.CodeLedgerEntryInvalid, "ledger entry amount must not be negative")
	// ErrEntryStatusInvalid indicates an unknown entry status label.
	ErrEntryStatusInvalid = apperrors.New(apperrors.CodeLedgerEntryInvalid, "ledger entry status is not recognized")
)

// Final reports whether the status ends the entry's lifecycle. Final
// entries only leave their state through an explicit upsert.
func (s EntryStatus) Final() bool {
	return s == EntryStatusPaid || s == EntryStatusCancelled
}

// ParseEntryStatus canonicalizes entry status labels.
func ParseEntryStatus(value string) (EntryStatus, bool) {
	switch EntryStatus(strings.ToLower(strings.TrimSpace(value))) {
	case EntryStatusOutstanding:
		return EntryStatusOutstanding, true
	case EntryStatusOverdue:
		return EntryStatusOverdue, true
	case EntryStatusPaid:
		return EntryStatusPaid, true
	case EntryStatusCancelled:
		return EntryStatusCancelled, true
	default:
		return "", false
	}
}

// Entry is one invoice's position in a tenant ledger.
type Entry struct {
	InvoiceID   string
	AmountCents int64
	Status      EntryStatus
	UpdatedAt   time.Time
}

// Contribution returns how the entry affects the running totals.
func (e Entry) Contribution() (outstandingCents, paidCents int64) {
	switch e.Status {
	case EntryStatusOutstanding, EntryStatusOverdue:
		return e.AmountCents, 0
	case EntryStatusPaid:
		return 0, e.AmountCents
	default:
		return 0, 0
	}
}

// UpsertEntryInput describes the fields of an entry write.
type UpsertEntryInput struct {
	InvoiceID   string
	AmountCents int64
	// Status is the settlement state label; empty means outstanding.
	Status string
}

// NewEntry validates and normalizes an entry write.
func NewEntry(input UpsertEntryInput, now func() time.Time) (Entry, error) {
	if now == nil {
		now = time.Now
	}
	invoiceID := strings.TrimSpace(input.InvoiceID)
	if invoiceID == "" {
		return Entry{}, ErrEntryInvoiceEmpty
	}
	if input.AmountCents < 0 {
		return Entry{}, ErrEntryAmountInvalid
	}
	status := EntryStatusOutstanding
	if strings.TrimSpace(input.Status) != "" {
		parsed, ok := ParseEntryStatus(input.Status)
		if !ok {
			return Entry{}, apperrors.WithMetadata(apperrors.CodeLedgerEntryInvalid,
				"ledger entry status is not recognized",
				map[string]string{"Status": input.Status})
		}
		status = parsed
	}
	return Entry{
		InvoiceID:   invoiceID,
		AmountCents: input.AmountCents,
		Status:      status,
		UpdatedAt:   now().UTC(),
	}, nil
}

// Account is the per-tenant balance view the ledger serves.
type Account struct {
	TenantID         string
	OutstandingCents int64
	PaidCents        int64
	EntryCount       int
	UpdatedAt        time.Time
}

// Apply adds an entry's contribution to the account totals.
func (a Account) Apply(e Entry) Account {
	outstanding, paid := e.Contribution()
	a.OutstandingCents += outstanding
	a.PaidCents += paid
	return a
}

// Retract removes an entry's contribution from the account totals.
func (a Account) Retract(e Entry) Account {
	outstanding, paid := e.Contribution()
	a.OutstandingCents -= outstanding
	a.PaidCents -= paid
	return a
}
