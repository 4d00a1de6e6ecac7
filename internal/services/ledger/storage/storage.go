// Package storage defines persistence contracts for ledger state.
package storage

import (
	"context"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/services/ledger/domain"
)

// ErrNotFound indicates a requested entry is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// Store persists ledger actor state. Entry writes carry the recomputed
// account totals so both land in one transaction.
type Store interface {
	// LoadAccount returns the stored account and its entries. A tenant
	// with no history returns a zero account and no entries.
	LoadAccount(ctx context.Context, tenantID string) (domain.Account, []domain.Entry, error)
	// SaveEntry upserts one entry together with the account totals.
	SaveEntry(ctx context.Context, tenantID string, entry domain.Entry, account domain.Account) error
	// DeleteEntry removes one entry and stores the updated totals,
	// returning ErrNotFound when the entry does not exist.
	DeleteEntry(ctx context.Context, tenantID, invoiceID string, account domain.Account) error
}
