package app

import (
	"context"
	"strings"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/platform/pagination"
	"github.com/momentum-oss/momentum/internal/services/billing/domain"
	"github.com/momentum-oss/momentum/internal/services/billing/filter"
	"github.com/momentum-oss/momentum/internal/services/billing/storage"
)

// CreateCashierCommand registers a cashier for a tenant.
type CreateCashierCommand struct {
	TenantID string
	Name     string
	Email    string
}

// Validate implements cqrs.Validator.
func (c CreateCashierCommand) Validate() error {
	return requireTenant(c.TenantID)
}

// UpdateCashierCommand changes cashier details guarded by the expected version.
type UpdateCashierCommand struct {
	TenantID  string
	CashierID string
	Name      string
	Email     string
	Version   int64
}

// Validate implements cqrs.Validator.
func (c UpdateCashierCommand) Validate() error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	if err := requireID(c.CashierID, "cashier id is required"); err != nil {
		return err
	}
	return requireVersion(c.Version)
}

// DeleteCashierCommand removes a cashier with no unsettled invoices.
type DeleteCashierCommand struct {
	TenantID  string
	CashierID string
}

// Validate implements cqrs.Validator.
func (c DeleteCashierCommand) Validate() error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}
	return requireID(c.CashierID, "cashier id is required")
}

// GetCashierQuery reads one cashier.
type GetCashierQuery struct {
	TenantID  string
	CashierID string
}

// Validate implements cqrs.Validator.
func (q GetCashierQuery) Validate() error {
	if err := requireTenant(q.TenantID); err != nil {
		return err
	}
	return requireID(q.CashierID, "cashier id is required")
}

// ListCashiersQuery reads one page of cashiers, optionally filtered.
type ListCashiersQuery struct {
	TenantID  string
	PageSize  int32
	PageToken string
	// Filter is an AIP-160 expression over name, email, and created_at.
	Filter string
}

// Validate implements cqrs.Validator.
func (q ListCashiersQuery) Validate() error {
	return requireTenant(q.TenantID)
}

// CashierPage is one page of cashiers.
type CashierPage struct {
	Cashiers      []domain.Cashier
	NextPageToken string
}

func (a *App) createCashier(ctx context.Context, cmd CreateCashierCommand) (domain.Cashier, error) {
	cashier, err := domain.NewCashier(domain.CreateCashierInput{
		TenantID: cmd.TenantID,
		Name:     cmd.Name,
		Email:    cmd.Email,
	}, a.clock, a.newID)
	if err != nil {
		return domain.Cashier{}, err
	}

	event, err := a.outboxEvent(domain.TopicCashierCreated, cashier.ID, cashier.ID, cashier.TenantID, domain.CashierCreated{
		CashierID: cashier.ID,
		TenantID:  cashier.TenantID,
		Name:      cashier.Name,
		Email:     cashier.Email,
		CreatedAt: cashier.CreatedAt,
	})
	if err != nil {
		return domain.Cashier{}, err
	}

	if err := a.store.CreateCashier(ctx, cashier, []storage.OutboxEvent{event}); err != nil {
		return domain.Cashier{}, err
	}
	return cashier, nil
}

func (a *App) updateCashier(ctx context.Context, cmd UpdateCashierCommand) (domain.Cashier, error) {
	cashier, err := a.store.GetCashier(ctx, cmd.TenantID, cmd.CashierID)
	if err != nil {
		return domain.Cashier{}, err
	}

	updated, err := domain.ApplyCashierUpdate(cashier, domain.UpdateCashierInput{
		Name:    cmd.Name,
		Email:   cmd.Email,
		Version: cmd.Version,
	}, a.clock)
	if err != nil {
		return domain.Cashier{}, err
	}

	event, err := a.outboxEvent(domain.TopicCashierUpdated, updated.ID, updated.ID, updated.TenantID, domain.CashierUpdated{
		CashierID: updated.ID,
		TenantID:  updated.TenantID,
		Name:      updated.Name,
		Email:     updated.Email,
		Version:   cmd.Version + 1,
		UpdatedAt: updated.UpdatedAt,
	})
	if err != nil {
		return domain.Cashier{}, err
	}

	version, err := a.store.UpdateCashier(ctx, updated, cmd.Version, []storage.OutboxEvent{event})
	if err != nil {
		return domain.Cashier{}, err
	}
	updated.Version = version
	return updated, nil
}

func (a *App) deleteCashier(ctx context.Context, cmd DeleteCashierCommand) (struct{}, error) {
	cashier, err := a.store.GetCashier(ctx, cmd.TenantID, cmd.CashierID)
	if err != nil {
		return struct{}{}, err
	}

	event, err := a.outboxEvent(domain.TopicCashierDeleted, cashier.ID, cashier.ID, cashier.TenantID, domain.CashierDeleted{
		CashierID: cashier.ID,
		TenantID:  cashier.TenantID,
		DeletedAt: a.clock().UTC(),
	})
	if err != nil {
		return struct{}{}, err
	}

	if err := a.store.DeleteCashier(ctx, cmd.TenantID, cmd.CashierID, []storage.OutboxEvent{event}); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, nil
}

func (a *App) getCashier(ctx context.Context, q GetCashierQuery) (domain.Cashier, error) {
	return a.store.GetCashier(ctx, q.TenantID, q.CashierID)
}

func (a *App) listCashiers(ctx context.Context, q ListCashiersQuery) (CashierPage, error) {
	cond, err := filter.ParseCashierFilter(q.Filter)
	if err != nil {
		return CashierPage{}, apperrors.WrapWithMetadata(apperrors.CodeFilterInvalid,
			"invalid cashier filter expression",
			map[string]string{"Filter": q.Filter}, err)
	}

	page, err := a.store.ListCashiers(ctx, storage.CashierQuery{
		TenantID:  q.TenantID,
		PageSize:  pagination.ClampPageSize(q.PageSize, listPageSize),
		PageToken: q.PageToken,
		Filter:    cond,
	})
	if err != nil {
		return CashierPage{}, err
	}
	return CashierPage{Cashiers: page.Cashiers, NextPageToken: page.NextPageToken}, nil
}

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return apperrors.New(apperrors.CodeTenantInvalid, "tenant is required")
	}
	return nil
}

func requireID(value, message string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.New(apperrors.CodeNotFound, message)
	}
	return nil
}

func requireVersion(version int64) error {
	if version <= 0 {
		return apperrors.New(apperrors.CodeVersionConflict, "expected version must be positive")
	}
	return nil
}
