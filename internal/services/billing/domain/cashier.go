package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/platform/id"
)

var (
	// ErrCashierNameEmpty indicates a missing cashier name.
	ErrCashierNameEmpty = apperrors.New(apperrors.CodeCashierNameEmpty, "cashier name is required")
	// ErrCashierEmailInvalid indicates a malformed cashier email address.
	ErrCashierEmailInvalid = apperrors.New(apperrors.CodeCashierEmailInvalid, "cashier email is not a valid address")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Cashier represents one employee who issues and settles invoices for a tenant.
type Cashier struct {
	ID        string
	TenantID  string
	Name      string
	Email     string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateCashierInput describes the fields needed to register a cashier.
type CreateCashierInput struct {
	TenantID string
	Name     string
	Email    string
}

// UpdateCashierInput describes a cashier update guarded by an expected version.
type UpdateCashierInput struct {
	Name    string
	Email   string
	Version int64
}

// ValidateCashierEmail enforces the canonical cashier email shape shared by
// the REST API and the storage uniqueness constraint.
func ValidateCashierEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return apperrors.WithMetadata(apperrors.CodeCashierEmailInvalid,
			"cashier email is not a valid address",
			map[string]string{"Email": email})
	}
	return nil
}

// NewCashier creates a cashier record from normalized input.
func NewCashier(input CreateCashierInput, now func() time.Time, idGenerator func() (string, error)) (Cashier, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateCashierInput(input)
	if err != nil {
		return Cashier{}, err
	}

	cashierID, err := idGenerator()
	if err != nil {
		return Cashier{}, fmt.Errorf("generate cashier id: %w", err)
	}

	createdAt := now().UTC()
	return Cashier{
		ID:        cashierID,
		TenantID:  normalized.TenantID,
		Name:      normalized.Name,
		Email:     normalized.Email,
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// NormalizeCreateCashierInput trims and lowercases input before validation.
func NormalizeCreateCashierInput(input CreateCashierInput) (CreateCashierInput, error) {
	input.TenantID = strings.TrimSpace(input.TenantID)
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return CreateCashierInput{}, ErrCashierNameEmpty
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := ValidateCashierEmail(input.Email); err != nil {
		return CreateCashierInput{}, err
	}
	return input, nil
}

// ApplyCashierUpdate returns the cashier with updated fields. The caller
// persists it with an expected-version guard; Version here stays untouched.
func ApplyCashierUpdate(cashier Cashier, input UpdateCashierInput, now func() time.Time) (Cashier, error) {
	if now == nil {
		now = time.Now
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Cashier{}, ErrCashierNameEmpty
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := ValidateCashierEmail(email); err != nil {
		return Cashier{}, err
	}

	cashier.Name = name
	cashier.Email = email
	cashier.UpdatedAt = now().UTC()
	return cashier, nil
}
