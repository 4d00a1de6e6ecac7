package domain

import (
	"testing"
	"time"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
)

func fixedClock(t *testing.T) func() time.Time {
	t.Helper()
	at := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func staticID(value string) func() (string, error) {
	return func() (string, error) { return value, nil }
}

func TestNewCashierNormalizesInput(t *testing.T) {
	cashier, err := NewCashier(CreateCashierInput{
		TenantID: " acme ",
		Name:     "  Ada Lovelace ",
		Email:    " Ada@Example.COM ",
	}, fixedClock(t), staticID("cashier-1"))
	if err != nil {
		t.Fatalf("new cashier: %v", err)
	}
	if cashier.ID != "cashier-1" {
		t.Fatalf("expected id cashier-1, got %q", cashier.ID)
	}
	if cashier.TenantID != "acme" {
		t.Fatalf("expected trimmed tenant, got %q", cashier.TenantID)
	}
	if cashier.Name != "Ada Lovelace" {
		t.Fatalf("expected trimmed name, got %q", cashier.Name)
	}
	if cashier.Email != "ada@example.com" {
		t.Fatalf("expected lowercased email, got %q", cashier.Email)
	}
	if cashier.Version != 1 {
		t.Fatalf("expected version 1, got %d", cashier.Version)
	}
	if !cashier.CreatedAt.Equal(cashier.UpdatedAt) {
		t.Fatalf("expected created and updated to match, got %v and %v", cashier.CreatedAt, cashier.UpdatedAt)
	}
}

func TestNewCashierRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		input    CreateCashierInput
		wantCode apperrors.Code
	}{
		{
			name:     "empty name",
			input:    CreateCashierInput{Name: "  ", Email: "ada@example.com"},
			wantCode: apperrors.CodeCashierNameEmpty,
		},
		{
			name:     "empty email",
			input:    CreateCashierInput{Name: "Ada", Email: ""},
			wantCode: apperrors.CodeCashierEmailInvalid,
		},
		{
			name:     "email without domain",
			input:    CreateCashierInput{Name: "Ada", Email: "ada@"},
			wantCode: apperrors.CodeCashierEmailInvalid,
		},
		{
			name:     "email without tld",
			input:    CreateCashierInput{Name: "Ada", Email: "ada@example"},
			wantCode: apperrors.CodeCashierEmailInvalid,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCashier(tc.input, fixedClock(t), staticID("cashier-1"))
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperrors.IsCode(err, tc.wantCode) {
				t.Fatalf("expected code %s, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestApplyCashierUpdate(t *testing.T) {
	created := time.Date(2026, time.January, 2, 10, 0, 0, 0, time.UTC)
	cashier := Cashier{
		ID:        "cashier-1",
		TenantID:  "acme",
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
		Version:   3,
		CreatedAt: created,
		UpdatedAt: created,
	}

	updated, err := ApplyCashierUpdate(cashier, UpdateCashierInput{
		Name:  " Grace Hopper ",
		Email: "Grace@Example.com",
	}, fixedClock(t))
	if err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if updated.Name != "Grace Hopper" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}
	if updated.Email != "grace@example.com" {
		t.Fatalf("expected lowercased email, got %q", updated.Email)
	}
	if updated.Version != 3 {
		t.Fatalf("expected version untouched, got %d", updated.Version)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Fatalf("expected updated timestamp after created, got %v", updated.UpdatedAt)
	}

	if _, err := ApplyCashierUpdate(cashier, UpdateCashierInput{Name: "", Email: "ok@example.com"}, fixedClock(t)); !apperrors.IsCode(err, apperrors.CodeCashierNameEmpty) {
		t.Fatalf("expected name empty error, got %v", err)
	}
}

func TestValidateCashierEmail(t *testing.T) {
	valid := []string{"a@b.co", "first.last@sub.example.org", "tag+x@example.io"}
	for _, email := range valid {
		if err := ValidateCashierEmail(email); err != nil {
			t.Fatalf("expected %q valid, got %v", email, err)
		}
	}
	invalid := []string{"", "plain", "a b@example.com", "a@b", "@example.com"}
	for _, email := range invalid {
		if err := ValidateCashierEmail(email); err == nil {
			t.Fatalf("expected %q invalid", email)
		}
	}
}
