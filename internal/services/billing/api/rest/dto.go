package rest

import (
	"net/http"
	"time"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/platform/httpserver"
	"github.com/momentum-oss/momentum/internal/services/billing/domain"
)

type cashierResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCashierResponse(cashier domain.Cashier) cashierResponse {
	return cashierResponse{
		ID:        cashier.ID,
		TenantID:  cashier.TenantID,
		Name:      cashier.Name,
		Email:     cashier.Email,
		Version:   cashier.Version,
		CreatedAt: cashier.CreatedAt,
		UpdatedAt: cashier.UpdatedAt,
	}
}

type cashierListResponse struct {
	Cashiers      []cashierResponse `json:"cashiers"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type createCashierRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type updateCashierRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Version int64  `json:"version"`
}

type invoiceResponse struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenant_id"`
	CashierID       string     `json:"cashier_id"`
	Number          string     `json:"number"`
	AmountCents     int64      `json:"amount_cents"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	DueDate         time.Time  `json:"due_date"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	PaidAmountCents int64      `json:"paid_amount_cents,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toInvoiceResponse(invoice domain.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:              invoice.ID,
		TenantID:        invoice.TenantID,
		CashierID:       invoice.CashierID,
		Number:          invoice.Number,
		AmountCents:     invoice.AmountCents,
		Currency:        invoice.Currency,
		Status:          string(invoice.Status),
		DueDate:         invoice.DueDate,
		PaidAt:          invoice.PaidAt,
		PaidAmountCents: invoice.PaidAmountCents,
		Version:         invoice.Version,
		CreatedAt:       invoice.CreatedAt,
		UpdatedAt:       invoice.UpdatedAt,
	}
}

type invoiceListResponse struct {
	Invoices      []invoiceResponse `json:"invoices"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type createInvoiceRequest struct {
	CashierID   string    `json:"cashier_id"`
	Number      string    `json:"number"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	DueDate     time.Time `json:"due_date"`
}

// invoiceActionRequest guards open and cancel; version zero means the
// current version wins.
type invoiceActionRequest struct {
	Version int64 `json:"version"`
}

type payInvoiceRequest struct {
	AmountCents int64 `json:"amount_cents"`
	Version     int64 `json:"version"`
}

type simulatePaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference"`
}

// decodeBody parses a JSON request body, tolerating an empty body for
// action routes whose fields are all optional.
func decodeBody(w http.ResponseWriter, r *http.Request, target any, optional bool) error {
	if optional && (r.Body == nil || r.ContentLength == 0) {
		return nil
	}
	if err := httpserver.DecodeJSON(w, r, target); err != nil {
		return apperrors.Wrap(apperrors.CodeRequestInvalid, "request body could not be parsed", err)
	}
	return nil
}
