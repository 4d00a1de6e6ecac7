package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/momentum-oss/momentum/internal/platform/httpserver"
	"github.com/momentum-oss/momentum/internal/services/billing/app"
)

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		httpserver.WriteError(w, r, err)
		return
	}

	invoice, err := h.app.CreateInvoice(r.Context(), app.CreateInvoiceCommand{
		TenantID:    httpserver.Tenant(r.Context()),
		CashierID:   req.CashierID,
		Number:      req.Number,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		DueDate:     req.DueDate,
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, toInvoiceResponse(invoice))
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.app.GetInvoice(r.Context(), app.GetInvoiceQuery{
		TenantID:  httpserver.Tenant(r.Context()),
		InvoiceID: chi.URLParam(r, "id"),
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	page, err := h.app.ListInvoices(r.Context(), app.ListInvoicesQuery{
		TenantID:  httpserver.Tenant(r.Context()),
		PageSize:  queryPageSize(r),
		PageToken: r.URL.Query().Get("page_token"),
		Filter:    r.URL.Query().Get("filter"),
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}

	resp := invoiceListResponse{
		Invoices:      make([]invoiceResponse, 0, len(page.Invoices)),
		NextPageToken: page.NextPageToken,
	}
	for _, invoice := range page.Invoices {
		resp.Invoices = append(resp.Invoices, toInvoiceResponse(invoice))
	}
	httpserver.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleOpenInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceActionRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		httpserver.WriteError(w, r, err)
		return
	}

	invoice, err := h.app.OpenInvoice(r.Context(), app.OpenInvoiceCommand{
		TenantID:  httpserver.Tenant(r.Context()),
		InvoiceID: chi.URLParam(r, "id"),
		Version:   req.Version,
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceActionRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		httpserver.WriteError(w, r, err)
		return
	}

	invoice, err := h.app.CancelInvoice(r.Context(), app.CancelInvoiceCommand{
		TenantID:  httpserver.Tenant(r.Context()),
		InvoiceID: chi.URLParam(r, "id"),
		Version:   req.Version,
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	var req payInvoiceRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		httpserver.WriteError(w, r, err)
		return
	}

	invoice, err := h.app.MarkInvoicePaid(r.Context(), app.MarkInvoicePaidCommand{
		TenantID:    httpserver.Tenant(r.Context()),
		InvoiceID:   chi.URLParam(r, "id"),
		AmountCents: req.AmountCents,
		Version:     req.Version,
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) handleSimulatePayment(w http.ResponseWriter, r *http.Request) {
	var req simulatePaymentRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		httpserver.WriteError(w, r, err)
		return
	}

	payment, err := h.app.SimulatePayment(r.Context(), app.SimulatePaymentCommand{
		TenantID:    httpserver.Tenant(r.Context()),
		InvoiceID:   chi.URLParam(r, "id"),
		AmountCents: req.AmountCents,
		Reference:   req.Reference,
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	// The payment is only enqueued here; settlement happens when the
	// backoffice consumer processes the event.
	httpserver.WriteJSON(w, http.StatusAccepted, payment)
}
