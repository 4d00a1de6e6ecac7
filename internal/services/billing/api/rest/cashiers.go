package rest

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/momentum-oss/momentum/internal/platform/httpserver"
	"github.com/momentum-oss/momentum/internal/services/billing/app"
)

func (h *Handler) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req createCashierRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		httpserver.WriteError(w, r, err)
		return
	}

	cashier, err := h.app.CreateCashier(r.Context(), app.CreateCashierCommand{
		TenantID: httpserver.Tenant(r.Context()),
		Name:     req.Name,
		Email:    req.Email,
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, toCashierResponse(cashier))
}

func (h *Handler) handleGetCashier(w http.ResponseWriter, r *http.Request) {
	cashier, err := h.app.GetCashier(r.Context(), app.GetCashierQuery{
		TenantID:  httpserver.Tenant(r.Context()),
		CashierID: chi.URLParam(r, "id"),
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, toCashierResponse(cashier))
}

func (h *Handler) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	page, err := h.app.ListCashiers(r.Context(), app.ListCashiersQuery{
		TenantID:  httpserver.Tenant(r.Context()),
		PageSize:  queryPageSize(r),
		PageToken: r.URL.Query().Get("page_token"),
		Filter:    r.URL.Query().Get("filter"),
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}

	resp := cashierListResponse{
		Cashiers:      make([]cashierResponse, 0, len(page.Cashiers)),
		NextPageToken: page.NextPageToken,
	}
	for _, cashier := range page.Cashiers {
		resp.Cashiers = append(resp.Cashiers, toCashierResponse(cashier))
	}
	httpserver.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateCashier(w http.ResponseWriter, r *http.Request) {
	var req updateCashierRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		httpserver.WriteError(w, r, err)
		return
	}

	cashier, err := h.app.UpdateCashier(r.Context(), app.UpdateCashierCommand{
		TenantID:  httpserver.Tenant(r.Context()),
		CashierID: chi.URLParam(r, "id"),
		Name:      req.Name,
		Email:     req.Email,
		Version:   req.Version,
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, toCashierResponse(cashier))
}

func (h *Handler) handleDeleteCashier(w http.ResponseWriter, r *http.Request) {
	_, err := h.app.DeleteCashier(r.Context(), app.DeleteCashierCommand{
		TenantID:  httpserver.Tenant(r.Context()),
		CashierID: chi.URLParam(r, "id"),
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryPageSize reads page_size, leaving zero for the app-side default
// when the parameter is absent or malformed.
func queryPageSize(r *http.Request) int32 {
	raw := r.URL.Query().Get("page_size")
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0
	}
	return int32(value)
}
