// Package rest exposes per-tenant ledger state over JSON HTTP. The
// tenant rides in the URL path rather than the tenant header because
// ledger URLs address the actor directly.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/platform/httpserver"
	"github.com/momentum-oss/momentum/internal/platform/metrics"
	"github.com/momentum-oss/momentum/internal/services/ledger/actor"
	"github.com/momentum-oss/momentum/internal/services/ledger/domain"
)

// Handler serves the ledger REST API.
type Handler struct {
	actors *actor.Registry
	ready  func(ctx context.Context) error
}

// Options configures the REST handler.
type Options struct {
	Actors *actor.Registry
	// Ready reports storage health for the readiness probe. Nil means
	// always ready.
	Ready func(ctx context.Context) error
}

// NewHandler builds the REST handler.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Actors == nil {
		return nil, fmt.Errorf("rest handler requires the actor registry")
	}
	return &Handler{actors: opts.Actors, ready: opts.Ready}, nil
}

// Routes assembles the router. Health and metrics stay outside the
// tenant chain so probes never get rejected.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpserver.EchoRequestID)

	r.Get("/health/live", h.handleLive)
	r.Get("/health/ready", h.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/tenants/{tenant}", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return metrics.InstrumentHandler("ledger", next)
		})
		r.Use(requireTenant)

		r.Get("/", h.handleAccount)
		r.Route("/entries", func(r chi.Router) {
			r.Post("/", h.handleUpsertEntry)
			r.Get("/", h.handleListEntries)
			r.Get("/{invoice}", h.handleGetEntry)
			r.Delete("/{invoice}", h.handleRemoveEntry)
		})
	})

	return r
}

// requireTenant rejects malformed tenant slugs before they can reach an
// actor activation.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := chi.URLParam(r, "tenant")
		if !httpserver.ValidTenant(tenant) {
			httpserver.WriteError(w, r, apperrors.WithMetadata(apperrors.CodeTenantInvalid,
				"invalid tenant in path", map[string]string{"Tenant": tenant}))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleLive(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			httpserver.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.actors.Account(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) handleUpsertEntry(w http.ResponseWriter, r *http.Request) {
	var req upsertEntryRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		httpserver.WriteError(w, r, apperrors.Wrap(apperrors.CodeRequestInvalid,
			"request body could not be parsed", err))
		return
	}

	account, err := h.actors.UpsertEntry(r.Context(), chi.URLParam(r, "tenant"), domain.UpsertEntryInput{
		InvoiceID:   req.InvoiceID,
		AmountCents: req.AmountCents,
		Status:      req.Status,
	})
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.actors.Entries(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	resp := entryListResponse{Entries: make([]entryResponse, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, toEntryResponse(entry))
	}
	httpserver.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.actors.Entry(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "invoice"))
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	_, err := h.actors.RemoveEntry(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "invoice"))
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertEntryRequest struct {
	InvoiceID   string `json:"invoice_id"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
}

type accountResponse struct {
	TenantID         string    `json:"tenant_id"`
	OutstandingCents int64     `json:"outstanding_cents"`
	PaidCents        int64     `json:"paid_cents"`
	EntryCount       int       `json:"entry_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toAccountResponse(account domain.Account) accountResponse {
	return accountResponse{
		TenantID:         account.TenantID,
		OutstandingCents: account.OutstandingCents,
		PaidCents:        account.PaidCents,
		EntryCount:       account.EntryCount,
		UpdatedAt:        account.UpdatedAt,
	}
}

type entryResponse struct {
	InvoiceID   string    `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toEntryResponse(entry domain.Entry) entryResponse {
	return entryResponse{
		InvoiceID:   entry.InvoiceID,
		AmountCents: entry.AmountCents,
		Status:      string(entry.Status),
		UpdatedAt:   entry.UpdatedAt,
	}
}

type entryListResponse struct {
	Entries []entryResponse `json:"entries"`
}
