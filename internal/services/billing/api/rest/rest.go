// Package rest exposes the billing application over JSON HTTP: cashier
// and invoice CRUD, invoice lifecycle actions, and the health and
// metrics endpoints every Momentum service serves.
package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/momentum-oss/momentum/internal/platform/httpserver"
	"github.com/momentum-oss/momentum/internal/platform/metrics"
	"github.com/momentum-oss/momentum/internal/services/billing/app"
)

// Handler serves the billing REST API.
type Handler struct {
	app     *app.App
	ready   func(ctx context.Context) error
	auth    *httpserver.Authenticator
	limiter *httpserver.RateLimiter
}

// Options configures the REST handler.
type Options struct {
	App *app.App
	// Ready reports storage health for the readiness probe. Nil means
	// always ready.
	Ready func(ctx context.Context) error
	// Auth guards mutating routes; nil disables authentication.
	Auth *httpserver.Authenticator
	// RateLimiter throttles per-client traffic; nil disables limiting.
	RateLimiter *httpserver.RateLimiter
}

// NewHandler builds the REST handler.
func NewHandler(opts Options) (*Handler, error) {
	if opts.App == nil {
		return nil, fmt.Errorf("rest handler requires the billing app")
	}
	return &Handler{
		app:     opts.App,
		ready:   opts.Ready,
		auth:    opts.Auth,
		limiter: opts.RateLimiter,
	}, nil
}

// Routes assembles the router. Health and metrics stay outside the
// tenant, auth, and throttling chain so probes never get rejected.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpserver.EchoRequestID)

	r.Get("/health/live", h.handleLive)
	r.Get("/health/ready", h.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return metrics.InstrumentHandler("billing", next)
		})
		r.Use(httpserver.TenantMiddleware)
		r.Use(h.auth.Middleware)
		r.Use(h.limiter.Middleware)

		r.Route("/cashiers", func(r chi.Router) {
			r.Post("/", h.handleCreateCashier)
			r.Get("/", h.handleListCashiers)
			r.Get("/{id}", h.handleGetCashier)
			r.Put("/{id}", h.handleUpdateCashier)
			r.Delete("/{id}", h.handleDeleteCashier)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.handleCreateInvoice)
			r.Get("/", h.handleListInvoices)
			r.Get("/{id}", h.handleGetInvoice)
			r.Post("/{id}/open", h.handleOpenInvoice)
			r.Post("/{id}/cancel", h.handleCancelInvoice)
			r.Post("/{id}/pay", h.handlePayInvoice)
			r.Post("/{id}/simulate-payment", h.handleSimulatePayment)
		})
	})

	return r
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
