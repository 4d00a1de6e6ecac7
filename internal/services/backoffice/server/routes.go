package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/momentum-oss/momentum/internal/platform/httpserver"
	"github.com/momentum-oss/momentum/internal/platform/metrics"
	backofficestorage "github.com/momentum-oss/momentum/internal/services/backoffice/storage"
	billingstorage "github.com/momentum-oss/momentum/internal/services/billing/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// routerOptions wires the ops API dependencies.
type routerOptions struct {
	Journal backofficestorage.Journal
	Outbox  billingstorage.OutboxStore
	// Ready reports storage health for the readiness probe. Nil means
	// always ready.
	Ready func(ctx context.Context) error
	// EventTail serves the WebSocket feed; nil disables the route.
	EventTail http.Handler
}

// newRouter assembles the ops surface: health and metrics outside the
// instrumented chain, the WebSocket event tail, and read-only journal
// and dead-letter inspection under /v1.
func newRouter(opts routerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpserver.EchoRequestID)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		httpserver.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(req.Context()); err != nil {
				httpserver.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"reason": err.Error(),
				})
				return
			}
		}
		httpserver.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if opts.EventTail != nil {
		r.Method(http.MethodGet, "/ws/events", opts.EventTail)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return metrics.InstrumentHandler("backoffice", next)
		})

		r.Get("/journal", handleJournal(opts.Journal))
		r.Get("/outbox/dead-letters", handleDeadLetters(opts.Outbox))
	})

	return r
}

type journalRecordResponse struct {
	EventID   string    `json:"event_id"`
	Topic     string    `json:"topic"`
	Stage     string    `json:"stage"`
	Outcome   string    `json:"outcome"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func handleJournal(journal backofficestorage.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := journal.Recent(r.Context(), queryLimit(r))
		if err != nil {
			httpserver.WriteError(w, r, err)
			return
		}
		out := make([]journalRecordResponse, 0, len(records))
		for _, record := range records {
			out = append(out, journalRecordResponse{
				EventID:   record.EventID,
				Topic:     record.Topic,
				Stage:     record.Stage,
				Outcome:   record.Outcome,
				Attempt:   record.Attempt,
				LastError: record.LastError,
				CreatedAt: record.CreatedAt,
			})
		}
		httpserver.WriteJSON(w, http.StatusOK, map[string]any{"records": out})
	}
}

type deadLetterResponse struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`
	Topic     string    `json:"topic"`
	Subject   string    `json:"subject,omitempty"`
	TenantID  string    `json:"tenant_id"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func handleDeadLetters(outbox billingstorage.OutboxStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := outbox.ListDeadLetters(r.Context(), queryLimit(r))
		if err != nil {
			httpserver.WriteError(w, r, err)
			return
		}
		out := make([]deadLetterResponse, 0, len(events))
		for _, event := range events {
			out = append(out, deadLetterResponse{
				ID:        event.ID,
				EventID:   event.EventID,
				Topic:     event.Topic,
				Subject:   event.Subject,
				TenantID:  event.TenantID,
				Attempts:  event.Attempts,
				LastError: event.LastError,
				CreatedAt: event.CreatedAt,
			})
		}
		httpserver.WriteJSON(w, http.StatusOK, map[string]any{"dead_letters": out})
	}
}

// queryLimit reads limit, falling back to the default for absent or
// malformed values and capping runaway requests.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return defaultListLimit
	}
	if value > maxListLimit {
		return maxListLimit
	}
	return value
}
