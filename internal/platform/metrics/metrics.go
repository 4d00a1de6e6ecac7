// Package metrics exposes the Prometheus collectors shared by the
// Momentum services and the HTTP instrumentation that feeds them.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "momentum",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "momentum",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"service", "method", "path"},
	)

	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox rows published to the broker.",
		},
		[]string{"topic"},
	)

	outboxFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "outbox",
			Name:      "failures_total",
			Help:      "Outbox publish attempts that failed.",
		},
		[]string{"topic"},
	)

	outboxDeadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "outbox",
			Name:      "dead_letters_total",
			Help:      "Outbox rows parked after exhausting attempts.",
		},
		[]string{"topic"},
	)

	outboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "momentum",
			Subsystem: "outbox",
			Name:      "pending_rows",
			Help:      "Outbox rows awaiting publication at the last poll.",
		},
	)

	eventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Integration events consumed, by outcome.",
		},
		[]string{"topic", "outcome"},
	)

	eventHandleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "momentum",
			Subsystem: "events",
			Name:      "handle_duration_seconds",
			Help:      "Duration of integration event handling.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"topic"},
	)

	appRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "app",
			Name:      "requests_total",
			Help:      "Commands and queries dispatched, by outcome.",
		},
		[]string{"request", "outcome"},
	)

	appDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "momentum",
			Subsystem: "app",
			Name:      "request_duration_seconds",
			Help:      "Duration of command and query handling.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"request"},
	)

	simulatedInvoices = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "simulator",
			Name:      "invoices_total",
			Help:      "Synthetic invoices generated by the simulator.",
		},
	)

	actorsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "momentum",
			Subsystem: "ledger",
			Name:      "active_actors",
			Help:      "Ledger actors currently activated.",
		},
	)

	actorActivations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "momentum",
			Subsystem: "ledger",
			Name:      "activations_total",
			Help:      "Ledger actor lifecycle transitions.",
		},
		[]string{"transition"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		outboxPublished,
		outboxFailures,
		outboxDeadLetters,
		outboxPending,
		eventsConsumed,
		eventHandleDuration,
		appRequests,
		appDuration,
		simulatedInvoices,
		actorsActive,
		actorActivations,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(service, method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
	})
}

// RecordOutboxPublish records the outcome of one outbox publish attempt.
func RecordOutboxPublish(topic string, success bool) {
	if topic == "" {
		topic = "unknown"
	}
	if success {
		outboxPublished.WithLabelValues(topic).Inc()
		return
	}
	outboxFailures.WithLabelValues(topic).Inc()
}

// RecordOutboxDeadLetter records an outbox row parked after exhausting attempts.
func RecordOutboxDeadLetter(topic string) {
	if topic == "" {
		topic = "unknown"
	}
	outboxDeadLetters.WithLabelValues(topic).Inc()
}

// SetOutboxPending records the pending outbox backlog seen at a poll.
func SetOutboxPending(rows int) {
	if rows < 0 {
		rows = 0
	}
	outboxPending.Set(float64(rows))
}

// RecordEventConsumed records one consumed integration event by outcome.
func RecordEventConsumed(topic, outcome string, duration time.Duration) {
	if topic == "" {
		topic = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	eventsConsumed.WithLabelValues(topic, outcome).Inc()
	eventHandleDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// RecordAppRequest records one dispatched command or query by outcome.
func RecordAppRequest(request, outcome string, duration time.Duration) {
	if request == "" {
		request = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	appRequests.WithLabelValues(request, outcome).Inc()
	appDuration.WithLabelValues(request).Observe(duration.Seconds())
}

// RecordSimulatedInvoice counts one synthetic invoice emitted by the simulator.
func RecordSimulatedInvoice() {
	simulatedInvoices.Inc()
}

// RecordActorActivation counts one ledger actor activation.
func RecordActorActivation() {
	actorActivations.WithLabelValues("activate").Inc()
	actorsActive.Inc()
}

// RecordActorDeactivation counts one ledger actor deactivation.
func RecordActorDeactivation() {
	actorActivations.WithLabelValues("deactivate").Inc()
	actorsActive.Dec()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource IDs so metric labels stay bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "health":
		if len(parts) > 1 {
			return "/health/" + parts[1]
		}
		return "/health"
	case "v1":
		if len(parts) < 2 {
			return "/v1"
		}
		resource := parts[1]
		switch len(parts) {
		case 2:
			return "/v1/" + resource
		case 3:
			return "/v1/" + resource + "/:id"
		default:
			rest := parts[3:]
			suffix := strings.Join(rest, "/")
			if len(rest) == 2 {
				suffix = rest[0] + "/:id"
			}
			return "/v1/" + resource + "/:id/" + suffix
		}
	default:
		return "/" + parts[0]
	}
}
