package cqrs

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/platform/metrics"
)

const tracerName = "github.com/momentum-oss/momentum/internal/cqrs"

// Logging records each request with its duration and outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, name string, next Next) (any, error) {
		start := time.Now()
		out, err := next(ctx)
		duration := time.Since(start)
		if err != nil {
			logger.Warn("request failed",
				"request", name,
				"duration", duration,
				"code", string(apperrors.GetCode(err)),
				"error", err,
			)
			return out, err
		}
		logger.Debug("request handled", "request", name, "duration", duration)
		return out, nil
	}
}

// Tracing opens one span per request and records failures on it.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return func(ctx context.Context, name string, next Next) (any, error) {
		ctx, span := tracer.Start(ctx, name)
		defer span.End()
		span.SetAttributes(attribute.String("momentum.request", name))

		out, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, string(apperrors.GetCode(err)))
		}
		return out, err
	}
}

// Metrics feeds the shared request counters and latency histogram.
func Metrics() Middleware {
	return func(ctx context.Context, name string, next Next) (any, error) {
		start := time.Now()
		out, err := next(ctx)
		outcome := "ok"
		if err != nil {
			outcome = string(apperrors.GetCode(err))
		}
		metrics.RecordAppRequest(name, outcome, time.Since(start))
		return out, err
	}
}
