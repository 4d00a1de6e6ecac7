// Package cqrs wires command and query handlers through a shared
// middleware chain. Handlers stay plain typed functions; middlewares see
// a type-erased invocation keyed by the request name, so one middleware
// serves every handler in the application.
package cqrs

import (
	"context"
	"fmt"
)

// HandlerFunc processes one request and returns its result.
type HandlerFunc[Req any, Res any] func(ctx context.Context, req Req) (Res, error)

// CommandFunc handles a state-changing request.
type CommandFunc[Req any, Res any] = HandlerFunc[Req, Res]

// QueryFunc handles a read-only request.
type QueryFunc[Req any, Res any] = HandlerFunc[Req, Res]

// Validator is implemented by requests that carry their own validation.
// Validation runs before any middleware or handler.
type Validator interface {
	Validate() error
}

// Next continues the chain and yields the handler result type-erased.
type Next func(ctx context.Context) (any, error)

// Middleware wraps request execution with cross-cutting behavior. The
// name identifies the request for logs, spans, and metrics.
type Middleware func(ctx context.Context, name string, next Next) (any, error)

// Chain builds the dispatchable handler: request validation, then the
// middlewares outermost-first, then the handler itself.
func Chain[Req any, Res any](name string, handler HandlerFunc[Req, Res], middlewares ...Middleware) HandlerFunc[Req, Res] {
	return func(ctx context.Context, req Req) (Res, error) {
		var zero Res
		if v, ok := any(req).(Validator); ok {
			if err := v.Validate(); err != nil {
				return zero, err
			}
		}

		invoke := Next(func(ctx context.Context) (any, error) {
			return handler(ctx, req)
		})
		for i := len(middlewares) - 1; i >= 0; i-- {
			mw := middlewares[i]
			next := invoke
			invoke = func(ctx context.Context) (any, error) {
				return mw(ctx, name, next)
			}
		}

		out, err := invoke(ctx)
		if err != nil {
			return zero, err
		}
		if out == nil {
			return zero, nil
		}
		res, ok := out.(Res)
		if !ok {
			return zero, fmt.Errorf("request %s produced %T instead of its declared result", name, out)
		}
		return res, nil
	}
}
