package cqrs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type createThing struct {
	Name string
}

func (c createThing) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

type thing struct {
	Name string
}

func TestChainInvokesHandler(t *testing.T) {
	handler := Chain("CreateThing", func(ctx context.Context, req createThing) (thing, error) {
		return thing{Name: req.Name}, nil
	})

	got, err := handler(context.Background(), createThing{Name: "widget"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got.Name != "widget" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestChainRunsValidationBeforeHandler(t *testing.T) {
	var handled bool
	handler := Chain("CreateThing", func(ctx context.Context, req createThing) (thing, error) {
		handled = true
		return thing{}, nil
	})

	if _, err := handler(context.Background(), createThing{}); err == nil {
		t.Fatal("expected validation error")
	}
	if handled {
		t.Fatal("handler must not run when validation fails")
	}
}

func TestChainAppliesMiddlewaresOutermostFirst(t *testing.T) {
	var order []string
	mark := func(label string) Middleware {
		return func(ctx context.Context, name string, next Next) (any, error) {
			order = append(order, label+"-before")
			out, err := next(ctx)
			order = append(order, label+"-after")
			return out, err
		}
	}

	handler := Chain("CreateThing", func(ctx context.Context, req createThing) (thing, error) {
		order = append(order, "handler")
		return thing{}, nil
	}, mark("outer"), mark("inner"))

	if _, err := handler(context.Background(), createThing{Name: "x"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	want := []string{"outer-before", "inner-before", "handler", "inner-after", "outer-after"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", order, want)
		}
	}
}

func TestChainPropagatesHandlerError(t *testing.T) {
	boom := errors.New("storage offline")
	handler := Chain("CreateThing", func(ctx context.Context, req createThing) (thing, error) {
		return thing{}, boom
	})

	if _, err := handler(context.Background(), createThing{Name: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestChainRejectsMiddlewareResultSwap(t *testing.T) {
	swap := func(ctx context.Context, name string, next Next) (any, error) {
		if _, err := next(ctx); err != nil {
			return nil, err
		}
		return "not-a-thing", nil
	}

	handler := Chain("CreateThing", func(ctx context.Context, req createThing) (thing, error) {
		return thing{Name: "x"}, nil
	}, swap)

	if _, err := handler(context.Background(), createThing{Name: "x"}); err == nil {
		t.Fatal("expected result type mismatch error")
	}
}

func TestBuiltinMiddlewaresPassResultsThrough(t *testing.T) {
	handler := Chain("CreateThing", func(ctx context.Context, req createThing) (thing, error) {
		return thing{Name: req.Name}, nil
	}, Logging(slog.Default()), Tracing(), Metrics())

	got, err := handler(context.Background(), createThing{Name: "widget"})
	if err != nil {
		t.Fatalf("dispatch with middlewares: %v", err)
	}
	if got.Name != "widget" {
		t.Fatalf("unexpected result %+v", got)
	}
}
