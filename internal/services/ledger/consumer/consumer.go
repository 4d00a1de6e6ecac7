// Package consumer projects billing invoice events into ledger actors.
//
// Projection writes are idempotent: upserts replace, repeated status
// transitions no-op, and final entries ignore late replays. Redeliveries
// therefore need no dedupe marker.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/events"
	"github.com/momentum-oss/momentum/internal/messaging"
	"github.com/momentum-oss/momentum/internal/platform/metrics"
	billingdomain "github.com/momentum-oss/momentum/internal/services/billing/domain"
	"github.com/momentum-oss/momentum/internal/services/ledger/actor"
	"github.com/momentum-oss/momentum/internal/services/ledger/domain"
	"github.com/momentum-oss/momentum/internal/services/ledger/storage"
)

// Options assembles a Projection consumer.
type Options struct {
	Actors *actor.Registry
	// Clock defaults to the wall clock.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Projection folds invoice lifecycle events into per-tenant entries.
type Projection struct {
	actors   *actor.Registry
	registry *events.Registry
	clock    func() time.Time
	logger   *slog.Logger
}

// NewProjection builds the invoice projection consumer.
func NewProjection(opts Options) (*Projection, error) {
	if opts.Actors == nil {
		return nil, fmt.Errorf("projection requires the actor registry")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Projection{
		actors:   opts.Actors,
		registry: billingdomain.EventRegistry(),
		clock:    clock,
		logger:   logger,
	}, nil
}

// Subject returns the JetStream filter subject covering every invoice
// lifecycle topic.
func (p *Projection) Subject() string {
	return events.Topic(billingdomain.App, "invoices", ">")
}

// Handle implements messaging.Handler for invoice events.
func (p *Projection) Handle(ctx context.Context, topic string, data []byte) error {
	started := p.clock()
	outcome, err := p.project(ctx, topic, data)
	metrics.RecordEventConsumed(topic, outcome, p.clock().Sub(started))
	return err
}

func (p *Projection) project(ctx context.Context, topic string, data []byte) (string, error) {
	envelope, err := events.Decode(data)
	if err != nil {
		return "failed", messaging.Permanent(fmt.Errorf("decode invoice envelope: %w", err))
	}
	payload, err := p.registry.DecodePayload(envelope)
	if err != nil {
		return "failed", messaging.Permanent(fmt.Errorf("decode invoice payload: %w", err))
	}

	var projErr error
	switch event := payload.(type) {
	case *billingdomain.InvoiceCreated:
		// A redelivered creation must not reset an entry that later
		// events already moved on.
		if _, err := p.actors.Entry(ctx, event.TenantID, event.InvoiceID); err == nil {
			p.logger.Debug("skipping replayed invoice creation",
				"invoice_id", event.InvoiceID, "tenant", event.TenantID)
			return "duplicate", nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return "retry", fmt.Errorf("check entry %s: %w", event.InvoiceID, err)
		}
		_, projErr = p.actors.UpsertEntry(ctx, event.TenantID, domain.UpsertEntryInput{
			InvoiceID:   event.InvoiceID,
			AmountCents: event.AmountCents,
			Status:      string(domain.EntryStatusOutstanding),
		})
	case *billingdomain.InvoiceOpened:
		_, projErr = p.actors.SetEntryStatus(ctx, event.TenantID, event.InvoiceID, domain.EntryStatusOutstanding)
	case *billingdomain.InvoiceOverdue:
		_, projErr = p.actors.SetEntryStatus(ctx, event.TenantID, event.InvoiceID, domain.EntryStatusOverdue)
	case *billingdomain.InvoiceCancelled:
		_, projErr = p.actors.SetEntryStatus(ctx, event.TenantID, event.InvoiceID, domain.EntryStatusCancelled)
	case *billingdomain.InvoicePaid:
		// Paid carries the full amount, so it can seed an entry the
		// consumer never saw created.
		_, projErr = p.actors.UpsertEntry(ctx, event.TenantID, domain.UpsertEntryInput{
			InvoiceID:   event.InvoiceID,
			AmountCents: event.AmountCents,
			Status:      string(domain.EntryStatusPaid),
		})
	default:
		return "failed", messaging.Permanent(fmt.Errorf("unexpected payload %T on %s", payload, topic))
	}

	switch {
	case projErr == nil:
		p.logger.Debug("projected invoice event", "topic", topic, "event_id", envelope.ID())
		return "processed", nil
	case isTerminal(projErr):
		// Replaying cannot change the outcome; drop the event.
		p.logger.Warn("dropping unprojectable invoice event",
			"topic", topic, "event_id", envelope.ID(), "error", projErr)
		return "terminal", messaging.Permanent(projErr)
	default:
		return "retry", fmt.Errorf("project %s: %w", topic, projErr)
	}
}

// isTerminal reports projection failures no redelivery can fix: the
// payload is invalid or references an entry that never existed.
func isTerminal(err error) bool {
	return apperrors.IsCode(err, apperrors.CodeLedgerEntryInvalid) ||
		apperrors.IsCode(err, apperrors.CodeTenantInvalid) ||
		apperrors.IsCode(err, apperrors.CodeNotFound)
}
