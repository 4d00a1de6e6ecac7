// Package consumer settles invoices from incoming payment events.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/events"
	"github.com/momentum-oss/momentum/internal/messaging"
	"github.com/momentum-oss/momentum/internal/platform/metrics"
	backofficestorage "github.com/momentum-oss/momentum/internal/services/backoffice/storage"
	"github.com/momentum-oss/momentum/internal/services/billing/app"
	"github.com/momentum-oss/momentum/internal/services/billing/domain"
)

const (
	// dedupeKeyPrefix namespaces processed-payment markers in Redis.
	dedupeKeyPrefix  = "momentum:backoffice:payment:"
	defaultDedupeTTL = 24 * time.Hour
)

// Deduper claims an event for processing at most once per TTL window.
type Deduper interface {
	// MarkProcessed returns false when the event was already claimed.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	// Unmark releases a claim so a redelivery may retry after a
	// transient failure.
	Unmark(ctx context.Context, eventID string) error
}

// RedisDeduper implements Deduper on a Redis SETNX+TTL marker.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper wraps a Redis client as a payment deduper.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

// MarkProcessed claims the event id, returning false on a duplicate.
func (d *RedisDeduper) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupeKeyPrefix+eventID, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark payment processed: %w", err)
	}
	return ok, nil
}

// Unmark releases a previously claimed event id.
func (d *RedisDeduper) Unmark(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, dedupeKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("unmark payment: %w", err)
	}
	return nil
}

// Options assembles a Payments consumer.
type Options struct {
	App     *app.App
	Deduper Deduper
	// Journal records processing outcomes; nil disables journaling.
	Journal backofficestorage.Journal
	// Clock defaults to the wall clock.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Payments consumes payment events and settles the referenced invoices.
type Payments struct {
	app      *app.App
	deduper  Deduper
	journal  backofficestorage.Journal
	registry *events.Registry
	clock    func() time.Time
	logger   *slog.Logger
}

// NewPayments builds the payment consumer.
func NewPayments(opts Options) (*Payments, error) {
	if opts.App == nil {
		return nil, fmt.Errorf("payments consumer requires the billing app")
	}
	if opts.Deduper == nil {
		return nil, fmt.Errorf("payments consumer requires a deduper")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Payments{
		app:      opts.App,
		deduper:  opts.Deduper,
		journal:  opts.Journal,
		registry: domain.EventRegistry(),
		clock:    clock,
		logger:   logger,
	}, nil
}

// Topic returns the subject this consumer subscribes to.
func (p *Payments) Topic() string {
	return domain.TopicPaymentReceived
}

// Handle implements messaging.Handler for payment events.
func (p *Payments) Handle(ctx context.Context, topic string, data []byte) error {
	started := p.clock()
	outcome, err := p.settle(ctx, topic, data)
	metrics.RecordEventConsumed(topic, outcome, p.clock().Sub(started))
	return err
}

func (p *Payments) settle(ctx context.Context, topic string, data []byte) (string, error) {
	envelope, err := events.Decode(data)
	if err != nil {
		p.journalOutcome(ctx, "unknown", topic, backofficestorage.OutcomeFailed, err.Error())
		return "failed", messaging.Permanent(fmt.Errorf("decode payment envelope: %w", err))
	}

	payload, err := p.registry.DecodePayload(envelope)
	if err != nil {
		p.journalOutcome(ctx, envelope.ID(), topic, backofficestorage.OutcomeFailed, err.Error())
		return "failed", messaging.Permanent(fmt.Errorf("decode payment payload: %w", err))
	}
	payment, ok := payload.(*domain.PaymentReceived)
	if !ok {
		err := fmt.Errorf("unexpected payload %T on %s", payload, topic)
		p.journalOutcome(ctx, envelope.ID(), topic, backofficestorage.OutcomeFailed, err.Error())
		return "failed", messaging.Permanent(err)
	}

	fresh, err := p.deduper.MarkProcessed(ctx, envelope.ID())
	if err != nil {
		// Dedupe store outage: requeue rather than risk double settlement.
		return "retry", fmt.Errorf("dedupe payment %s: %w", envelope.ID(), err)
	}
	if !fresh {
		p.journalOutcome(ctx, envelope.ID(), topic, backofficestorage.OutcomeDuplicate, "")
		p.logger.Debug("skipping duplicate payment",
			"event_id", envelope.ID(), "invoice_id", payment.InvoiceID)
		return "duplicate", nil
	}

	_, err = p.app.MarkInvoicePaid(ctx, app.MarkInvoicePaidCommand{
		TenantID:    payment.TenantID,
		InvoiceID:   payment.InvoiceID,
		AmountCents: payment.AmountCents,
	})
	switch {
	case err == nil:
		p.journalOutcome(ctx, envelope.ID(), topic, backofficestorage.OutcomeProcessed, "")
		p.logger.Info("settled invoice from payment",
			"invoice_id", payment.InvoiceID, "tenant", payment.TenantID, "amount_cents", payment.AmountCents)
		return "processed", nil
	case isTerminal(err):
		// Replaying cannot change the outcome; keep the claim and drop.
		p.journalOutcome(ctx, envelope.ID(), topic, backofficestorage.OutcomeFailed, err.Error())
		return "terminal", messaging.Permanent(err)
	default:
		// Transient failure: release the claim so a redelivery can retry.
		if unmarkErr := p.deduper.Unmark(ctx, envelope.ID()); unmarkErr != nil {
			p.logger.Error("release payment claim", "event_id", envelope.ID(), "error", unmarkErr)
		}
		p.journalOutcome(ctx, envelope.ID(), topic, backofficestorage.OutcomeRetry, err.Error())
		return "retry", fmt.Errorf("settle invoice %s: %w", payment.InvoiceID, err)
	}
}

// isTerminal reports settlement failures no redelivery can fix: the
// invoice is already settled or cancelled, or the payload itself is bad.
func isTerminal(err error) bool {
	return apperrors.IsCode(err, apperrors.CodeInvoiceInvalidStatusTransition) ||
		apperrors.IsCode(err, apperrors.CodeInvoiceStatusDisallowsOp) ||
		apperrors.IsCode(err, apperrors.CodeInvoiceAmountInvalid) ||
		apperrors.IsCode(err, apperrors.CodeTenantInvalid) ||
		apperrors.IsCode(err, apperrors.CodeRequestInvalid)
}

func (p *Payments) journalOutcome(ctx context.Context, eventID, topic, outcome, lastError string) {
	if p.journal == nil {
		return
	}
	record := backofficestorage.JournalRecord{
		EventID:   eventID,
		Topic:     topic,
		Stage:     backofficestorage.StageConsume,
		Outcome:   outcome,
		LastError: lastError,
		CreatedAt: p.clock().UTC(),
	}
	if err := p.journal.Record(ctx, record); err != nil {
		p.logger.Warn("journal payment outcome", "event_id", eventID, "error", err)
	}
}
