// Package relay drains the billing outbox into the event stream.
//
// Rows are leased so concurrent relays never double-publish inside a
// lease window; broker-side msg-ID dedupe covers lease expiry races.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/momentum-oss/momentum/internal/messaging"
	"github.com/momentum-oss/momentum/internal/platform/metrics"
	"github.com/momentum-oss/momentum/internal/platform/timeouts"
	backofficestorage "github.com/momentum-oss/momentum/internal/services/backoffice/storage"
	billingstorage "github.com/momentum-oss/momentum/internal/services/billing/storage"
)

const (
	defaultConsumer      = "backoffice-relay"
	defaultBatchSize     = 16
	defaultPollInterval  = 2 * time.Second
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
)

// Sink observes each successfully relayed event envelope.
type Sink func(topic string, envelope []byte)

// Config tunes the relay loop.
type Config struct {
	// Consumer names the lease owner recorded on outbox rows.
	Consumer      string
	BatchSize     int
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = defaultConsumer
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = timeouts.OutboxLease
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = c.RetryBackoff
	}
	return c
}

// Options assembles a Relay.
type Options struct {
	Outbox    billingstorage.OutboxStore
	Publisher messaging.Publisher
	// Journal records per-attempt outcomes; nil disables journaling.
	Journal backofficestorage.Journal
	Config  Config
	// Clock defaults to the wall clock; tests inject a fixed one.
	Clock  func() time.Time
	Logger *slog.Logger
	// Sink observes published envelopes; nil disables fan-out.
	Sink Sink
}

// Relay leases pending outbox rows and publishes their envelopes.
type Relay struct {
	outbox    billingstorage.OutboxStore
	publisher messaging.Publisher
	journal   backofficestorage.Journal
	config    Config
	clock     func() time.Time
	logger    *slog.Logger
	sink      Sink
}

// New builds a relay from options, applying loop defaults.
func New(opts Options) (*Relay, error) {
	if opts.Outbox == nil {
		return nil, fmt.Errorf("relay requires an outbox store")
	}
	if opts.Publisher == nil {
		return nil, fmt.Errorf("relay requires a publisher")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		outbox:    opts.Outbox,
		publisher: opts.Publisher,
		journal:   opts.Journal,
		config:    opts.Config.normalized(),
		clock:     clock,
		logger:    logger,
		sink:      opts.Sink,
	}, nil
}

// Run drains the outbox until the context ends.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	for {
		leased, err := r.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("relay cycle", "error", err)
		}
		// A full batch means the outbox is hot; drain again immediately.
		if leased == r.config.BatchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Cycle leases and publishes one batch, returning how many rows it leased.
func (r *Relay) Cycle(ctx context.Context) (int, error) {
	now := r.clock().UTC()
	events, err := r.outbox.LeaseOutbox(ctx, r.config.Consumer, r.config.BatchSize, now, r.config.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("lease outbox: %w", err)
	}
	for _, event := range events {
		r.process(ctx, event)
	}
	if backlog, countErr := r.outbox.CountOutboxBacklog(ctx); countErr == nil {
		metrics.SetOutboxPending(int(backlog))
	}
	return len(events), nil
}

func (r *Relay) process(ctx context.Context, event billingstorage.OutboxEvent) {
	publishCtx, cancel := context.WithTimeout(ctx, timeouts.PublishRequest)
	err := r.publisher.Publish(publishCtx, event.Topic, event.Payload, event.EventID)
	cancel()

	now := r.clock().UTC()
	attempt := event.Attempts + 1
	switch {
	case err == nil:
		if ackErr := r.outbox.AckOutbox(ctx, event.ID, r.config.Consumer, now); ackErr != nil {
			r.logger.Error("ack outbox row", "id", event.ID, "error", ackErr)
			return
		}
		metrics.RecordOutboxPublish(event.Topic, true)
		r.journalOutcome(ctx, event, backofficestorage.OutcomePublished, attempt, "")
		if r.sink != nil {
			r.sink(event.Topic, event.Payload)
		}
		r.logger.Debug("relayed event", "topic", event.Topic, "event_id", event.EventID)
	case messaging.IsPermanent(err) || attempt >= r.config.MaxAttempts:
		metrics.RecordOutboxPublish(event.Topic, false)
		metrics.RecordOutboxDeadLetter(event.Topic)
		if dlErr := r.outbox.DeadLetterOutbox(ctx, event.ID, r.config.Consumer, err.Error(), now); dlErr != nil {
			r.logger.Error("dead-letter outbox row", "id", event.ID, "error", dlErr)
			return
		}
		r.journalOutcome(ctx, event, backofficestorage.OutcomeDead, attempt, err.Error())
		r.logger.Error("dead-lettered event", "topic", event.Topic, "event_id", event.EventID, "attempt", attempt, "error", err)
	default:
		metrics.RecordOutboxPublish(event.Topic, false)
		delay := RetryDelay(attempt, r.config.RetryBackoff, r.config.RetryMaxDelay)
		if nackErr := r.outbox.NackOutbox(ctx, event.ID, r.config.Consumer, now.Add(delay), err.Error()); nackErr != nil {
			r.logger.Error("nack outbox row", "id", event.ID, "error", nackErr)
			return
		}
		r.journalOutcome(ctx, event, backofficestorage.OutcomeRetry, attempt, err.Error())
		r.logger.Warn("requeueing event", "topic", event.Topic, "event_id", event.EventID, "attempt", attempt, "retry_in", delay, "error", err)
	}
}

func (r *Relay) journalOutcome(ctx context.Context, event billingstorage.OutboxEvent, outcome string, attempt int, lastError string) {
	if r.journal == nil {
		return
	}
	record := backofficestorage.JournalRecord{
		EventID:   event.EventID,
		Topic:     event.Topic,
		Stage:     backofficestorage.StageRelay,
		Outcome:   outcome,
		Attempt:   attempt,
		LastError: lastError,
		CreatedAt: r.clock().UTC(),
	}
	if err := r.journal.Record(ctx, record); err != nil {
		r.logger.Warn("journal relay outcome", "event_id", event.EventID, "error", err)
	}
}

// RetryDelay computes the capped exponential backoff for an attempt count.
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		delay = max
	}
	return delay
}
