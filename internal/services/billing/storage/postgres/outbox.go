package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/momentum-oss/momentum/internal/services/billing/storage"
)

const outboxColumns = `id, event_id, topic, subject, tenant_id, payload, status, attempts,
	next_attempt_at, lease_owner, lease_expires_at, last_error, published_at, created_at, updated_at`

// execer abstracts *sql.Tx and *sql.DB for outbox inserts.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendOutbox enqueues integration events outside a domain write. Commands
// that change no state, such as SimulatePayment, use this path.
func (s *Store) AppendOutbox(ctx context.Context, events []storage.OutboxEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return appendOutbox(ctx, s.sqlDB, events)
}

// appendOutboxTx enqueues events inside an open domain transaction.
func appendOutboxTx(ctx context.Context, tx *sql.Tx, events []storage.OutboxEvent) error {
	return appendOutbox(ctx, tx, events)
}

func appendOutbox(ctx context.Context, db execer, events []storage.OutboxEvent) error {
	for _, event := range events {
		if strings.TrimSpace(event.EventID) == "" {
			return fmt.Errorf("outbox event id is required")
		}
		if strings.TrimSpace(event.Topic) == "" {
			return fmt.Errorf("outbox topic is required")
		}
		createdAt := event.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		nextAttemptAt := event.NextAttemptAt.UTC()
		if nextAttemptAt.IsZero() {
			nextAttemptAt = createdAt
		}

		_, err := db.ExecContext(ctx, `
INSERT INTO billing_outbox (event_id, topic, subject, tenant_id, payload, status, attempts,
	next_attempt_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)
`,
			event.EventID,
			event.Topic,
			event.Subject,
			event.TenantID,
			event.Payload,
			storage.OutboxStatusPending,
			nextAttemptAt,
			createdAt,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("append outbox event %s: %w", event.EventID, err)
		}
	}
	return nil
}

// LeaseOutbox claims due pending rows and expired leases for one consumer.
// SKIP LOCKED keeps concurrent relay replicas from contending on the same rows.
func (s *Store) LeaseOutbox(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if leaseTTL <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	rows, err := s.sqlDB.QueryContext(ctx, `
UPDATE billing_outbox
SET status = $1, lease_owner = $2, lease_expires_at = $3, updated_at = $4
WHERE id IN (
	SELECT id
	FROM billing_outbox
	WHERE (status = $5 AND next_attempt_at <= $6)
	   OR (status = $7 AND lease_expires_at IS NOT NULL AND lease_expires_at <= $8)
	ORDER BY next_attempt_at ASC, id ASC
	LIMIT $9
	FOR UPDATE SKIP LOCKED
)
RETURNING `+outboxColumns+`
`,
		storage.OutboxStatusLeased,
		consumer,
		now.Add(leaseTTL),
		now,
		storage.OutboxStatusPending,
		now,
		storage.OutboxStatusLeased,
		now,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lease outbox: %w", err)
	}
	defer rows.Close()

	leased := make([]storage.OutboxEvent, 0, limit)
	for rows.Next() {
		event, scanErr := scanOutboxEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan leased outbox event: %w", scanErr)
		}
		leased = append(leased, event)
	}
	return leased, rows.Err()
}

// AckOutbox marks one leased row as published.
func (s *Store) AckOutbox(ctx context.Context, id int64, consumer string, publishedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}
	publishedAt = publishedAt.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE billing_outbox
SET status = $1, lease_owner = '', lease_expires_at = NULL, last_error = '',
	published_at = $2, updated_at = $2
WHERE id = $3 AND status = $4 AND lease_owner = $5
`,
		storage.OutboxStatusPublished,
		publishedAt,
		id,
		storage.OutboxStatusLeased,
		strings.TrimSpace(consumer),
	)
	if err != nil {
		return fmt.Errorf("ack outbox: %w", err)
	}
	return requireLeasedRow(result)
}

// NackOutbox releases one leased row for a later retry.
func (s *Store) NackOutbox(ctx context.Context, id int64, consumer string, nextAttemptAt time.Time, lastError string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if nextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE billing_outbox
SET status = $1, attempts = attempts + 1, next_attempt_at = $2,
	lease_owner = '', lease_expires_at = NULL, last_error = $3, updated_at = $4
WHERE id = $5 AND status = $6 AND lease_owner = $7
`,
		storage.OutboxStatusPending,
		nextAttemptAt.UTC(),
		strings.TrimSpace(lastError),
		time.Now().UTC(),
		id,
		storage.OutboxStatusLeased,
		strings.TrimSpace(consumer),
	)
	if err != nil {
		return fmt.Errorf("nack outbox: %w", err)
	}
	return requireLeasedRow(result)
}

// DeadLetterOutbox parks one leased row after its attempts are exhausted.
func (s *Store) DeadLetterOutbox(ctx context.Context, id int64, consumer string, lastError string, processedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE billing_outbox
SET status = $1, attempts = attempts + 1, lease_owner = '', lease_expires_at = NULL,
	last_error = $2, updated_at = $3
WHERE id = $4 AND status = $5 AND lease_owner = $6
`,
		storage.OutboxStatusDead,
		strings.TrimSpace(lastError),
		processedAt.UTC(),
		id,
		storage.OutboxStatusLeased,
		strings.TrimSpace(consumer),
	)
	if err != nil {
		return fmt.Errorf("dead-letter outbox: %w", err)
	}
	return requireLeasedRow(result)
}

// CountOutboxBacklog counts rows not yet published or dead, for the backlog
// gauge.
func (s *Store) CountOutboxBacklog(ctx context.Context) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	var backlog int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM billing_outbox
WHERE status IN ($1, $2)
`, storage.OutboxStatusPending, storage.OutboxStatusLeased).Scan(&backlog)
	if err != nil {
		return 0, fmt.Errorf("count outbox backlog: %w", err)
	}
	return backlog, nil
}

// ListDeadLetters returns the most recently parked rows.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+outboxColumns+`
FROM billing_outbox
WHERE status = $1
ORDER BY updated_at DESC, id DESC
LIMIT $2
`, storage.OutboxStatusDead, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var dead []storage.OutboxEvent
	for rows.Next() {
		event, scanErr := scanOutboxEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan dead letter: %w", scanErr)
		}
		dead = append(dead, event)
	}
	return dead, rows.Err()
}

func requireLeasedRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanOutboxEvent(scanner rowScanner) (storage.OutboxEvent, error) {
	var (
		event          storage.OutboxEvent
		leaseExpiresAt sql.NullTime
		publishedAt    sql.NullTime
	)
	if err := scanner.Scan(
		&event.ID,
		&event.EventID,
		&event.Topic,
		&event.Subject,
		&event.TenantID,
		&event.Payload,
		&event.Status,
		&event.Attempts,
		&event.NextAttemptAt,
		&event.LeaseOwner,
		&leaseExpiresAt,
		&event.LastError,
		&publishedAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		return storage.OutboxEvent{}, err
	}
	event.LeaseExpiresAt = fromNullTime(leaseExpiresAt)
	event.PublishedAt = fromNullTime(publishedAt)
	event.NextAttemptAt = event.NextAttemptAt.UTC()
	event.CreatedAt = event.CreatedAt.UTC()
	event.UpdatedAt = event.UpdatedAt.UTC()
	return event, nil
}
