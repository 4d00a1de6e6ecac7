package app

import (
	"fmt"

	"github.com/momentum-oss/momentum/internal/events"
	"github.com/momentum-oss/momentum/internal/services/billing/storage"
)

// outboxEvent wraps a typed payload in a CloudEvents envelope and shapes
// it into an outbox row. The stored payload is the full encoded envelope,
// so the relay publishes bytes without re-wrapping. The partition key
// keeps events for one aggregate ordered at the broker.
func (a *App) outboxEvent(topic, subject, partitionKey, tenant string, payload any) (storage.OutboxEvent, error) {
	envelope, err := events.New(topic, a.source, subject, tenant, partitionKey, payload)
	if err != nil {
		return storage.OutboxEvent{}, fmt.Errorf("build %s event: %w", topic, err)
	}
	encoded, err := events.Encode(envelope)
	if err != nil {
		return storage.OutboxEvent{}, fmt.Errorf("encode %s event: %w", topic, err)
	}

	now := a.clock().UTC()
	return storage.OutboxEvent{
		EventID:       envelope.ID(),
		Topic:         topic,
		Subject:       subject,
		TenantID:      tenant,
		Payload:       encoded,
		Status:        storage.OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}
