// Package messaging moves CloudEvents envelopes through NATS JetStream.
// Publishers hand the broker pre-encoded envelopes keyed by event ID so
// the stream's duplicate window can drop replays; consumers pull in
// batches and ack per message.
package messaging

import (
	"context"
	"errors"
)

// Handler processes one delivered envelope. Returning nil acks the
// message, a plain error requeues it, and a Permanent error terminates
// redelivery.
type Handler func(ctx context.Context, topic string, data []byte) error

// Publisher sends one encoded envelope to a topic. msgID deduplicates
// redundant publishes inside the broker's duplicate window.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, msgID string) error
}

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent error"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was explicitly marked as non-retryable.
func IsPermanent(err error) bool {
	var target permanentError
	return errors.As(err, &target)
}
