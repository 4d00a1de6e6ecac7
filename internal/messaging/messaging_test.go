package messaging

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPermanentMarksErrors(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("expected nil passthrough")
	}

	cause := errors.New("payload cannot be parsed")
	err := Permanent(cause)
	if !IsPermanent(err) {
		t.Fatal("expected permanent marker to be detected")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to remain discoverable")
	}

	wrapped := fmt.Errorf("handle event: %w", err)
	if !IsPermanent(wrapped) {
		t.Fatal("expected permanent marker to survive wrapping")
	}
	if IsPermanent(cause) {
		t.Fatal("expected unmarked error to be retryable")
	}
}

func TestDecideMapsHandlerOutcomes(t *testing.T) {
	if got := decide(nil); got != ackMessage {
		t.Fatalf("expected ack for nil error, got %v", got)
	}
	if got := decide(errors.New("transient db outage")); got != nakMessage {
		t.Fatalf("expected nak for transient error, got %v", got)
	}
	if got := decide(Permanent(errors.New("unknown topic"))); got != termMessage {
		t.Fatalf("expected term for permanent error, got %v", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.applyDefaults()
	if cfg.Stream != "MOMENTUM" {
		t.Fatalf("unexpected default stream %q", cfg.Stream)
	}
	if len(cfg.Subjects) == 0 {
		t.Fatal("expected default subjects")
	}
	if cfg.ConnectTimeout <= 0 || cfg.DuplicateWindow <= 0 {
		t.Fatal("expected positive default timeouts")
	}
	if cfg.Logger == nil {
		t.Fatal("expected default logger")
	}
}

func TestConsumerConfigDefaults(t *testing.T) {
	cfg := ConsumerConfig{}.applyDefaults()
	if cfg.Batch != 16 {
		t.Fatalf("unexpected default batch %d", cfg.Batch)
	}
	if cfg.FetchWait != 5*time.Second {
		t.Fatalf("unexpected default fetch wait %v", cfg.FetchWait)
	}
	if cfg.MaxDeliver != 5 {
		t.Fatalf("unexpected default max deliver %d", cfg.MaxDeliver)
	}
	if cfg.AckWait != 30*time.Second {
		t.Fatalf("unexpected default ack wait %v", cfg.AckWait)
	}
}

func TestConnectRequiresURL(t *testing.T) {
	if _, err := Connect(Config{}); err == nil {
		t.Fatal("expected missing url to be rejected")
	}
}
