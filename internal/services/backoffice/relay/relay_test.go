package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/momentum-oss/momentum/internal/messaging"
	backofficestorage "github.com/momentum-oss/momentum/internal/services/backoffice/storage"
	billingstorage "github.com/momentum-oss/momentum/internal/services/billing/storage"
)

type ack struct {
	id          int64
	publishedAt time.Time
}

type nack struct {
	id            int64
	nextAttemptAt time.Time
	lastError     string
}

type dead struct {
	id        int64
	lastError string
}

// fakeOutbox hands out its queued events once and records acknowledgements.
type fakeOutbox struct {
	billingstorage.OutboxStore

	queue    []billingstorage.OutboxEvent
	leaseErr error

	acks    []ack
	nacks   []nack
	deads   []dead
	backlog int64
}

func (f *fakeOutbox) LeaseOutbox(_ context.Context, _ string, limit int, _ time.Time, _ time.Duration) ([]billingstorage.OutboxEvent, error) {
	if f.leaseErr != nil {
		return nil, f.leaseErr
	}
	if len(f.queue) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.queue) {
		n = len(f.queue)
	}
	leased := f.queue[:n]
	f.queue = f.queue[n:]
	return leased, nil
}

func (f *fakeOutbox) AckOutbox(_ context.Context, id int64, _ string, publishedAt time.Time) error {
	f.acks = append(f.acks, ack{id: id, publishedAt: publishedAt})
	return nil
}

func (f *fakeOutbox) NackOutbox(_ context.Context, id int64, _ string, nextAttemptAt time.Time, lastError string) error {
	f.nacks = append(f.nacks, nack{id: id, nextAttemptAt: nextAttemptAt, lastError: lastError})
	return nil
}

func (f *fakeOutbox) DeadLetterOutbox(_ context.Context, id int64, _ string, lastError string, _ time.Time) error {
	f.deads = append(f.deads, dead{id: id, lastError: lastError})
	return nil
}

func (f *fakeOutbox) CountOutboxBacklog(context.Context) (int64, error) {
	return f.backlog, nil
}

type published struct {
	topic string
	data  []byte
	msgID string
}

type fakePublisher struct {
	err       error
	published []published
}

func (f *fakePublisher) Publish(_ context.Context, topic string, data []byte, msgID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{topic: topic, data: data, msgID: msgID})
	return nil
}

type memJournal struct {
	records []backofficestorage.JournalRecord
}

func (m *memJournal) Record(_ context.Context, record backofficestorage.JournalRecord) error {
	m.records = append(m.records, record)
	return nil
}

func (m *memJournal) Recent(_ context.Context, limit int) ([]backofficestorage.JournalRecord, error) {
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return m.records[:limit], nil
}

func testClock() func() time.Time {
	return func() time.Time { return time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC) }
}

func pendingEvent(id int64, attempts int) billingstorage.OutboxEvent {
	return billingstorage.OutboxEvent{
		ID:       id,
		EventID:  "evt-1",
		Topic:    "billing.invoices.created",
		Subject:  "inv-1",
		TenantID: "acme",
		Payload:  []byte(`{"specversion":"1.0"}`),
		Attempts: attempts,
	}
}

func newTestRelay(t *testing.T, outbox *fakeOutbox, publisher *fakePublisher, journal *memJournal, sink Sink) *Relay {
	t.Helper()
	opts := Options{
		Outbox:    outbox,
		Publisher: publisher,
		Config:    Config{MaxAttempts: 3, RetryBackoff: time.Second, RetryMaxDelay: 8 * time.Second},
		Clock:     testClock(),
		Sink:      sink,
	}
	// A nil *memJournal must stay a nil interface so the relay's
	// nil-journal guard applies.
	if journal != nil {
		opts.Journal = journal
	}
	r, err := New(opts)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return r
}

func TestCyclePublishesAndAcks(t *testing.T) {
	outbox := &fakeOutbox{queue: []billingstorage.OutboxEvent{pendingEvent(7, 0)}}
	publisher := &fakePublisher{}
	journal := &memJournal{}
	var seen []string
	r := newTestRelay(t, outbox, publisher, journal, func(topic string, _ []byte) {
		seen = append(seen, topic)
	})

	leased, err := r.Cycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if leased != 1 {
		t.Fatalf("leased = %d, want 1", leased)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("published = %d, want 1", len(publisher.published))
	}
	if publisher.published[0].msgID != "evt-1" {
		t.Fatalf("msg id = %q, want evt-1", publisher.published[0].msgID)
	}
	if len(outbox.acks) != 1 || outbox.acks[0].id != 7 {
		t.Fatalf("acks = %+v, want one ack for id 7", outbox.acks)
	}
	if len(journal.records) != 1 || journal.records[0].Outcome != backofficestorage.OutcomePublished {
		t.Fatalf("journal = %+v, want one published record", journal.records)
	}
	if len(seen) != 1 || seen[0] != "billing.invoices.created" {
		t.Fatalf("sink saw %v, want the relayed topic", seen)
	}
}

func TestCycleRetriesTransientFailure(t *testing.T) {
	outbox := &fakeOutbox{queue: []billingstorage.OutboxEvent{pendingEvent(7, 0)}}
	publisher := &fakePublisher{err: errors.New("broker unavailable")}
	journal := &memJournal{}
	r := newTestRelay(t, outbox, publisher, journal, nil)

	if _, err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(outbox.nacks) != 1 {
		t.Fatalf("nacks = %d, want 1", len(outbox.nacks))
	}
	wantRetryAt := testClock()().Add(time.Second)
	if !outbox.nacks[0].nextAttemptAt.Equal(wantRetryAt) {
		t.Fatalf("next attempt = %v, want %v", outbox.nacks[0].nextAttemptAt, wantRetryAt)
	}
	if len(journal.records) != 1 || journal.records[0].Outcome != backofficestorage.OutcomeRetry {
		t.Fatalf("journal = %+v, want one retry record", journal.records)
	}
}

func TestCycleDeadLettersAfterMaxAttempts(t *testing.T) {
	outbox := &fakeOutbox{queue: []billingstorage.OutboxEvent{pendingEvent(7, 2)}}
	publisher := &fakePublisher{err: errors.New("broker unavailable")}
	journal := &memJournal{}
	r := newTestRelay(t, outbox, publisher, journal, nil)

	if _, err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(outbox.deads) != 1 || outbox.deads[0].id != 7 {
		t.Fatalf("deads = %+v, want one dead letter for id 7", outbox.deads)
	}
	if len(outbox.nacks) != 0 {
		t.Fatalf("nacks = %d, want 0", len(outbox.nacks))
	}
	if len(journal.records) != 1 || journal.records[0].Outcome != backofficestorage.OutcomeDead {
		t.Fatalf("journal = %+v, want one dead record", journal.records)
	}
}

func TestCycleDeadLettersPermanentErrorImmediately(t *testing.T) {
	outbox := &fakeOutbox{queue: []billingstorage.OutboxEvent{pendingEvent(7, 0)}}
	publisher := &fakePublisher{err: messaging.Permanent(errors.New("malformed envelope"))}
	r := newTestRelay(t, outbox, publisher, nil, nil)

	if _, err := r.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(outbox.deads) != 1 {
		t.Fatalf("deads = %d, want 1", len(outbox.deads))
	}
}

func TestCycleSurfacesLeaseError(t *testing.T) {
	outbox := &fakeOutbox{leaseErr: errors.New("postgres down")}
	r := newTestRelay(t, outbox, &fakePublisher{}, nil, nil)

	if _, err := r.Cycle(context.Background()); err == nil {
		t.Fatal("expected lease error")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{name: "first attempt", attempt: 1, want: time.Second},
		{name: "second doubles", attempt: 2, want: 2 * time.Second},
		{name: "fourth", attempt: 4, want: 8 * time.Second},
		{name: "capped", attempt: 10, want: 8 * time.Second},
		{name: "zero clamps to first", attempt: 0, want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RetryDelay(tt.attempt, time.Second, 8*time.Second)
			if got != tt.want {
				t.Fatalf("delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	outbox := &fakeOutbox{}
	r := newTestRelay(t, outbox, &fakePublisher{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}
