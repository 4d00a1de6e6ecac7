// Package storage defines persistence contracts for the backoffice journal.
package storage

import (
	"context"
	"time"
)

// Processing stages recorded in the journal.
const (
	StageRelay    = "relay"
	StageConsume  = "consume"
	StageSimulate = "simulate"
	StageSweep    = "sweep"
)

// Journal outcomes per stage.
const (
	OutcomePublished = "published"
	OutcomeRetry     = "retry"
	OutcomeDead      = "dead"
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeGenerated = "generated"
	// OutcomeMarked records an overdue sweep pass; the record's Attempt
	// field carries how many invoices the pass marked.
	OutcomeMarked = "marked"
)

// JournalRecord is one durable backoffice processing outcome record.
type JournalRecord struct {
	ID        int64
	EventID   string
	Topic     string
	Stage     string
	Outcome   string
	Attempt   int
	LastError string
	CreatedAt time.Time
}

// Journal persists backoffice processing records for local inspection.
type Journal interface {
	Record(ctx context.Context, record JournalRecord) error
	Recent(ctx context.Context, limit int) ([]JournalRecord, error)
}
