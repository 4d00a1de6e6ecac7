package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	backofficestorage "github.com/momentum-oss/momentum/internal/services/backoffice/storage"
	"github.com/momentum-oss/momentum/internal/services/billing/app"
	"github.com/momentum-oss/momentum/internal/services/billing/domain"
)

// SweeperOptions assembles a Sweeper.
type SweeperOptions struct {
	App *app.App
	// Journal records sweep passes; nil disables journaling.
	Journal backofficestorage.Journal
	// Limit bounds one pass; zero applies the application default.
	Limit int
	// Clock defaults to the wall clock.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Sweeper marks open invoices past their due date as overdue.
type Sweeper struct {
	app     *app.App
	journal backofficestorage.Journal
	limit   int
	clock   func() time.Time
	logger  *slog.Logger
}

// NewSweeper builds an overdue-invoice sweeper.
func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.App == nil {
		return nil, fmt.Errorf("sweeper requires the billing app")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		app:     opts.App,
		journal: opts.Journal,
		limit:   opts.Limit,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Tick runs one overdue sweep pass.
func (s *Sweeper) Tick(ctx context.Context) error {
	result, err := s.app.SweepOverdueInvoices(ctx, app.SweepOverdueInvoicesCommand{Limit: s.limit})
	if err != nil {
		return fmt.Errorf("sweep overdue invoices: %w", err)
	}
	if result.Marked == 0 && result.Skipped == 0 {
		return nil
	}

	s.logger.Info("overdue sweep finished", "marked", result.Marked, "skipped", result.Skipped)
	if s.journal != nil && result.Marked > 0 {
		// Attempt carries how many invoices this pass marked.
		record := backofficestorage.JournalRecord{
			EventID:   fmt.Sprintf("sweep-%d", s.clock().UTC().UnixMilli()),
			Topic:     domain.TopicInvoiceOverdue,
			Stage:     backofficestorage.StageSweep,
			Outcome:   backofficestorage.OutcomeMarked,
			Attempt:   result.Marked,
			CreatedAt: s.clock().UTC(),
		}
		if err := s.journal.Record(ctx, record); err != nil {
			s.logger.Warn("journal overdue sweep", "error", err)
		}
	}
	return nil
}
