// Package jobs schedules the backoffice periodic work: the payment
// simulator and the overdue-invoice sweeper.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultSimulatorSchedule matches the sample's ten-second payment beat.
	DefaultSimulatorSchedule = "@every 10s"
	// DefaultSweeperSchedule bounds how stale an overdue flag can get.
	DefaultSweeperSchedule = "@every 1m"
	// jobTimeout caps one scheduled run.
	jobTimeout = 30 * time.Second
)

// Runner schedules backoffice jobs on one cron instance.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewRunner builds an empty job runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cron: cron.New(), logger: logger}
}

// Add registers a job under a cron schedule, either a five-field spec or
// an @every duration descriptor.
func (r *Runner) Add(schedule, name string, job func(context.Context) error) error {
	if job == nil {
		return fmt.Errorf("job %s is required", name)
	}
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := job(ctx); err != nil {
			r.logger.Error("scheduled job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	return nil
}

// Run fires the schedule until the context ends, then waits for
// in-flight jobs to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.cron.Start()
	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	return nil
}
