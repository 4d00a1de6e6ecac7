package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/momentum-oss/momentum/internal/platform/metrics"
	backofficestorage "github.com/momentum-oss/momentum/internal/services/backoffice/storage"
	"github.com/momentum-oss/momentum/internal/services/billing/app"
	"github.com/momentum-oss/momentum/internal/services/billing/domain"
)

// simulatedDueDays is how far out simulated invoices fall due.
const simulatedDueDays = 14

// SimulatorOptions assembles a Simulator.
type SimulatorOptions struct {
	App      *app.App
	Scenario Scenario
	// Journal records generated rounds; nil disables journaling.
	Journal backofficestorage.Journal
	// Seed fixes the traffic pattern; zero seeds from the clock.
	Seed int64
	// Clock defaults to the wall clock.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Simulator drafts, opens, and pays synthetic invoices on a schedule so a
// fresh environment produces end-to-end event traffic without manual input.
type Simulator struct {
	app      *app.App
	scenario Scenario
	journal  backofficestorage.Journal
	clock    func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	rand     *rand.Rand
	cashiers map[string]string
	seq      int
}

// NewSimulator builds a simulator over a normalized scenario.
func NewSimulator(opts SimulatorOptions) (*Simulator, error) {
	if opts.App == nil {
		return nil, fmt.Errorf("simulator requires the billing app")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = clock().UnixNano()
	}
	return &Simulator{
		app:      opts.App,
		scenario: opts.Scenario.normalized(),
		journal:  opts.Journal,
		clock:    clock,
		logger:   logger,
		rand:     rand.New(rand.NewSource(seed)),
		cashiers: make(map[string]string),
	}, nil
}

// Schedule returns the cron spec the simulator should run under.
func (s *Simulator) Schedule() string {
	return s.scenario.Schedule
}

// Tick generates one synthetic round: a drafted and opened invoice for a
// scenario tenant plus a payment event that settles it downstream.
func (s *Simulator) Tick(ctx context.Context) error {
	s.mu.Lock()
	tenant := s.scenario.Tenants[s.rand.Intn(len(s.scenario.Tenants))]
	amount := tenant.MinAmountCents
	if span := tenant.MaxAmountCents - tenant.MinAmountCents; span > 0 {
		amount += s.rand.Int63n(span + 1)
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	cashierID, err := s.ensureCashier(ctx, tenant)
	if err != nil {
		return fmt.Errorf("ensure simulated cashier for %s: %w", tenant.Tenant, err)
	}

	now := s.clock().UTC()
	invoice, err := s.app.CreateInvoice(ctx, app.CreateInvoiceCommand{
		TenantID:    tenant.Tenant,
		CashierID:   cashierID,
		Number:      fmt.Sprintf("SIM-%d-%04d", now.UnixMilli(), seq),
		AmountCents: amount,
		Currency:    tenant.Currency,
		DueDate:     now.AddDate(0, 0, simulatedDueDays),
	})
	if err != nil {
		return fmt.Errorf("draft simulated invoice: %w", err)
	}
	if _, err := s.app.OpenInvoice(ctx, app.OpenInvoiceCommand{
		TenantID:  tenant.Tenant,
		InvoiceID: invoice.ID,
	}); err != nil {
		return fmt.Errorf("open simulated invoice %s: %w", invoice.ID, err)
	}

	payment, err := s.app.SimulatePayment(ctx, app.SimulatePaymentCommand{
		TenantID:    tenant.Tenant,
		InvoiceID:   invoice.ID,
		AmountCents: amount,
		Reference:   "simulator",
	})
	if err != nil {
		return fmt.Errorf("simulate payment for %s: %w", invoice.ID, err)
	}

	metrics.RecordSimulatedInvoice()
	s.journalRound(ctx, payment)
	s.logger.Info("simulated invoice and payment",
		"tenant", tenant.Tenant, "invoice_id", invoice.ID,
		"payment_id", payment.PaymentID, "amount_cents", amount)
	return nil
}

// ensureCashier resolves the scenario cashier for a tenant, creating it
// on first use and caching the id across ticks.
func (s *Simulator) ensureCashier(ctx context.Context, tenant TenantScenario) (string, error) {
	s.mu.Lock()
	if id, ok := s.cashiers[tenant.Tenant]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	page, err := s.app.ListCashiers(ctx, app.ListCashiersQuery{
		TenantID: tenant.Tenant,
		Filter:   fmt.Sprintf("email = %q", tenant.CashierEmail),
	})
	if err != nil {
		return "", err
	}

	var cashierID string
	if len(page.Cashiers) > 0 {
		cashierID = page.Cashiers[0].ID
	} else {
		cashier, err := s.app.CreateCashier(ctx, app.CreateCashierCommand{
			TenantID: tenant.Tenant,
			Name:     tenant.CashierName,
			Email:    tenant.CashierEmail,
		})
		if err != nil {
			return "", err
		}
		cashierID = cashier.ID
	}

	s.mu.Lock()
	s.cashiers[tenant.Tenant] = cashierID
	s.mu.Unlock()
	return cashierID, nil
}

func (s *Simulator) journalRound(ctx context.Context, payment domain.PaymentReceived) {
	if s.journal == nil {
		return
	}
	record := backofficestorage.JournalRecord{
		EventID:   payment.PaymentID,
		Topic:     domain.TopicPaymentReceived,
		Stage:     backofficestorage.StageSimulate,
		Outcome:   backofficestorage.OutcomeGenerated,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.journal.Record(ctx, record); err != nil {
		s.logger.Warn("journal simulated round", "payment_id", payment.PaymentID, "error", err)
	}
}
