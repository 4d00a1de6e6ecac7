// Package actor hosts per-tenant ledger actors: each active tenant owns
// one goroutine and a bounded mailbox, so account state mutates one call
// at a time without locks.
//
// Activation loads state from the snapshot cache, falling back to
// Postgres. Writes go through the store synchronously before in-memory
// state moves, so a crash never loses an acknowledged call. Idle actors
// flush a snapshot and deactivate; the next call re-activates warm.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/platform/metrics"
	"github.com/momentum-oss/momentum/internal/platform/timeouts"
	"github.com/momentum-oss/momentum/internal/services/ledger/cache"
	"github.com/momentum-oss/momentum/internal/services/ledger/domain"
	"github.com/momentum-oss/momentum/internal/services/ledger/storage"
)

const defaultMailboxSize = 32

// errDeactivated drains a closing mailbox; invoke retries it against a
// fresh activation, callers never see it.
var errDeactivated = errors.New("ledger actor deactivated")

// Options assembles a Registry.
type Options struct {
	Store storage.Store
	// Cache holds warm-activation snapshots; nil disables caching.
	Cache *cache.StateCache
	// MailboxSize bounds queued calls per actor; a full mailbox
	// rejects callers instead of blocking them.
	MailboxSize int
	// IdleTTL is how long an actor may sit without mail before it
	// flushes and deactivates.
	IdleTTL time.Duration
	// Clock defaults to the wall clock; tests inject a fixed one.
	Clock  func() time.Time
	Logger *slog.Logger
}

// Registry activates and routes calls to per-tenant actors.
type Registry struct {
	store       storage.Store
	cache       *cache.StateCache
	mailboxSize int
	idleTTL     time.Duration
	clock       func() time.Time
	logger      *slog.Logger

	mu     sync.Mutex
	actors map[string]*actor
	closed bool
}

// New builds a registry from options, applying runtime defaults.
func New(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("actor registry requires a store")
	}
	mailboxSize := opts.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = defaultMailboxSize
	}
	idleTTL := opts.IdleTTL
	if idleTTL <= 0 {
		idleTTL = timeouts.ActorIdle
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:       opts.Store,
		cache:       opts.Cache,
		mailboxSize: mailboxSize,
		idleTTL:     idleTTL,
		clock:       clock,
		logger:      logger,
		actors:      map[string]*actor{},
	}, nil
}

// UpsertEntry records or replaces an invoice entry and returns the
// updated account totals.
func (r *Registry) UpsertEntry(ctx context.Context, tenantID string, input domain.UpsertEntryInput) (domain.Account, error) {
	return r.invokeAccount(ctx, tenantID, func(ctx context.Context, a *actor) (domain.Account, error) {
		entry, err := domain.NewEntry(input, r.clock)
		if err != nil {
			return domain.Account{}, err
		}
		return a.upsert(ctx, entry)
	})
}

// SetEntryStatus moves an existing entry to the given status. Unknown
// invoices report storage.ErrNotFound; a repeated status and any
// transition out of a final status are no-ops.
func (r *Registry) SetEntryStatus(ctx context.Context, tenantID, invoiceID string, status domain.EntryStatus) (domain.Account, error) {
	return r.invokeAccount(ctx, tenantID, func(ctx context.Context, a *actor) (domain.Account, error) {
		return a.setStatus(ctx, strings.TrimSpace(invoiceID), status)
	})
}

// RemoveEntry deletes an entry and retracts its contribution from the
// account totals.
func (r *Registry) RemoveEntry(ctx context.Context, tenantID, invoiceID string) (domain.Account, error) {
	return r.invokeAccount(ctx, tenantID, func(ctx context.Context, a *actor) (domain.Account, error) {
		return a.remove(ctx, strings.TrimSpace(invoiceID))
	})
}

// Account reads the current account totals.
func (r *Registry) Account(ctx context.Context, tenantID string) (domain.Account, error) {
	return r.invokeAccount(ctx, tenantID, func(_ context.Context, a *actor) (domain.Account, error) {
		return a.account, nil
	})
}

// Entry reads a single invoice entry.
func (r *Registry) Entry(ctx context.Context, tenantID, invoiceID string) (domain.Entry, error) {
	value, err := r.invoke(ctx, tenantID, func(_ context.Context, a *actor) (any, error) {
		entry, ok := a.entries[strings.TrimSpace(invoiceID)]
		if !ok {
			return nil, storage.ErrNotFound
		}
		return entry, nil
	})
	if err != nil {
		return domain.Entry{}, err
	}
	return value.(domain.Entry), nil
}

// Entries lists the account's entries ordered by invoice id.
func (r *Registry) Entries(ctx context.Context, tenantID string) ([]domain.Entry, error) {
	value, err := r.invoke(ctx, tenantID, func(_ context.Context, a *actor) (any, error) {
		return a.entriesSlice(), nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]domain.Entry), nil
}

// ActiveActors reports how many tenants are currently activated.
func (r *Registry) ActiveActors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Close deactivates every actor, flushing snapshots. The registry
// rejects calls afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	actors := make([]*actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.actors = map[string]*actor{}
	r.mu.Unlock()

	for _, a := range actors {
		close(a.quit)
	}
	for _, a := range actors {
		select {
		case <-a.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Registry) invokeAccount(ctx context.Context, tenantID string, apply func(context.Context, *actor) (domain.Account, error)) (domain.Account, error) {
	value, err := r.invoke(ctx, tenantID, func(ctx context.Context, a *actor) (any, error) {
		return apply(ctx, a)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return value.(domain.Account), nil
}

// invoke routes one call into the tenant's actor. A mailbox drained by a
// concurrent deactivation retries once against a fresh activation.
func (r *Registry) invoke(ctx context.Context, tenantID string, apply func(context.Context, *actor) (any, error)) (any, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, apperrors.New(apperrors.CodeTenantInvalid, "tenant id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.ActorCall)
	defer cancel()

	for attempt := 0; attempt < 2; attempt++ {
		a, err := r.activate(tenantID)
		if err != nil {
			return nil, err
		}
		value, err := a.call(ctx, apply)
		if errors.Is(err, errDeactivated) {
			continue
		}
		return value, err
	}
	return nil, unavailableError(tenantID, "ledger actor is deactivating")
}

// activate returns the tenant's actor, spawning one if needed. The map
// insert under the lock makes activation single-flight; the actor loads
// its state before consuming mail.
func (r *Registry) activate(tenantID string) (*actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, unavailableError(tenantID, "ledger registry is shut down")
	}
	if a, ok := r.actors[tenantID]; ok {
		return a, nil
	}
	a := &actor{
		tenantID: tenantID,
		registry: r,
		mailbox:  make(chan call, r.mailboxSize),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	r.actors[tenantID] = a
	go a.run()
	metrics.RecordActorActivation()
	return a, nil
}

// tryDeregister removes an idle actor unless mail raced in after its
// timer fired.
func (r *Registry) tryDeregister(a *actor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(a.mailbox) > 0 {
		return false
	}
	delete(r.actors, a.tenantID)
	return true
}

func (r *Registry) deregister(a *actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actors, a.tenantID)
}

func unavailableError(tenantID, message string) error {
	return apperrors.WithMetadata(apperrors.CodeLedgerActorUnavailable, message,
		map[string]string{"Tenant": tenantID})
}

type call struct {
	ctx   context.Context
	apply func(context.Context, *actor) (any, error)
	reply chan result
}

type result struct {
	value any
	err   error
}

type actor struct {
	tenantID string
	registry *Registry
	mailbox  chan call
	quit     chan struct{}
	stopped  chan struct{}

	// Loop-owned; only run() touches these after load.
	account domain.Account
	entries map[string]domain.Entry
}

func (a *actor) call(ctx context.Context, apply func(context.Context, *actor) (any, error)) (any, error) {
	c := call{ctx: ctx, apply: apply, reply: make(chan result, 1)}
	select {
	case a.mailbox <- c:
	case <-a.stopped:
		return nil, errDeactivated
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, unavailableError(a.tenantID, "ledger actor mailbox is full")
	}
	select {
	case res := <-c.reply:
		return res.value, res.err
	case <-a.stopped:
		// The send raced past the final drain; the call will never
		// be served.
		select {
		case res := <-c.reply:
			return res.value, res.err
		default:
			return nil, errDeactivated
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *actor) run() {
	if err := a.load(); err != nil {
		a.registry.logger.Error("ledger actor activation failed",
			"tenant", a.tenantID, "error", err)
		a.registry.deregister(a)
		a.drain(err)
		close(a.stopped)
		metrics.RecordActorDeactivation()
		return
	}
	a.registry.logger.Debug("ledger actor activated", "tenant", a.tenantID)

	idle := time.NewTimer(a.registry.idleTTL)
	defer idle.Stop()
	for {
		select {
		case c := <-a.mailbox:
			a.handle(c)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(a.registry.idleTTL)
		case <-idle.C:
			if a.deactivate() {
				return
			}
			idle.Reset(a.registry.idleTTL)
		case <-a.quit:
			a.flush(context.Background())
			a.drain(errDeactivated)
			close(a.stopped)
			metrics.RecordActorDeactivation()
			return
		}
	}
}

// load hydrates state from the snapshot cache, falling back to the
// store. Cache failures degrade to a cold load, never a failed one.
func (a *actor) load() error {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.ActorCall)
	defer cancel()

	account, entries, ok, err := a.registry.cache.Load(ctx, a.tenantID)
	if err != nil {
		a.registry.logger.Warn("ledger snapshot read failed",
			"tenant", a.tenantID, "error", err)
		ok = false
	}
	if !ok {
		account, entries, err = a.registry.store.LoadAccount(ctx, a.tenantID)
		if err != nil {
			return fmt.Errorf("load ledger account: %w", err)
		}
	}
	a.account = account
	a.account.TenantID = a.tenantID
	a.entries = make(map[string]domain.Entry, len(entries))
	for _, entry := range entries {
		a.entries[entry.InvoiceID] = entry
	}
	return nil
}

func (a *actor) handle(c call) {
	if err := c.ctx.Err(); err != nil {
		c.reply <- result{err: err}
		return
	}
	value, err := c.apply(c.ctx, a)
	c.reply <- result{value: value, err: err}
}

// deactivate flushes a snapshot and removes the actor. It reports false
// when the flush fails or mail raced in, keeping the actor alive for
// another idle window.
func (a *actor) deactivate() bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.ActorCall)
	err := a.registry.cache.Store(ctx, a.account, a.entriesSlice())
	cancel()
	if err != nil {
		a.registry.logger.Warn("ledger snapshot flush failed, actor stays active",
			"tenant", a.tenantID, "error", err)
		return false
	}
	if !a.registry.tryDeregister(a) {
		return false
	}
	a.drain(errDeactivated)
	close(a.stopped)
	a.registry.logger.Debug("ledger actor deactivated", "tenant", a.tenantID)
	metrics.RecordActorDeactivation()
	return true
}

func (a *actor) drain(err error) {
	for {
		select {
		case c := <-a.mailbox:
			c.reply <- result{err: err}
		default:
			return
		}
	}
}

func (a *actor) upsert(ctx context.Context, entry domain.Entry) (domain.Account, error) {
	account := a.account
	if previous, ok := a.entries[entry.InvoiceID]; ok {
		account = account.Retract(previous)
	} else {
		account.EntryCount++
	}
	account = account.Apply(entry)
	account.UpdatedAt = entry.UpdatedAt

	if err := a.registry.store.SaveEntry(ctx, a.tenantID, entry, account); err != nil {
		return domain.Account{}, fmt.Errorf("persist ledger entry: %w", err)
	}
	a.entries[entry.InvoiceID] = entry
	a.account = account
	a.refreshSnapshot(ctx)
	return account, nil
}

func (a *actor) setStatus(ctx context.Context, invoiceID string, status domain.EntryStatus) (domain.Account, error) {
	previous, ok := a.entries[invoiceID]
	if !ok {
		return domain.Account{}, storage.ErrNotFound
	}
	if previous.Status == status {
		// Redelivered transition; totals already reflect it.
		return a.account, nil
	}
	if previous.Status.Final() {
		// A settled or voided entry never reopens from a late replay.
		return a.account, nil
	}
	entry := previous
	entry.Status = status
	entry.UpdatedAt = a.registry.clock().UTC()

	account := a.account.Retract(previous).Apply(entry)
	account.UpdatedAt = entry.UpdatedAt
	if err := a.registry.store.SaveEntry(ctx, a.tenantID, entry, account); err != nil {
		return domain.Account{}, fmt.Errorf("persist ledger entry: %w", err)
	}
	a.entries[invoiceID] = entry
	a.account = account
	a.refreshSnapshot(ctx)
	return account, nil
}

func (a *actor) remove(ctx context.Context, invoiceID string) (domain.Account, error) {
	previous, ok := a.entries[invoiceID]
	if !ok {
		return domain.Account{}, storage.ErrNotFound
	}
	account := a.account.Retract(previous)
	account.EntryCount--
	account.UpdatedAt = a.registry.clock().UTC()

	if err := a.registry.store.DeleteEntry(ctx, a.tenantID, invoiceID, account); err != nil {
		return domain.Account{}, fmt.Errorf("delete ledger entry: %w", err)
	}
	delete(a.entries, invoiceID)
	a.account = account
	a.refreshSnapshot(ctx)
	return account, nil
}

// refreshSnapshot keeps the warm-activation snapshot current after a
// write. A failed refresh invalidates the key so a later activation
// cannot read stale totals.
func (a *actor) refreshSnapshot(ctx context.Context) {
	if err := a.registry.cache.Store(ctx, a.account, a.entriesSlice()); err != nil {
		a.registry.logger.Warn("ledger snapshot refresh failed",
			"tenant", a.tenantID, "error", err)
		if err := a.registry.cache.Invalidate(ctx, a.tenantID); err != nil {
			a.registry.logger.Warn("ledger snapshot invalidation failed",
				"tenant", a.tenantID, "error", err)
		}
	}
}

// flush writes a best-effort snapshot during shutdown.
func (a *actor) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.ActorCall)
	defer cancel()
	if err := a.registry.cache.Store(ctx, a.account, a.entriesSlice()); err != nil {
		a.registry.logger.Warn("ledger snapshot flush failed",
			"tenant", a.tenantID, "error", err)
	}
}

func (a *actor) entriesSlice() []domain.Entry {
	entries := make([]domain.Entry, 0, len(a.entries))
	for _, entry := range a.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].InvoiceID < entries[j].InvoiceID
	})
	return entries
}
