// Package cache snapshots ledger actor state in Redis so a deactivated
// tenant can re-activate warm without touching Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/momentum-oss/momentum/internal/services/ledger/domain"
)

const (
	// stateKeyPrefix namespaces tenant state snapshots in Redis.
	stateKeyPrefix = "momentum:ledger:state:"
	defaultTTL     = 15 * time.Minute
)

type snapshot struct {
	TenantID         string          `json:"tenant_id"`
	OutstandingCents int64           `json:"outstanding_cents"`
	PaidCents        int64           `json:"paid_cents"`
	EntryCount       int             `json:"entry_count"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Entries          []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	InvoiceID   string    `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StateCache stores serialized actor state with a TTL. A nil cache is a
// no-op, so the actor runtime works with caching disabled.
type StateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps a Redis client as a state cache. Non-positive TTLs use the
// default snapshot lifetime.
func New(client *redis.Client, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &StateCache{client: client, ttl: ttl}
}

func (c *StateCache) disabled() bool {
	return c == nil || c.client == nil
}

// Load returns the cached state for a tenant. The second return reports
// whether a usable snapshot existed; corrupt snapshots are dropped and
// reported as a miss so activation falls back to Postgres.
func (c *StateCache) Load(ctx context.Context, tenantID string) (domain.Account, []domain.Entry, bool, error) {
	if c.disabled() {
		return domain.Account{}, nil, false, nil
	}
	raw, err := c.client.Get(ctx, stateKeyPrefix+tenantID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Account{}, nil, false, nil
	}
	if err != nil {
		return domain.Account{}, nil, false, fmt.Errorf("load ledger state cache: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		_ = c.client.Del(ctx, stateKeyPrefix+tenantID).Err()
		return domain.Account{}, nil, false, nil
	}
	account := domain.Account{
		TenantID:         snap.TenantID,
		OutstandingCents: snap.OutstandingCents,
		PaidCents:        snap.PaidCents,
		EntryCount:       snap.EntryCount,
		UpdatedAt:        snap.UpdatedAt,
	}
	entries := make([]domain.Entry, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		entries = append(entries, domain.Entry{
			InvoiceID:   e.InvoiceID,
			AmountCents: e.AmountCents,
			Status:      domain.EntryStatus(e.Status),
			UpdatedAt:   e.UpdatedAt,
		})
	}
	return account, entries, true, nil
}

// Store writes a tenant state snapshot with the cache TTL.
func (c *StateCache) Store(ctx context.Context, account domain.Account, entries []domain.Entry) error {
	if c.disabled() {
		return nil
	}
	snap := snapshot{
		TenantID:         account.TenantID,
		OutstandingCents: account.OutstandingCents,
		PaidCents:        account.PaidCents,
		EntryCount:       account.EntryCount,
		UpdatedAt:        account.UpdatedAt,
		Entries:          make([]snapshotEntry, 0, len(entries)),
	}
	for _, e := range entries {
		snap.Entries = append(snap.Entries, snapshotEntry{
			InvoiceID:   e.InvoiceID,
			AmountCents: e.AmountCents,
			Status:      string(e.Status),
			UpdatedAt:   e.UpdatedAt,
		})
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode ledger state snapshot: %w", err)
	}
	if err := c.client.Set(ctx, stateKeyPrefix+account.TenantID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("store ledger state snapshot: %w", err)
	}
	return nil
}

// Invalidate drops a tenant snapshot so the next activation reads
// Postgres instead of possibly stale cache state.
func (c *StateCache) Invalidate(ctx context.Context, tenantID string) error {
	if c.disabled() {
		return nil
	}
	if err := c.client.Del(ctx, stateKeyPrefix+tenantID).Err(); err != nil {
		return fmt.Errorf("invalidate ledger state snapshot: %w", err)
	}
	return nil
}
