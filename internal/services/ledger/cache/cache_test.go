package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/momentum-oss/momentum/internal/services/ledger/domain"
)

func newTestCache(t *testing.T) (*StateCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute), mr
}

func testState() (domain.Account, []domain.Entry) {
	at := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	account := domain.Account{
		TenantID:         "acme",
		OutstandingCents: 12500,
		PaidCents:        300,
		EntryCount:       2,
		UpdatedAt:        at,
	}
	entries := []domain.Entry{
		{InvoiceID: "inv-1", AmountCents: 12500, Status: domain.EntryStatusOutstanding, UpdatedAt: at},
		{InvoiceID: "inv-2", AmountCents: 300, Status: domain.EntryStatusPaid, UpdatedAt: at},
	}
	return account, entries
}

func TestStateCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	account, entries := testState()

	if err := cache.Store(context.Background(), account, entries); err != nil {
		t.Fatalf("store snapshot: %v", err)
	}

	got, gotEntries, ok, err := cache.Load(context.Background(), "acme")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got != account {
		t.Fatalf("account = %+v, want %+v", got, account)
	}
	if len(gotEntries) != 2 || gotEntries[0] != entries[0] || gotEntries[1] != entries[1] {
		t.Fatalf("entries = %+v, want %+v", gotEntries, entries)
	}
}

func TestStateCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	_, _, ok, err := cache.Load(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if ok {
		t.Fatal("expected a cache miss")
	}
}

func TestStateCacheSnapshotExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	account, entries := testState()

	if err := cache.Store(context.Background(), account, entries); err != nil {
		t.Fatalf("store snapshot: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	_, _, ok, err := cache.Load(context.Background(), "acme")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if ok {
		t.Fatal("expected an expired snapshot to miss")
	}
}

func TestStateCacheDropsCorruptSnapshot(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Set(stateKeyPrefix+"acme", "{not json")

	_, _, ok, err := cache.Load(context.Background(), "acme")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if ok {
		t.Fatal("expected corrupt snapshot to miss")
	}
	if mr.Exists(stateKeyPrefix + "acme") {
		t.Fatal("expected corrupt snapshot to be deleted")
	}
}

func TestStateCacheInvalidate(t *testing.T) {
	cache, mr := newTestCache(t)
	account, entries := testState()

	if err := cache.Store(context.Background(), account, entries); err != nil {
		t.Fatalf("store snapshot: %v", err)
	}
	if err := cache.Invalidate(context.Background(), "acme"); err != nil {
		t.Fatalf("invalidate snapshot: %v", err)
	}
	if mr.Exists(stateKeyPrefix + "acme") {
		t.Fatal("expected snapshot key to be removed")
	}
}

func TestNilCacheIsNoOp(t *testing.T) {
	var cache *StateCache
	account, entries := testState()

	if err := cache.Store(context.Background(), account, entries); err != nil {
		t.Fatalf("nil cache store: %v", err)
	}
	if _, _, ok, err := cache.Load(context.Background(), "acme"); err != nil || ok {
		t.Fatalf("nil cache load = ok %v err %v, want miss", ok, err)
	}
	if err := cache.Invalidate(context.Background(), "acme"); err != nil {
		t.Fatalf("nil cache invalidate: %v", err)
	}
}
