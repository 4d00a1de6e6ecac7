package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
	"github.com/momentum-oss/momentum/internal/platform/httpserver"
	"github.com/momentum-oss/momentum/internal/services/ledger/actor"
	"github.com/momentum-oss/momentum/internal/services/ledger/domain"
)

// memStore is an in-memory ledger store for handler tests; it tracks the
// last written account per tenant.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	entries  map[string]map[string]domain.Entry
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]domain.Account{},
		entries:  map[string]map[string]domain.Entry{},
	}
}

func (m *memStore) LoadAccount(_ context.Context, tenantID string) (domain.Account, []domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[tenantID]
	if !ok {
		return domain.Account{TenantID: tenantID}, nil, nil
	}
	entries := make([]domain.Entry, 0, len(m.entries[tenantID]))
	for _, entry := range m.entries[tenantID] {
		entries = append(entries, entry)
	}
	return account, entries, nil
}

func (m *memStore) SaveEntry(_ context.Context, tenantID string, entry domain.Entry, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[tenantID] == nil {
		m.entries[tenantID] = map[string]domain.Entry{}
	}
	m.entries[tenantID][entry.InvoiceID] = entry
	m.accounts[tenantID] = account
	return nil
}

func (m *memStore) DeleteEntry(_ context.Context, tenantID, invoiceID string, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[tenantID], invoiceID)
	m.accounts[tenantID] = account
	return nil
}

func testRouter(t *testing.T, store *memStore, opts Options) http.Handler {
	t.Helper()
	registry, err := actor.New(actor.Options{
		Store: store,
		Clock: func() time.Time { return time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		registry.Close(ctx)
	})
	opts.Actors = registry
	handler, err := NewHandler(opts)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler.Routes()
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.Response {
	t.Helper()
	var resp apperrors.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestUpsertEntryEndpoint(t *testing.T) {
	router := testRouter(t, newMemStore(), Options{})

	rec := doJSON(t, router, http.MethodPost, "/v1/tenants/acme/entries",
		`{"invoice_id":"inv-1","amount_cents":12500,"status":"outstanding"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TenantID != "acme" {
		t.Fatalf("tenant = %q, want acme", resp.TenantID)
	}
	if resp.OutstandingCents != 12500 || resp.PaidCents != 0 || resp.EntryCount != 1 {
		t.Fatalf("unexpected totals: %+v", resp)
	}
	if rec.Header().Get(httpserver.RequestIDHeader) == "" {
		t.Fatal("expected request id header on response")
	}
}

func TestUpsertEntryRejectsMalformedBody(t *testing.T) {
	router := testRouter(t, newMemStore(), Options{})

	rec := doJSON(t, router, http.MethodPost, "/v1/tenants/acme/entries", `{]`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != string(apperrors.CodeRequestInvalid) {
		t.Fatalf("code = %q, want %s", resp.Code, apperrors.CodeRequestInvalid)
	}
}

func TestUpsertEntryRejectsUnknownStatus(t *testing.T) {
	router := testRouter(t, newMemStore(), Options{})

	rec := doJSON(t, router, http.MethodPost, "/v1/tenants/acme/entries",
		`{"invoice_id":"inv-1","amount_cents":100,"status":"bogus"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeError(t, rec); resp.Code != string(apperrors.CodeLedgerEntryInvalid) {
		t.Fatalf("code = %q, want %s", resp.Code, apperrors.CodeLedgerEntryInvalid)
	}
}

func TestAccountEndpointReturnsTotals(t *testing.T) {
	store := newMemStore()
	at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	store.accounts["acme"] = domain.Account{
		TenantID:         "acme",
		OutstandingCents: 700,
		PaidCents:        300,
		EntryCount:       2,
		UpdatedAt:        at,
	}
	store.entries["acme"] = map[string]domain.Entry{
		"inv-1": {InvoiceID: "inv-1", AmountCents: 700, Status: domain.EntryStatusOutstanding, UpdatedAt: at},
		"inv-2": {InvoiceID: "inv-2", AmountCents: 300, Status: domain.EntryStatusPaid, UpdatedAt: at},
	}
	router := testRouter(t, store, Options{})

	rec := doJSON(t, router, http.MethodGet, "/v1/tenants/acme", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OutstandingCents != 700 || resp.PaidCents != 300 || resp.EntryCount != 2 {
		t.Fatalf("unexpected totals: %+v", resp)
	}
}

func TestEntryLifecycleEndpoints(t *testing.T) {
	router := testRouter(t, newMemStore(), Options{})

	rec := doJSON(t, router, http.MethodPost, "/v1/tenants/acme/entries",
		`{"invoice_id":"inv-1","amount_cents":1000,"status":"outstanding"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/tenants/acme/entries", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var list entryListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Entries) != 1 || list.Entries[0].InvoiceID != "inv-1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/tenants/acme/entries/inv-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var entry entryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.AmountCents != 1000 || entry.Status != "outstanding" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	rec = doJSON(t, router, http.MethodDelete, "/v1/tenants/acme/entries/inv-1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/tenants/acme/entries/inv-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != string(apperrors.CodeNotFound) {
		t.Fatalf("code = %q, want %s", resp.Code, apperrors.CodeNotFound)
	}
}

func TestTenantPathValidation(t *testing.T) {
	router := testRouter(t, newMemStore(), Options{})

	for _, tenant := range []string{"ACME", "-lead", "bad!slug"} {
		rec := doJSON(t, router, http.MethodGet, "/v1/tenants/"+tenant, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("tenant %q: expected 400, got %d", tenant, rec.Code)
		}
		if resp := decodeError(t, rec); resp.Code != string(apperrors.CodeTenantInvalid) {
			t.Fatalf("tenant %q: code = %q", tenant, resp.Code)
		}
	}
}

func TestHealthProbes(t *testing.T) {
	router := testRouter(t, newMemStore(), Options{
		Ready: func(context.Context) error { return errors.New("postgres down") },
	})

	rec := doJSON(t, router, http.MethodGet, "/health/live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready: expected 503, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode ready body: %v", err)
	}
	if body["reason"] != "postgres down" {
		t.Fatalf("reason = %q", body["reason"])
	}
}
