package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/momentum-oss/momentum/internal/services/ledger/domain"
	"github.com/momentum-oss/momentum/internal/services/ledger/storage"
)

func openMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("open sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
		_ = sqlDB.Close()
	})
	return NewStore(sqlDB), mock
}

func testEntry() domain.Entry {
	return domain.Entry{
		InvoiceID:   "inv-1",
		AmountCents: 12500,
		Status:      domain.EntryStatusOutstanding,
		UpdatedAt:   time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC),
	}
}

func testAccount() domain.Account {
	return domain.Account{
		TenantID:         "acme",
		OutstandingCents: 12500,
		PaidCents:        0,
		EntryCount:       1,
		UpdatedAt:        time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestLoadAccountMissingTenant(t *testing.T) {
	store, mock := openMockStore(t)

	mock.ExpectQuery("SELECT outstanding_cents, paid_cents, entry_count, updated_at").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"outstanding_cents", "paid_cents", "entry_count", "updated_at"}))

	account, entries, err := store.LoadAccount(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if account.TenantID != "ghost" || account.OutstandingCents != 0 {
		t.Fatalf("expected zero account, got %+v", account)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestLoadAccountWithEntries(t *testing.T) {
	store, mock := openMockStore(t)
	at := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT outstanding_cents, paid_cents, entry_count, updated_at").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"outstanding_cents", "paid_cents", "entry_count", "updated_at"}).
			AddRow(int64(12500), int64(300), 2, at))
	mock.ExpectQuery("SELECT invoice_id, amount_cents, status, updated_at").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"invoice_id", "amount_cents", "status", "updated_at"}).
			AddRow("inv-1", int64(12500), "outstanding", at).
			AddRow("inv-2", int64(300), "paid", at))

	account, entries, err := store.LoadAccount(context.Background(), "acme")
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	if account.OutstandingCents != 12500 || account.PaidCents != 300 || account.EntryCount != 2 {
		t.Fatalf("unexpected account: %+v", account)
	}
	if len(entries) != 2 || entries[1].Status != domain.EntryStatusPaid {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestSaveEntryCommitsBothWrites(t *testing.T) {
	store, mock := openMockStore(t)
	entry := testEntry()
	account := testAccount()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs("acme", entry.InvoiceID, entry.AmountCents, string(entry.Status), entry.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_accounts").
		WithArgs(account.TenantID, account.OutstandingCents, account.PaidCents, account.EntryCount, account.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.SaveEntry(context.Background(), "acme", entry, account); err != nil {
		t.Fatalf("save entry: %v", err)
	}
}

func TestSaveEntryRollsBackOnAccountFailure(t *testing.T) {
	store, mock := openMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_accounts").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.SaveEntry(context.Background(), "acme", testEntry(), testAccount())
	if err == nil {
		t.Fatal("expected save error")
	}
}

func TestDeleteEntryRemovesAndUpdatesTotals(t *testing.T) {
	store, mock := openMockStore(t)
	account := testAccount()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM ledger_entries").
		WithArgs("acme", "inv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.DeleteEntry(context.Background(), "acme", "inv-1", account); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
}

func TestDeleteEntryMissingRowNotFound(t *testing.T) {
	store, mock := openMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM ledger_entries").
		WithArgs("acme", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.DeleteEntry(context.Background(), "acme", "ghost", testAccount())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
