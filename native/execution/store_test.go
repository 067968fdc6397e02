package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"payguard/core/types"
	"payguard/storage"
)

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	executedAt := time.Date(2024, 6, 1, 10, 31, 12, 0, time.UTC)
	record := &types.TransactionRecord{
		TransactionID: "txn-1",
		IntentID:      "intent-1",
		UserID:        "user_1",
		Amount:        decimal.RequireFromString("450.50"),
		MerchantVPA:   "shop@upi",
		State:         types.TxStateCompleted,
		CreatedAt:     time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
		ApprovalHash:  "abc123",
		ExecutionHash: "def456",
		ExecutedAt:    &executedAt,
	}
	if err := store.Put(record); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, ok, err := store.Get("txn-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected record")
	}
	if !loaded.Amount.Equal(record.Amount) {
		t.Fatalf("amount mismatch: %s", loaded.Amount)
	}
	if loaded.State != types.TxStateCompleted {
		t.Fatalf("unexpected state: %s", loaded.State)
	}
	if !loaded.CreatedAt.Equal(record.CreatedAt) {
		t.Fatalf("created_at mismatch: %s", loaded.CreatedAt)
	}
	if loaded.ExecutedAt == nil || !loaded.ExecutedAt.Equal(executedAt) {
		t.Fatalf("executed_at mismatch: %v", loaded.ExecutedAt)
	}
	if loaded.ApprovalHash != "abc123" || loaded.ExecutionHash != "def456" {
		t.Fatalf("hash mismatch: %+v", loaded)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	_, ok, err := store.Get("absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected no record")
	}
}

func TestUserTransactionsNewestFirst(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		record := &types.TransactionRecord{
			TransactionID: string(rune('a' + i)),
			UserID:        "user_1",
			Amount:        decimal.NewFromInt(int64(100 * (i + 1))),
			MerchantVPA:   "shop@upi",
			State:         types.TxStateCompleted,
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Put(record); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	// Another user's record must not leak into the scan.
	other := &types.TransactionRecord{
		TransactionID: "other",
		UserID:        "user_2",
		Amount:        decimal.NewFromInt(5),
		State:         types.TxStateCompleted,
		CreatedAt:     base,
	}
	if err := store.Put(other); err != nil {
		t.Fatalf("put other: %v", err)
	}

	records, err := store.UserTransactions("user_1", 0)
	if err != nil {
		t.Fatalf("user transactions: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].CreatedAt.After(records[i-1].CreatedAt) {
			t.Fatalf("records not newest-first at %d", i)
		}
	}

	limited, err := store.UserTransactions("user_1", 2)
	if err != nil {
		t.Fatalf("limited scan: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 records, got %d", len(limited))
	}
	if limited[0].TransactionID != "d" {
		t.Fatalf("expected newest record first, got %s", limited[0].TransactionID)
	}
}

func TestIdempotencyLifecycle(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	if _, ok, err := store.Idempotency("key-1", now); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}
	if err := store.PutIdempotency("key-1", "txn-1", now.Add(24*time.Hour)); err != nil {
		t.Fatalf("put idempotency: %v", err)
	}

	id, ok, err := store.Idempotency("key-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("idempotency: %v", err)
	}
	if !ok || id != "txn-1" {
		t.Fatalf("expected live entry for txn-1, got ok=%v id=%s", ok, id)
	}

	// Past the TTL the entry is evicted and the key becomes reusable.
	if _, ok, err := store.Idempotency("key-1", now.Add(25*time.Hour)); err != nil || ok {
		t.Fatalf("expected expired entry gone, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := store.Idempotency("key-1", now.Add(time.Hour)); ok {
		t.Fatal("expired entry should have been deleted")
	}
}
