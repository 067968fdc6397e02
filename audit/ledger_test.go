package audit

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"payguard/core/events"
)

func setupLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

type bareEvent struct{}

func (bareEvent) EventType() string { return "BARE" }

func TestLedgerAppendAndScan(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()

	payloads := []map[string]string{
		{"transactionId": "txn-1", "amount": "450.50"},
		{"transactionId": "txn-2"},
		nil,
	}
	for i, payload := range payloads {
		if err := ledger.LogEvent(ctx, "EXECUTION_COMPLETED", payload); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := ledger.Events(ctx, 0, 0)
	if err != nil {
		t.Fatalf("scan events: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.ID != int64(i+1) {
			t.Fatalf("entry %d: expected id %d, got %d", i, i+1, entry.ID)
		}
		if entry.EventType != "EXECUTION_COMPLETED" {
			t.Fatalf("entry %d: unexpected type %q", i, entry.EventType)
		}
	}
	if entries[0].Payload["amount"] != "450.50" {
		t.Fatalf("payload did not round-trip: %+v", entries[0].Payload)
	}
	if len(entries[2].Payload) != 0 {
		t.Fatalf("expected empty payload, got %+v", entries[2].Payload)
	}

	tail, err := ledger.Events(ctx, 1, 10)
	if err != nil {
		t.Fatalf("scan tail: %v", err)
	}
	if len(tail) != 2 || tail[0].ID != 2 {
		t.Fatalf("expected entries after id 1, got %+v", tail)
	}

	limited, err := ledger.Events(ctx, 0, 2)
	if err != nil {
		t.Fatalf("scan limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to cap scan at 2, got %d", len(limited))
	}
}

func TestLedgerRejectsBlankType(t *testing.T) {
	ledger := setupLedger(t)
	if err := ledger.LogEvent(context.Background(), "   ", nil); err == nil {
		t.Fatalf("expected error for blank event type")
	}
}

func TestLedgerEmitTypedEvent(t *testing.T) {
	ledger := setupLedger(t)
	ledger.Emit(events.ExecutionCompleted{
		TransactionID: "txn-9",
		SettlementRef: "UPI00AA11BB22CC",
		ExecutionHash: "deadbeef",
		Amount:        "120.00",
	})

	entries, err := ledger.Events(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("scan events: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].EventType != events.TypeExecutionCompleted {
		t.Fatalf("unexpected type %q", entries[0].EventType)
	}
	if entries[0].Payload["transactionId"] != "txn-9" || entries[0].Payload["settlementRef"] != "UPI00AA11BB22CC" {
		t.Fatalf("unexpected payload %+v", entries[0].Payload)
	}
}

func TestLedgerWithholdsIncompleteEvents(t *testing.T) {
	ledger := setupLedger(t)
	ledger.Emit(events.ExecutionStarted{TransactionID: "   "})

	entries, err := ledger.Events(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("scan events: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("withheld event should not be persisted, got %+v", entries)
	}
}

func TestLedgerEmitBareEvent(t *testing.T) {
	ledger := setupLedger(t)
	ledger.Emit(bareEvent{})

	entries, err := ledger.Events(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("scan events: %v", err)
	}
	if len(entries) != 1 || entries[0].EventType != "BARE" {
		t.Fatalf("expected bare event row, got %+v", entries)
	}
	if len(entries[0].Payload) != 0 {
		t.Fatalf("expected empty payload, got %+v", entries[0].Payload)
	}
}

func TestLedgerEventsBetween(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	current := base
	ledger.SetNowFunc(func() time.Time { return current })

	for i := 0; i < 3; i++ {
		if err := ledger.LogEvent(ctx, "POLICY_EVALUATED", map[string]string{"seq": string(rune('a' + i))}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		current = current.Add(time.Hour)
	}

	window, err := ledger.EventsBetween(ctx, base.Add(30*time.Minute), base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("scan window: %v", err)
	}
	if len(window) != 1 {
		t.Fatalf("expected 1 entry in window, got %d", len(window))
	}
	if window[0].ID != 2 {
		t.Fatalf("expected middle entry, got id %d", window[0].ID)
	}
}

func TestArchiverExportsWindow(t *testing.T) {
	ledger := setupLedger(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	current := base
	ledger.SetNowFunc(func() time.Time { return current })

	for i := 0; i < 3; i++ {
		if err := ledger.LogEvent(ctx, "TRANSACTION_CREATED", map[string]string{"transactionId": "txn"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		current = current.Add(time.Hour)
	}

	outputDir := t.TempDir()
	archiver, err := NewArchiver(ledger, outputDir)
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}

	result, err := archiver.Archive(ctx, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if result.Rows != 2 {
		t.Fatalf("expected 2 rows archived, got %d", result.Rows)
	}

	file, err := os.Open(result.CSVPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "id" || records[1][1] != "TRANSACTION_CREATED" {
		t.Fatalf("unexpected csv contents: %+v", records)
	}

	info, err := os.Stat(result.ParquetPath)
	if err != nil {
		t.Fatalf("stat parquet: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("parquet artefact is empty")
	}
}

func TestArchiverEmptyWindow(t *testing.T) {
	ledger := setupLedger(t)
	archiver, err := NewArchiver(ledger, t.TempDir())
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	result, err := archiver.Archive(context.Background(), start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if result.Rows != 0 || result.CSVPath != "" || result.ParquetPath != "" {
		t.Fatalf("empty window should produce no artefacts, got %+v", result)
	}
}
