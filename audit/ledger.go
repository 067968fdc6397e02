// Package audit persists the append-only event trail of the authorization
// core and exports archival snapshots of it.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"payguard/core/events"
	"payguard/core/types"
	"payguard/observability"
)

// DefaultScanLimit bounds Events calls that do not pass their own limit.
const DefaultScanLimit = 500

// Entry is a persisted audit row. Entries are immutable; the id is the
// insertion order.
type Entry struct {
	ID        int64             `json:"id"`
	EventType string            `json:"event_type"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Ledger is an append-only audit sink over an embedded sqlite database. It
// satisfies events.Emitter so engines can write to it without knowing about
// persistence; direct callers use LogEvent.
type Ledger struct {
	db      *sql.DB
	metrics *observability.AuditMetrics
	now     func() time.Time

	// Appends are serialized; sqlite allows one writer at a time and the
	// ledger must preserve insertion order.
	mu sync.Mutex
}

var _ events.Emitter = (*Ledger)(nil)

// Open opens (or creates) the ledger at path. Use ":memory:" for tests.
func Open(path string) (*Ledger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("audit: ledger path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open ledger: %w", err)
	}
	ledger := &Ledger{
		db:      db,
		metrics: observability.Audit(),
		now:     time.Now,
	}
	if err := ledger.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

func (l *Ledger) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event_type TEXT NOT NULL,
            payload TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("audit: init schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// SetNowFunc overrides the wall clock. Passing nil resets to time.Now.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	if l == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	l.now = now
}

// broadcastable is implemented by every typed event that can serialize itself
// into a flat attribute map.
type broadcastable interface {
	Event() *types.Event
}

// Emit appends a typed event. Events that withhold their payload (a nil
// Event(), usually missing identifiers) are dropped; append failures are
// logged because the Emitter contract has no error channel.
func (l *Ledger) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	var payload map[string]string
	if typed, ok := evt.(broadcastable); ok {
		event := typed.Event()
		if event == nil {
			return
		}
		eventType = event.Type
		payload = event.Attributes
	}
	if err := l.LogEvent(context.Background(), eventType, payload); err != nil {
		slog.Error("audit: append event failed", "type", eventType, "error", err)
	}
}

// LogEvent appends one event row. The payload is stored as JSON.
func (l *Ledger) LogEvent(ctx context.Context, eventType string, payload map[string]string) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("audit: ledger not initialised")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("audit: event type required")
	}
	if payload == nil {
		payload = map[string]string{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("audit: encode payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	const stmt = `INSERT INTO audit_events(event_type, payload, created_at) VALUES (?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, stmt, eventType, string(encoded), l.now().UTC()); err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	l.metrics.RecordEvent(eventType)
	return nil
}

// Events scans entries with id greater than sinceID in insertion order. A
// limit of zero or below applies DefaultScanLimit.
func (l *Ledger) Events(ctx context.Context, sinceID int64, limit int) ([]Entry, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("audit: ledger not initialised")
	}
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	const query = `SELECT id, event_type, payload, created_at FROM audit_events WHERE id > ? ORDER BY id ASC LIMIT ?`
	rows, err := l.db.QueryContext(ctx, query, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: scan events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// EventsBetween returns entries created within [start, end), oldest first.
// The archiver uses it to materialize export windows.
func (l *Ledger) EventsBetween(ctx context.Context, start, end time.Time) ([]Entry, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("audit: ledger not initialised")
	}
	const query = `SELECT id, event_type, payload, created_at FROM audit_events WHERE created_at >= ? AND created_at < ? ORDER BY id ASC`
	rows, err := l.db.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("audit: scan window: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	entries := make([]Entry, 0, 32)
	for rows.Next() {
		var entry Entry
		var payload string
		if err := rows.Scan(&entry.ID, &entry.EventType, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan row: %w", err)
		}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &entry.Payload); err != nil {
				return nil, fmt.Errorf("audit: decode payload for %d: %w", entry.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate rows: %w", err)
	}
	return entries, nil
}
