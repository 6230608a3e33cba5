package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := db.Exec(EventsSchema); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-event-tests
func TestLogEvent_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	e := Event{
		Type:      EventDecision,
		RunID:     "run-1",
		Executor:  "research_agent",
		Message:   "decision",
		Fields:    map[string]any{"decision": "proceed"},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogEvent(db, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM run_events").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var runID, eventType, fields string
	db.QueryRow("SELECT run_id, event_type, fields_json FROM run_events").Scan(&runID, &eventType, &fields)
	if runID != "run-1" {
		t.Errorf("expected run_id 'run-1', got %q", runID)
	}
	if eventType != "decision" {
		t.Errorf("expected event_type 'decision', got %q", eventType)
	}
	if fields != `{"decision":"proceed"}` {
		t.Errorf("unexpected fields_json %q", fields)
	}
}

func TestLogEvent_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	if err := LogEvent(db, Event{Type: EventError, RunID: "run-2", Message: "boom"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM run_events").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogEvent_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogEvent(db, Event{Type: EventRunCompleted, RunID: "run-3", Message: "done"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var executor, fields sql.NullString
	db.QueryRow("SELECT executor, fields_json FROM run_events").Scan(&executor, &fields)
	if executor.Valid {
		t.Error("expected NULL executor for empty string")
	}
	if fields.Valid {
		t.Error("expected NULL fields_json for empty fields")
	}
}

func TestLogEvent_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogEvent(db, Event{Type: EventError, RunID: "run-4", Message: "boom"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

func TestSQLSink_Publish(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	rec := NewRecorder(nil, SQLSink{DB: db})
	rec.StateTransition("run-5", "analyst_agent", "IDLE", "PLANNING", "start", false)
	rec.RunCompleted("run-5", "completed", 88)

	var count int
	db.QueryRow("SELECT COUNT(*) FROM run_events WHERE run_id = 'run-5'").Scan(&count)
	if count != 2 {
		t.Errorf("expected 2 rows, got %d", count)
	}
}

// #endregion log-event-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	if result := nullIfEmpty(""); result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	if result := nullIfEmpty("hello"); result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
