package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region schema

// EventsSchema creates the table LogEvent writes to.
const EventsSchema = `
CREATE TABLE IF NOT EXISTS run_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	executor    TEXT,
	message     TEXT NOT NULL,
	fields_json TEXT,
	created_at  TEXT NOT NULL
);
`

// #endregion schema

// #region log-event

// LogEvent writes an event row to the run_events table.
func LogEvent(db *sql.DB, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var fieldsJSON string
	if len(e.Fields) > 0 {
		b, err := json.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("marshal event fields: %w", err)
		}
		fieldsJSON = string(b)
	}

	_, err := db.Exec(
		`INSERT INTO run_events (run_id, event_type, executor, message, fields_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID,
		string(e.Type),
		nullIfEmpty(e.Executor),
		e.Message,
		nullIfEmpty(fieldsJSON),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// SQLSink persists events through LogEvent.
type SQLSink struct {
	DB *sql.DB
}

// Publish writes e.
func (s SQLSink) Publish(e Event) error {
	return LogEvent(s.DB, e)
}

// #endregion log-event

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
