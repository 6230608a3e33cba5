package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/agent-boss/internal/logging"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region schema

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                 TEXT PRIMARY KEY,
	goal               TEXT NOT NULL,
	status             TEXT NOT NULL,
	overall_confidence REAL NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL,
	completed_at       TEXT
);

CREATE TABLE IF NOT EXISTS agent_decisions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	task_id       TEXT NOT NULL,
	executor      TEXT NOT NULL,
	decision      TEXT NOT NULL,
	reasoning     TEXT,
	context_json  TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS confidence_scores (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	task_id       TEXT NOT NULL,
	executor      TEXT NOT NULL,
	self_score    INTEGER NOT NULL,
	second_score  INTEGER NOT NULL,
	attempt       INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS run_results (
	run_id        TEXT PRIMARY KEY,
	result_json   TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_confidence_scores_executor
ON confidence_scores(executor, created_at);
`
// #endregion schema

// #region store-struct
// Store is the SQLite-backed run memory. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	return newStore(db)
}

// newStore prepares db and takes ownership of it. db is closed on failure.
func newStore(db *sql.DB) (*Store, error) {
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if _, err := db.Exec(logging.EventsSchema); err != nil {
		return fmt.Errorf("migrate events: %w", err)
	}
	return nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for the event sink.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion close

// #region runs
// CreateRun inserts an in-progress run with a fresh id.
func (s *Store) CreateRun(goal string) (Run, error) {
	run := Run{
		ID:        uuid.New().String(),
		Goal:      goal,
		Status:    StatusInProgress,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, goal, status, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Goal, string(run.Status), run.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final result and marks the run in one transaction.
func (s *Store) FinishRun(result task.OrchestrationResult, status RunStatus) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	now := s.now().UTC().Format(timeLayout)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE runs SET status = ?, overall_confidence = ?, completed_at = ? WHERE id = ?`,
		string(status), result.OverallConfidence, now, result.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update run %s: %w", result.RunID, sql.ErrNoRows)
	}

	_, err = tx.Exec(
		`INSERT INTO run_results (run_id, result_json, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET result_json = excluded.result_json, created_at = excluded.created_at`,
		result.RunID, string(resultJSON), now,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetRun reads one run by id.
func (s *Store) GetRun(id string) (Run, error) {
	row := s.db.QueryRow(
		`SELECT id, goal, status, overall_confidence, created_at, completed_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, goal, status, overall_confidence, created_at, completed_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var status, createdStr string
	var completedStr sql.NullString
	if err := sc.Scan(&run.ID, &run.Goal, &status, &run.OverallConfidence, &createdStr, &completedStr); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if completedStr.Valid {
		run.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedStr.String)
	}
	return run, nil
}
// #endregion runs

// #region decisions
// RecordDecision appends a decision row.
func (s *Store) RecordDecision(rec DecisionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	var contextJSON string
	if len(rec.Context) > 0 {
		b, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("marshal decision context: %w", err)
		}
		contextJSON = string(b)
	}
	_, err := s.db.Exec(
		`INSERT INTO agent_decisions (run_id, task_id, executor, decision, reasoning, context_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.TaskID, rec.Executor, rec.Decision,
		nullIfEmpty(rec.Reasoning), nullIfEmpty(contextJSON),
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Decisions returns the decisions for a run in insertion order.
func (s *Store) Decisions(runID string) ([]DecisionRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, task_id, executor, decision, reasoning, context_json, created_at
		 FROM agent_decisions WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var reasoning, contextJSON sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.RunID, &rec.TaskID, &rec.Executor, &rec.Decision, &reasoning, &contextJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		rec.Reasoning = reasoning.String
		if contextJSON.Valid {
			if err := json.Unmarshal([]byte(contextJSON.String), &rec.Context); err != nil {
				return nil, fmt.Errorf("unmarshal decision context: %w", err)
			}
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion decisions

// #region scores
// RecordScore appends a confidence score row.
func (s *Store) RecordScore(rec ScoreRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO confidence_scores (run_id, task_id, executor, self_score, second_score, attempt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.TaskID, rec.Executor, rec.SelfScore, rec.SecondScore, rec.Attempt,
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// Scores returns the scores for a run in insertion order.
func (s *Store) Scores(runID string) ([]ScoreRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, task_id, executor, self_score, second_score, attempt, created_at
		 FROM confidence_scores WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []ScoreRecord
	for rows.Next() {
		var rec ScoreRecord
		var createdStr string
		if err := rows.Scan(&rec.RunID, &rec.TaskID, &rec.Executor, &rec.SelfScore, &rec.SecondScore, &rec.Attempt, &createdStr); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion scores

// #region results
// Result reads the stored final result of a run.
func (s *Store) Result(runID string) (task.OrchestrationResult, error) {
	var resultJSON string
	err := s.db.QueryRow(`SELECT result_json FROM run_results WHERE run_id = ?`, runID).Scan(&resultJSON)
	if err != nil {
		return task.OrchestrationResult{}, fmt.Errorf("get result %s: %w", runID, err)
	}
	var res task.OrchestrationResult
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return task.OrchestrationResult{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return res, nil
}
// #endregion results

// #region events
// Events returns the recorded events for a run in insertion order.
func (s *Store) Events(runID string) ([]logging.Event, error) {
	rows, err := s.db.Query(
		`SELECT run_id, event_type, executor, message, fields_json, created_at
		 FROM run_events WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []logging.Event
	for rows.Next() {
		var e logging.Event
		var eventType, createdStr string
		var executor, fieldsJSON sql.NullString
		if err := rows.Scan(&e.RunID, &eventType, &executor, &e.Message, &fieldsJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = logging.EventType(eventType)
		e.Executor = executor.String
		if fieldsJSON.Valid {
			if err := json.Unmarshal([]byte(fieldsJSON.String), &e.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal event fields: %w", err)
			}
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion events

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
