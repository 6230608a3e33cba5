// Package memory persists runs, decisions, confidence scores and results in SQLite.
package memory

import "time"

// #region run
// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// Run is one row of the runs table.
type Run struct {
	ID                string    `json:"id"`
	Goal              string    `json:"goal"`
	Status            RunStatus `json:"status"`
	OverallConfidence float64   `json:"overall_confidence"`
	CreatedAt         time.Time `json:"created_at"`
	CompletedAt       time.Time `json:"completed_at,omitempty"`
}
// #endregion run

// #region decision-record
// DecisionRecord is one decision taken for an executor attempt.
type DecisionRecord struct {
	RunID     string         `json:"run_id"`
	TaskID    string         `json:"task_id"`
	Executor  string         `json:"executor"`
	Decision  string         `json:"decision"`
	Reasoning string         `json:"reasoning"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
// #endregion decision-record

// #region score-record
// ScoreRecord holds both raw scores for one attempt as 0–100 integers.
type ScoreRecord struct {
	RunID       string    `json:"run_id"`
	TaskID      string    `json:"task_id"`
	Executor    string    `json:"executor"`
	SelfScore   int       `json:"self_score"`
	SecondScore int       `json:"second_score"`
	Attempt     int       `json:"attempt"`
	CreatedAt   time.Time `json:"created_at"`
}

// Combined returns min(self, second) on the 0–100 scale.
func (r ScoreRecord) Combined() int {
	if r.SecondScore < r.SelfScore {
		return r.SecondScore
	}
	return r.SelfScore
}
// #endregion score-record

// #region executor-stat
// ExecutorStat is a decay-weighted summary of one executor's combined scores.
type ExecutorStat struct {
	Executor        string  `json:"executor"`
	Samples         int     `json:"samples"`
	WeightedAverage float64 `json:"weighted_average"` // 0–100
}
// #endregion executor-stat
