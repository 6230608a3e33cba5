package logging

import "time"

// #region event-type

// EventType names a structured orchestration event.
type EventType string

const (
	EventStateTransition EventType = "state_transition"
	EventDecision        EventType = "decision"
	EventConfidence      EventType = "confidence"
	EventToolCall        EventType = "tool_call"
	EventError           EventType = "error"
	EventRunCompleted    EventType = "run_completed"
)

// #endregion event-type

// #region event

// Event is one structured observation about a run.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Executor  string         `json:"executor,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// #endregion event
