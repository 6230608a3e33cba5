// Package statemachine is the execution substrate for one run: a closed set of
// states, a legal-transition table, a transition ceiling and per-state timeouts.
package statemachine

import (
	"sort"
	"time"
)

// #region states

// State is one execution state.
type State string

const (
	Idle                 State = "IDLE"
	Planning             State = "PLANNING"
	ToolExecution        State = "TOOL_EXECUTION"
	Observation          State = "OBSERVATION"
	Reflection           State = "REFLECTION"
	ConfidenceEvaluation State = "CONFIDENCE_EVALUATION"
	Replanning           State = "REPLANNING"
	ErrorRecovery        State = "ERROR_RECOVERY"
	Complete             State = "COMPLETE"
)

// #endregion states

// #region transitions

var allowedTransitions = map[State]map[State]struct{}{
	Idle: {
		Planning: {},
	},
	Planning: {
		ToolExecution: {},
		ErrorRecovery: {},
	},
	ToolExecution: {
		Observation:   {},
		ErrorRecovery: {},
	},
	Observation: {
		Reflection:    {},
		ErrorRecovery: {},
	},
	Reflection: {
		ConfidenceEvaluation: {},
		ErrorRecovery:        {},
	},
	ConfidenceEvaluation: {
		Complete:      {},
		Replanning:    {},
		ErrorRecovery: {},
	},
	Replanning: {
		ToolExecution: {},
		ErrorRecovery: {},
	},
	ErrorRecovery: {
		Idle: {},
	},
	Complete: {
		Idle: {},
	},
}

// Known reports whether s is one of the defined states.
func Known(s State) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// ValidTransition reports whether from → to is in the legal table.
func ValidTransition(from, to State) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}

// NextStates lists the legal successors of from, sorted.
func NextStates(from State) []State {
	next := make([]State, 0, len(allowedTransitions[from]))
	for s := range allowedTransitions[from] {
		next = append(next, s)
	}
	sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
	return next
}

// IsTerminal reports whether s ends a run.
func IsTerminal(s State) bool {
	return s == Complete || s == ErrorRecovery
}

// #endregion transitions

// #region config

// Config bounds a machine's lifetime.
type Config struct {
	MaxTransitions int
	Timeouts       map[State]time.Duration
}

// DefaultTimeouts returns the per-state wall-clock limits. IDLE and COMPLETE never time out.
func DefaultTimeouts() map[State]time.Duration {
	return map[State]time.Duration{
		Planning:             30 * time.Second,
		ToolExecution:        120 * time.Second,
		Observation:          20 * time.Second,
		Reflection:           30 * time.Second,
		ConfidenceEvaluation: 20 * time.Second,
		Replanning:           30 * time.Second,
		ErrorRecovery:        10 * time.Second,
	}
}

// DefaultConfig returns a ceiling of 50 transitions and the default timeouts.
func DefaultConfig() Config {
	return Config{MaxTransitions: 50, Timeouts: DefaultTimeouts()}
}

// #endregion config

// #region record

// Record is one entry in the append-only transition log.
type Record struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	Forced bool      `json:"forced,omitempty"`
}

// #endregion record
