// Package replay re-decides a recorded run's scored attempts under alternate
// thresholds and retry budgets, without calling any executor or judge.
package replay

import (
	"fmt"

	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region types

// Attempt is one scored execution of an executor, both opinions in [0,1].
type Attempt struct {
	Executor string
	Attempt  int
	Self     float64
	Second   float64
	// Recorded is the outcome taken when the run happened. Empty when unknown.
	Recorded reflection.Outcome
}

// Combined is the committed confidence: the lower of the two opinions.
func (a Attempt) Combined() float64 {
	if a.Second < a.Self {
		return a.Second
	}
	return a.Self
}

// Config is the policy an attempt list is replayed under.
type Config struct {
	Thresholds reflection.Thresholds
	MaxRetries int
}

// DefaultConfig returns the default thresholds and three retries.
func DefaultConfig() Config {
	return Config{Thresholds: reflection.DefaultThresholds(), MaxRetries: 3}
}

// Action is what the replayed policy does with one attempt.
type Action string

const (
	ActionProceed      Action = "proceed"
	ActionReplan       Action = "replan"
	ActionErrorRecover Action = "error_recover"
	// ActionExhausted is a replan requested with no retries left.
	ActionExhausted Action = "exhausted"
	// ActionUnreached marks an attempt the policy would never have made.
	ActionUnreached Action = "unreached"
)

// Outcome classifies the replayed run as a whole.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeUndetermined means the policy wants an attempt that was never recorded.
	OutcomeUndetermined Outcome = "undetermined"
)

// Result is the replayed verdict for one attempt.
type Result struct {
	Executor string             `json:"executor"`
	Attempt  int                `json:"attempt"`
	Combined float64            `json:"combined"`
	Action   Action             `json:"action"`
	Moderate bool               `json:"moderate,omitempty"`
	Reason   string             `json:"reason"`
	Recorded reflection.Outcome `json:"recorded,omitempty"`
	Changed  bool               `json:"changed"`
}

// Summary aggregates a replay.
type Summary struct {
	TotalAttempts int     `json:"total_attempts"`
	Proceeds      int     `json:"proceeds"`
	Replans       int     `json:"replans"`
	ErrorRecovers int     `json:"error_recovers"`
	Exhausted     int     `json:"exhausted"`
	Unreached     int     `json:"unreached"`
	Changed       int     `json:"changed"`
	Outcome       Outcome `json:"outcome"`
}

// #endregion types

// #region replay

// Replay walks attempts in order, grouping them by executor in order of first
// appearance. Attempts after an executor settles, or after any executor fails,
// are unreached. Attempts are expected sorted by executor phase then attempt.
func Replay(attempts []Attempt, cfg Config) ([]Result, error) {
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("replay: max retries must be >= 0, got %d", cfg.MaxRetries)
	}
	ev, err := reflection.New(cfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	settled := make(map[string]bool)
	failed := false
	results := make([]Result, 0, len(attempts))

	for _, a := range attempts {
		combined := a.Combined()
		r := Result{Executor: a.Executor, Attempt: a.Attempt, Combined: combined, Recorded: a.Recorded}

		switch {
		case failed:
			r.Action = ActionUnreached
			r.Reason = "an earlier phase failed"
		case settled[a.Executor]:
			r.Action = ActionUnreached
			r.Reason = a.Executor + " already settled"
		default:
			d := ev.Decide(task.Output{Executor: a.Executor}, reflection.Score{Overall: combined})
			r.Reason = d.Reasoning
			r.Moderate = d.Moderate
			switch {
			case d.Outcome == reflection.OutcomeProceed:
				r.Action = ActionProceed
				settled[a.Executor] = true
			case d.Outcome == reflection.OutcomeReplan && ev.ShouldReplan(reflection.Score{Overall: combined}, a.Attempt, cfg.MaxRetries):
				r.Action = ActionReplan
			case d.Outcome == reflection.OutcomeReplan:
				r.Action = ActionExhausted
				settled[a.Executor] = true
				failed = true
			default:
				r.Action = ActionErrorRecover
				settled[a.Executor] = true
				failed = true
			}
		}

		r.Changed = changed(r.Action, a.Recorded)
		results = append(results, r)
	}
	return results, nil
}

// changed compares a replayed action with the outcome stored for the attempt.
// An exhausted replan was stored as a replan.
func changed(action Action, recorded reflection.Outcome) bool {
	if recorded == "" {
		return false
	}
	switch action {
	case ActionUnreached:
		return true
	case ActionExhausted:
		return recorded != reflection.OutcomeReplan
	default:
		return string(action) != string(recorded)
	}
}

// Summarize counts actions and classifies the replayed run. phases is the
// number of executors a full run settles; 0 disables the check.
func Summarize(results []Result, phases int) Summary {
	s := Summary{TotalAttempts: len(results)}
	last := make(map[string]Action)
	for _, r := range results {
		if r.Changed {
			s.Changed++
		}
		switch r.Action {
		case ActionProceed:
			s.Proceeds++
		case ActionReplan:
			s.Replans++
		case ActionErrorRecover:
			s.ErrorRecovers++
		case ActionExhausted:
			s.Exhausted++
		case ActionUnreached:
			s.Unreached++
			continue
		}
		last[r.Executor] = r.Action
	}

	proceeded := 0
	for _, a := range last {
		switch a {
		case ActionErrorRecover, ActionExhausted:
			s.Outcome = OutcomeFailed
			return s
		case ActionProceed:
			proceeded++
		}
	}
	if proceeded == 0 || proceeded < len(last) || proceeded < phases {
		s.Outcome = OutcomeUndetermined
		return s
	}
	s.Outcome = OutcomeCompleted
	return s
}

// #endregion replay
