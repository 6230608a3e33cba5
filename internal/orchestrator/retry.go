package orchestrator

import (
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
)

// #region step

// step is what the phase loop does after an attempt.
type step int

const (
	stepCommit step = iota // proceed: commit and finish the phase
	stepReplan             // try again with the next attempt
	stepAbort              // commit what exists and abort the run
)

func (s step) String() string {
	switch s {
	case stepCommit:
		return "commit"
	case stepReplan:
		return "replan"
	default:
		return "abort"
	}
}

// #endregion

// #region next-step

// nextStep maps a decision onto the loop. A replan loops only while the
// evaluator still recommends one for attempt and the executor has retries
// left; an error-recover never does. attempt is zero-based.
func nextStep(ev *reflection.Evaluator, d reflection.Decision, score reflection.Score, attempt, maxRetries int, retriesRemaining bool) step {
	switch d.Outcome {
	case reflection.OutcomeProceed:
		return stepCommit
	case reflection.OutcomeReplan:
		if retriesRemaining && ev.ShouldReplan(score, attempt, maxRetries) {
			return stepReplan
		}
	}
	return stepAbort
}

// retryAfterError reports whether an executor failure on attempt still
// leaves room for another attempt.
func retryAfterError(attempt, maxRetries int) bool {
	return attempt < maxRetries
}

// #endregion
