package orchestrator

import (
	"testing"

	"github.com/danielpatrickdp/agent-boss/internal/reflection"
)

func defaultEvaluator(t *testing.T) *reflection.Evaluator {
	t.Helper()
	ev, err := reflection.New(reflection.DefaultThresholds())
	if err != nil {
		t.Fatalf("reflection.New: %v", err)
	}
	return ev
}

func TestNextStep_ProceedCommits(t *testing.T) {
	ev := defaultEvaluator(t)
	for _, moderate := range []bool{false, true} {
		d := reflection.Decision{Outcome: reflection.OutcomeProceed, Moderate: moderate}
		if got := nextStep(ev, d, reflection.Score{Overall: 0.6}, 0, 3, true); got != stepCommit {
			t.Errorf("moderate=%v: got %s, want commit", moderate, got)
		}
	}
}

func TestNextStep_ReplanWhileAttemptsRemain(t *testing.T) {
	ev := defaultEvaluator(t)
	d := reflection.Decision{Outcome: reflection.OutcomeReplan}
	score := reflection.Score{Overall: 0.45}
	for attempt := 0; attempt < 2; attempt++ {
		if got := nextStep(ev, d, score, attempt, 2, true); got != stepReplan {
			t.Errorf("attempt %d: got %s, want replan", attempt, got)
		}
	}
	if got := nextStep(ev, d, score, 2, 2, true); got != stepAbort {
		t.Errorf("last attempt: got %s, want abort", got)
	}
}

func TestNextStep_ReplanNeedsExecutorRetries(t *testing.T) {
	ev := defaultEvaluator(t)
	d := reflection.Decision{Outcome: reflection.OutcomeReplan}
	if got := nextStep(ev, d, reflection.Score{Overall: 0.45}, 0, 3, false); got != stepAbort {
		t.Errorf("got %s, want abort when the executor has no retries left", got)
	}
}

func TestNextStep_FollowsEvaluatorReplanRule(t *testing.T) {
	// A replan outcome scored above the low band is not something the
	// evaluator recommends retrying.
	ev := defaultEvaluator(t)
	d := reflection.Decision{Outcome: reflection.OutcomeReplan}
	if got := nextStep(ev, d, reflection.Score{Overall: 0.6}, 0, 3, true); got != stepAbort {
		t.Errorf("got %s, want abort", got)
	}
	if !ev.ShouldReplan(reflection.Score{Overall: 0.45}, 0, 3) {
		t.Error("0.45 on attempt 0 of 3 should replan")
	}
}

func TestNextStep_ErrorRecoverNeverLoops(t *testing.T) {
	ev := defaultEvaluator(t)
	d := reflection.Decision{Outcome: reflection.OutcomeErrorRecover}
	if got := nextStep(ev, d, reflection.Score{Overall: 0.1}, 0, 5, true); got != stepAbort {
		t.Errorf("got %s, want abort", got)
	}
}

func TestRetryAfterError(t *testing.T) {
	if !retryAfterError(0, 1) {
		t.Error("attempt 0 of 1 retry should retry")
	}
	if retryAfterError(1, 1) {
		t.Error("attempt 1 of 1 retry should not retry")
	}
	if retryAfterError(0, 0) {
		t.Error("zero retries never retries")
	}
}
