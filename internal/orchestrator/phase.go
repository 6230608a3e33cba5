package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/agent"
	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/memory"
	"github.com/danielpatrickdp/agent-boss/internal/metrics"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/statemachine"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #endregion

// #region phase-run

// phaseRun carries one phase's context through its attempts.
type phaseRun struct {
	b      *Boss
	runID  string
	goal   string
	phase  task.Phase
	exec   agent.Executor
	desc   string
	taskID string
	prior  task.Prior
	m      *statemachine.Machine
	log    *zap.Logger
	span   trace.Span
}

// runPhase runs attempts 0..MaxRetries for phase. It returns the committed
// output, or ok=false with the reason the run must abort.
func (b *Boss) runPhase(ctx context.Context, runID, goal string, phase task.Phase, prior task.Prior) (task.Output, string, bool) {
	exec := b.execs.forPhase(phase)
	name := exec.Name()
	b.setActive(name)

	ctx, span := b.tracer.Start(ctx, "boss.phase", trace.WithAttributes(
		attribute.String("boss.phase", string(phase)),
		attribute.String("boss.executor", name),
	))
	defer span.End()

	pr := &phaseRun{
		b:      b,
		runID:  runID,
		goal:   goal,
		phase:  phase,
		exec:   exec,
		desc:   phaseDescription(phase, goal),
		taskID: runID + "_" + name,
		prior:  prior,
		m:      b.Machine(),
		log:    b.log.With(zap.String("run_id", runID), zap.String("executor", name)),
		span:   span,
	}
	exec.ResetRetry()

	out, reason, ok := pr.run(ctx)
	if !ok {
		span.SetStatus(codes.Error, reason)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return out, reason, ok
}

func (pr *phaseRun) run(ctx context.Context) (task.Output, string, bool) {
	name := pr.exec.Name()
	maxRetries := pr.b.cfg.MaxRetries
	if pr.m.Current() == statemachine.Complete {
		if err := pr.advance(statemachine.Idle, "starting "+strings.ToLower(string(pr.phase))); err != nil {
			return pr.abort(err.Error())
		}
	}
	if err := pr.advance(statemachine.Planning, "executing "+name); err != nil {
		return pr.abort(err.Error())
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		pr.span.SetAttributes(attribute.Int("boss.attempts", attempt+1))
		if err := ctx.Err(); err != nil {
			return pr.abort(fmt.Sprintf("%s cancelled: %v", name, err))
		}
		if err := pr.reenter(attempt); err != nil {
			return pr.abort(err.Error())
		}

		out, execErr := pr.execute(ctx, attempt)
		if execErr != nil {
			pr.log.Error("executor failed", zap.Int("attempt", attempt), zap.Error(execErr))
			pr.b.rec.Error(pr.runID, name, execErr, map[string]any{"attempt": attempt, "phase": string(pr.phase)})
			if !retryAfterError(attempt, maxRetries) {
				return pr.abort(fmt.Sprintf("%s failed after %d attempts: %v", name, attempt+1, execErr))
			}
			pr.exec.IncrementRetry()
			if errs.IsRateLimited(execErr) {
				if err := pr.pause(ctx, attempt); err != nil {
					return pr.abort(fmt.Sprintf("%s cancelled during backoff: %v", name, err))
				}
			}
			continue
		}

		c, decision, reason, ok := pr.evaluate(ctx, out, attempt)
		if !ok {
			return pr.abort(reason)
		}

		switch nextStep(pr.b.evaluator, decision, c.combined, attempt, maxRetries, pr.exec.RetriesRemaining()) {
		case stepCommit:
			if err := pr.advance(statemachine.Complete, decision.Reasoning); err != nil {
				return pr.abort(err.Error())
			}
			c.passed = true
			pr.b.commit(name, c)
			pr.span.SetAttributes(attribute.Float64("boss.confidence", c.combined.Overall))
			return out, "", true

		case stepReplan:
			pr.b.rec.Decision(pr.runID, BossName, "replan",
				fmt.Sprintf("Replanning %s (attempt %d/%d)", name, attempt+1, maxRetries),
				map[string]any{"reasoning": decision.Reasoning, "attempt": attempt})
			pr.exec.IncrementRetry()
			if err := pr.advance(statemachine.Replanning, decision.Reasoning); err != nil {
				return pr.abort(err.Error())
			}

		default:
			pr.b.commit(name, c)
			_ = pr.m.Transition(statemachine.ErrorRecovery, decision.Reasoning)
			err := errs.Errorf(errs.KindConfidence, "orchestrator.phase",
				"%s failed after %d attempts", name, attempt+1).
				With("confidence", decision.Confidence)
			pr.b.rec.Error(pr.runID, name, err, map[string]any{"confidence": decision.Confidence})
			return out, fmt.Sprintf("%s phase failed: %s", strings.ToLower(string(pr.phase)), decision.Reasoning), false
		}
	}
	return pr.abort(fmt.Sprintf("%s exhausted %d attempts", name, maxRetries+1))
}

// abort moves the machine to ERROR_RECOVERY, unless already there, and
// prefixes the phase to reason.
func (pr *phaseRun) abort(reason string) (task.Output, string, bool) {
	if pr.m.Current() != statemachine.ErrorRecovery {
		pr.m.ForceErrorRecovery(reason)
	}
	return task.Output{}, fmt.Sprintf("%s phase failed: %s", strings.ToLower(string(pr.phase)), reason), false
}

// #endregion

// #region machine-steps

// advance transitions and fails if the machine landed anywhere else, which
// happens once the transition ceiling is hit.
func (pr *phaseRun) advance(to statemachine.State, reason string) error {
	if err := pr.m.Transition(to, reason); err != nil {
		return err
	}
	if got := pr.m.Current(); got != to {
		return errs.Errorf(errs.KindTaskExecution, "orchestrator.advance",
			"requested %s, machine entered %s after %d transitions", to, got, pr.m.Count())
	}
	return nil
}

// reenter brings the machine back to TOOL_EXECUTION for attempt: directly
// from PLANNING or REPLANNING, or through IDLE and PLANNING after an error.
func (pr *phaseRun) reenter(attempt int) error {
	if pr.m.Current() == statemachine.ErrorRecovery {
		if err := pr.advance(statemachine.Idle, "recovering from failed attempt"); err != nil {
			return err
		}
		if err := pr.advance(statemachine.Planning, fmt.Sprintf("retrying %s", pr.exec.Name())); err != nil {
			return err
		}
	}
	return pr.advance(statemachine.ToolExecution, fmt.Sprintf("attempt %d", attempt))
}

// execute invokes the executor under the machine. Panics and state timeouts
// become errors.
func (pr *phaseRun) execute(ctx context.Context, attempt int) (task.Output, error) {
	tc := task.Context{
		RunID:       pr.runID,
		TaskID:      pr.taskID,
		Goal:        pr.goal,
		Description: pr.desc,
		Attempt:     attempt,
		Prior:       pr.prior,
	}
	var execErr error
	out, ok := statemachine.RunState(pr.m, func() (task.Output, error) {
		o, err := pr.exec.Execute(ctx, tc)
		execErr = err
		return o, err
	})
	if ok {
		return out, nil
	}
	if execErr != nil {
		return task.Output{}, execErr
	}
	reason := "executor aborted"
	if h := pr.m.History(); len(h) > 0 {
		reason = h[len(h)-1].Reason
	}
	return task.Output{}, errs.New(errs.KindTaskExecution, "orchestrator.execute", reason)
}

// pause waits out a rate limit before the next attempt.
func (pr *phaseRun) pause(ctx context.Context, attempt int) error {
	d, err := pr.b.backoff.Delay(attempt)
	if err != nil {
		return err
	}
	pr.log.Info("rate limited, backing off", zap.Int("attempt", attempt), zap.Duration("delay", d))
	return pr.b.sleep(ctx, d)
}

// #endregion

// #region evaluate

// evaluate walks OBSERVATION, REFLECTION and CONFIDENCE_EVALUATION for out:
// it records the decision, scores, asks the judge, combines and decides.
func (pr *phaseRun) evaluate(ctx context.Context, out task.Output, attempt int) (committed, reflection.Decision, string, bool) {
	b := pr.b
	name := pr.exec.Name()

	if err := pr.advance(statemachine.Observation, "output received"); err != nil {
		return committed{}, reflection.Decision{}, err.Error(), false
	}
	pr.recordDecision(out.Reasoning, out.Reasoning, map[string]any{
		"confidence": out.SelfConfidence,
		"attempt":    attempt,
		"kind":       "execution",
	})

	if err := pr.advance(statemachine.Reflection, "scoring output"); err != nil {
		return committed{}, reflection.Decision{}, err.Error(), false
	}
	var scoreErr error
	self, ok := statemachine.RunState(pr.m, func() (reflection.Score, error) {
		s, err := pr.exec.CalculateConfidence(out, pr.desc)
		scoreErr = err
		return s, err
	})
	if !ok {
		reason := "self-assessment failed"
		if scoreErr != nil {
			reason = fmt.Sprintf("self-assessment failed: %v", scoreErr)
		}
		return committed{}, reflection.Decision{}, reason, false
	}

	if err := pr.advance(statemachine.ConfidenceEvaluation, "second opinion"); err != nil {
		return committed{}, reflection.Decision{}, err.Error(), false
	}
	second, fallback := pr.secondOpinion(ctx, out)
	combined, err := combine(self, second)
	if err != nil {
		return committed{}, reflection.Decision{}, err.Error(), false
	}

	pr.recordScore(self.Overall, second, attempt)
	b.metrics.ObserveConfidence(name, metrics.SourceSelf, self.Overall)
	b.metrics.ObserveConfidence(name, metrics.SourceJudge, second)
	b.metrics.ObserveConfidence(name, metrics.SourceCombined, combined.Overall)

	decision := b.evaluator.Decide(out, combined)
	ctxFields := map[string]any{
		"attempt":        attempt,
		"moderate":       decision.Moderate,
		"self":           self.Overall,
		"second_opinion": second,
		"combined":       combined.Overall,
		"fallback":       fallback,
	}
	b.rec.Confidence(pr.runID, name, combined.Overall, combined.Factors, combined.Rationale)
	b.rec.Decision(pr.runID, name, string(decision.Outcome), decision.Reasoning, ctxFields)
	pr.recordDecision(string(decision.Outcome), decision.Reasoning, ctxFields)

	return committed{
		phase:    pr.phase,
		output:   out,
		self:     self,
		combined: combined,
		second:   second,
		fallback: fallback,
		attempts: attempt + 1,
	}, decision, "", true
}

// secondOpinion asks the judge and falls back to self-declared confidence on
// any failure, including a panic or an out-of-range score.
func (pr *phaseRun) secondOpinion(ctx context.Context, out task.Output) (float64, bool) {
	b := pr.b
	fallback := float64(out.SelfConfidence) / 100
	if b.judge == nil {
		b.metrics.JudgeFallback()
		return fallback, true
	}

	score, err := func() (s float64, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errs.Errorf(errs.KindModel, "orchestrator.secondOpinion", "judge panicked: %v", r)
			}
		}()
		return b.judge.SecondOpinion(ctx, out, pr.desc)
	}()
	if err == nil && (score < 0 || score > 1 || math.IsNaN(score)) {
		err = errs.Errorf(errs.KindValidation, "orchestrator.secondOpinion", "judge score %v outside [0,1]", score)
	}
	if err == nil {
		return score, false
	}

	pr.log.Warn("second opinion failed, using self-declared confidence",
		zap.Float64("fallback", fallback), zap.Error(err))
	b.rec.Error(pr.runID, out.Executor, err, map[string]any{"stage": "second_opinion", "fallback": fallback})
	b.metrics.JudgeFallback()
	return fallback, true
}

// combine takes the lower of the two signals and keeps both in the factors.
func combine(self reflection.Score, second float64) (reflection.Score, error) {
	factors := make(map[string]float64, len(self.Factors)+2)
	for k, v := range self.Factors {
		factors[k] = v
	}
	factors[reflection.FactorSelfAssessment] = self.Overall
	factors[reflection.FactorBossAssessment] = second
	return reflection.NewScore(math.Min(self.Overall, second), factors, self.Role,
		fmt.Sprintf("Self: %.2f, Boss: %.2f. %s", self.Overall, second, self.Rationale))
}

// #endregion

// #region persistence

func (pr *phaseRun) recordDecision(decision, reasoning string, ctxFields map[string]any) {
	if pr.b.mem == nil {
		return
	}
	err := pr.b.mem.RecordDecision(memory.DecisionRecord{
		RunID:     pr.runID,
		TaskID:    pr.taskID,
		Executor:  pr.exec.Name(),
		Decision:  decision,
		Reasoning: reasoning,
		Context:   ctxFields,
		CreatedAt: pr.b.now().UTC(),
	})
	if err != nil {
		pr.log.Warn("record decision failed", zap.Error(errs.Wrap(errs.KindMemory, "orchestrator.recordDecision", err)))
	}
}

func (pr *phaseRun) recordScore(self, second float64, attempt int) {
	if pr.b.mem == nil {
		return
	}
	err := pr.b.mem.RecordScore(memory.ScoreRecord{
		RunID:       pr.runID,
		TaskID:      pr.taskID,
		Executor:    pr.exec.Name(),
		SelfScore:   int(math.Round(self * 100)),
		SecondScore: int(math.Round(second * 100)),
		Attempt:     attempt,
		CreatedAt:   pr.b.now().UTC(),
	})
	if err != nil {
		pr.log.Warn("record scores failed", zap.Error(errs.Wrap(errs.KindMemory, "orchestrator.recordScore", err)))
	}
}

// #endregion
