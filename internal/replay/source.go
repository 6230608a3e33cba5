package replay

import (
	"fmt"
	"sort"

	"github.com/danielpatrickdp/agent-boss/internal/agent"
	"github.com/danielpatrickdp/agent-boss/internal/memory"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region source

// Source is the slice of the memory store a replay reads.
type Source interface {
	Scores(runID string) ([]memory.ScoreRecord, error)
	Decisions(runID string) ([]memory.DecisionRecord, error)
}

var _ Source = (*memory.Store)(nil)

// FromStore loads a run's scored attempts in phase order, attaching the
// outcome stored for each attempt when one exists.
func FromStore(src Source, runID string) ([]Attempt, error) {
	scores, err := src.Scores(runID)
	if err != nil {
		return nil, fmt.Errorf("load scores for %s: %w", runID, err)
	}
	decisions, err := src.Decisions(runID)
	if err != nil {
		return nil, fmt.Errorf("load decisions for %s: %w", runID, err)
	}

	recorded := make(map[attemptKey]reflection.Outcome)
	for _, d := range decisions {
		outcome := reflection.Outcome(d.Decision)
		switch outcome {
		case reflection.OutcomeProceed, reflection.OutcomeReplan, reflection.OutcomeErrorRecover:
		default:
			continue
		}
		n, ok := attemptOf(d.Context)
		if !ok {
			continue
		}
		recorded[attemptKey{d.Executor, n}] = outcome
	}

	attempts := make([]Attempt, 0, len(scores))
	for _, s := range scores {
		attempts = append(attempts, Attempt{
			Executor: s.Executor,
			Attempt:  s.Attempt,
			Self:     float64(s.SelfScore) / 100,
			Second:   float64(s.SecondScore) / 100,
			Recorded: recorded[attemptKey{s.Executor, s.Attempt}],
		})
	}
	SortAttempts(attempts)
	return attempts, nil
}

type attemptKey struct {
	executor string
	attempt  int
}

// attemptOf reads the attempt number out of a decoded decision context.
func attemptOf(ctx map[string]any) (int, bool) {
	switch v := ctx["attempt"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// SortAttempts orders attempts by pipeline phase, then attempt number.
// Executors outside the pipeline sort last by name.
func SortAttempts(attempts []Attempt) {
	sort.SliceStable(attempts, func(i, j int) bool {
		pi, pj := phaseIndex(attempts[i].Executor), phaseIndex(attempts[j].Executor)
		if pi != pj {
			return pi < pj
		}
		if attempts[i].Executor != attempts[j].Executor {
			return attempts[i].Executor < attempts[j].Executor
		}
		return attempts[i].Attempt < attempts[j].Attempt
	})
}

var executorPhase = map[string]task.Phase{
	agent.GathererName: task.PhaseResearch,
	agent.AnalystName:  task.PhaseAnalysis,
	agent.PlannerName:  task.PhaseStrategy,
}

func phaseIndex(executor string) int {
	p, ok := executorPhase[executor]
	if !ok {
		return len(task.Phases)
	}
	for i, q := range task.Phases {
		if q == p {
			return i
		}
	}
	return len(task.Phases)
}

// #endregion source
