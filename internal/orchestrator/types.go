// Package orchestrator drives the gathering, analysis and planning phases of a
// run, gating each on self and second-opinion confidence.
package orchestrator

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/agent-boss/internal/agent"
	"github.com/danielpatrickdp/agent-boss/internal/backoff"
	"github.com/danielpatrickdp/agent-boss/internal/memory"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/statemachine"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #endregion

// #region config

// Config bounds a run.
type Config struct {
	MaxRetries   int
	Thresholds   reflection.Thresholds
	StateMachine statemachine.Config
	Backoff      backoff.Config // paces retries after rate-limited executor errors
}

// DefaultConfig returns three retries per phase, default thresholds, the
// default machine and the rate-limit backoff schedule.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		Thresholds:   reflection.DefaultThresholds(),
		StateMachine: statemachine.DefaultConfig(),
		Backoff:      backoff.RateLimitConfig(),
	}
}

// #endregion

// #region executors

// Executors assigns one executor to each working phase.
type Executors struct {
	Gathering agent.Executor
	Analysis  agent.Executor
	Planning  agent.Executor
}

func (e Executors) forPhase(p task.Phase) agent.Executor {
	switch p {
	case task.PhaseResearch:
		return e.Gathering
	case task.PhaseAnalysis:
		return e.Analysis
	case task.PhaseStrategy:
		return e.Planning
	}
	return nil
}

// phaseDescription is the task description handed to the executor and judge.
func phaseDescription(p task.Phase, goal string) string {
	switch p {
	case task.PhaseResearch:
		return "Research: " + goal
	case task.PhaseAnalysis:
		return "Analyze findings for: " + goal
	case task.PhaseStrategy:
		return "Generate strategy for: " + goal
	}
	return goal
}

// #endregion

// #region memory

// Memory is the persistence the Boss needs. *memory.Store satisfies it.
// Failures are logged and never fail a run.
type Memory interface {
	CreateRun(goal string) (memory.Run, error)
	RecordDecision(rec memory.DecisionRecord) error
	RecordScore(rec memory.ScoreRecord) error
	FinishRun(result task.OrchestrationResult, status memory.RunStatus) error
}

var _ Memory = (*memory.Store)(nil)

// #endregion

// #region workflow-state

// WorkflowState is a snapshot of the run in progress.
type WorkflowState struct {
	RunID           string             `json:"run_id"`
	Phase           task.Phase         `json:"phase,omitempty"`
	ActiveExecutor  string             `json:"active_executor,omitempty"`
	CompletedAgents []string           `json:"completed_agents"`
	Confidence      map[string]float64 `json:"confidence"`
	StartedAt       time.Time          `json:"started_at"`
}

// committed is a phase's output and the score that decided it.
type committed struct {
	phase    task.Phase
	output   task.Output
	self     reflection.Score
	combined reflection.Score
	second   float64
	fallback bool
	attempts int
	passed   bool
}

// #endregion
