// Package agent provides the executors that serve each pipeline role.
package agent

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/llm"
	"github.com/danielpatrickdp/agent-boss/internal/logging"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region executor

// Executor performs one role's work for a task context and keeps its own
// retry bookkeeping.
type Executor interface {
	Name() string
	Role() task.Role
	Execute(ctx context.Context, tc task.Context) (task.Output, error)
	CalculateConfidence(out task.Output, taskDescription string) (reflection.Score, error)
	IncrementRetry() int
	ResetRetry()
	RetriesRemaining() bool
}

// Executor names used in task ids, logs and stored rows.
const (
	GathererName = "research_agent"
	AnalystName  = "analyst_agent"
	PlannerName  = "strategy_agent"
)

// #endregion executor

// #region retry-counter

// RetryCounter tracks retries against a ceiling. Safe for concurrent use.
type RetryCounter struct {
	mu    sync.Mutex
	max   int
	count int
}

// NewRetryCounter returns a counter bounded by max.
func NewRetryCounter(max int) *RetryCounter {
	return &RetryCounter{max: max}
}

// IncrementRetry bumps the counter and returns the new value.
func (r *RetryCounter) IncrementRetry() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return r.count
}

// ResetRetry zeroes the counter.
func (r *RetryCounter) ResetRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count = 0
}

// Retries returns the current count.
func (r *RetryCounter) Retries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// RetriesRemaining reports whether the count is below the ceiling.
func (r *RetryCounter) RetriesRemaining() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count < r.max
}

// #endregion retry-counter

// #region base

// Base carries what every executor shares: identity, model access, scoring and events.
type Base struct {
	*RetryCounter

	name      string
	role      task.Role
	gen       llm.Generator
	evaluator *reflection.Evaluator
	recorder  *logging.Recorder
	log       *zap.Logger
}

// Option customizes an executor's Base.
type Option func(*Base)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Base) { b.log = l }
}

// WithRecorder routes tool-call events through rec.
func WithRecorder(rec *logging.Recorder) Option {
	return func(b *Base) { b.recorder = rec }
}

// WithEvaluator sets the evaluator used by CalculateConfidence.
func WithEvaluator(e *reflection.Evaluator) Option {
	return func(b *Base) { b.evaluator = e }
}

// WithMaxRetries sets the retry ceiling. Defaults to 3.
func WithMaxRetries(n int) Option {
	return func(b *Base) { b.RetryCounter = NewRetryCounter(n) }
}

func (b *Base) init(name string, role task.Role, gen llm.Generator, opts ...Option) {
	b.RetryCounter = NewRetryCounter(3)
	b.name = name
	b.role = role
	b.gen = gen
	b.log = zap.NewNop()
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	b.log = b.log.Named(name)
	if b.evaluator == nil {
		b.evaluator, _ = reflection.New(reflection.DefaultThresholds())
	}
}

// Name returns the executor's identity.
func (b *Base) Name() string { return b.name }

// Role returns the role the executor serves.
func (b *Base) Role() task.Role { return b.role }

// CalculateConfidence scores out with the role's heuristics.
func (b *Base) CalculateConfidence(out task.Output, taskDescription string) (reflection.Score, error) {
	return b.evaluator.Score(out, b.role, taskDescription)
}

// generate calls the model when one is configured and records the call.
func (b *Base) generate(ctx context.Context, runID, tool, prompt string, p llm.Params) (string, error) {
	if b.gen == nil {
		return "", errNoModel
	}
	start := nowFunc()
	out, err := b.gen.Generate(ctx, prompt, p)
	if b.recorder != nil {
		b.recorder.ToolCall(runID, b.name, tool, nowFunc().Sub(start), err)
	}
	return out, err
}

// #endregion base

var (
	_ Executor = (*Gatherer)(nil)
	_ Executor = (*Analyst)(nil)
	_ Executor = (*Planner)(nil)
)
