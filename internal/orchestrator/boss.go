package orchestrator

// #region imports
import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/backoff"
	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/judge"
	"github.com/danielpatrickdp/agent-boss/internal/logging"
	"github.com/danielpatrickdp/agent-boss/internal/memory"
	"github.com/danielpatrickdp/agent-boss/internal/metrics"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/report"
	"github.com/danielpatrickdp/agent-boss/internal/statemachine"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #endregion

const (
	tracerName = "github.com/danielpatrickdp/agent-boss/internal/orchestrator"

	// BossName identifies the orchestrator in events and stored decisions.
	BossName = "boss_agent"
)

// #region boss-struct

// Boss runs the phase pipeline. It drives one run at a time; concurrent Run
// calls are serialized. Use one Boss per concurrent run.
type Boss struct {
	cfg       Config
	execs     Executors
	judge     judge.Judge
	evaluator *reflection.Evaluator
	backoff   *backoff.Backoff
	mem       Memory
	rec       *logging.Recorder
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	log       *zap.Logger
	sleep     backoff.Sleeper
	now       func() time.Time

	runMu sync.Mutex

	mu        sync.RWMutex
	runID     string
	phase     task.Phase
	active    string
	startedAt time.Time
	machine   *statemachine.Machine
	order     []string
	committed map[string]committed
}

// Option customizes a Boss.
type Option func(*Boss)

// WithMemory persists runs, decisions, scores and results.
func WithMemory(m Memory) Option {
	return func(b *Boss) { b.mem = m }
}

// WithRecorder routes structured events through rec.
func WithRecorder(rec *logging.Recorder) Option {
	return func(b *Boss) { b.rec = rec }
}

// WithMetrics observes confidence scores and judge fallbacks. Register m as a
// sink on the recorder separately to count transitions, decisions and runs.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Boss) { b.metrics = m }
}

// WithTracerProvider sets the span source. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Boss) { b.tracer = tp.Tracer(tracerName) }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Boss) { b.log = l }
}

// WithSleeper replaces the wait used between rate-limited attempts.
func WithSleeper(s backoff.Sleeper) Option {
	return func(b *Boss) { b.sleep = s }
}

// WithClock substitutes the wall clock for the Boss and its state machine.
func WithClock(now func() time.Time) Option {
	return func(b *Boss) { b.now = now }
}

// #endregion

// #region constructor

// New validates cfg and the executor assignment. j may be nil, in which case
// every second opinion falls back to self-declared confidence.
func New(cfg Config, execs Executors, j judge.Judge, opts ...Option) (*Boss, error) {
	const op = "orchestrator.New"
	if cfg.MaxRetries < 0 {
		return nil, errs.Errorf(errs.KindConfiguration, op, "max retries must be >= 0, got %d", cfg.MaxRetries)
	}
	evaluator, err := reflection.New(cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	bo, err := backoff.New(cfg.Backoff)
	if err != nil {
		return nil, err
	}
	for _, p := range task.Phases {
		e := execs.forPhase(p)
		if e == nil {
			return nil, errs.Errorf(errs.KindConfiguration, op, "no executor for phase %s", p)
		}
		if e.Role() != p.Role() {
			return nil, errs.Errorf(errs.KindConfiguration, op,
				"executor %s has role %s, phase %s needs %s", e.Name(), e.Role(), p, p.Role())
		}
	}

	b := &Boss{
		cfg:       cfg,
		execs:     execs,
		judge:     j,
		evaluator: evaluator,
		backoff:   bo,
		tracer:    otel.GetTracerProvider().Tracer(tracerName),
		log:       zap.NewNop(),
		sleep:     backoff.SleepContext,
		now:       time.Now,
		committed: make(map[string]committed),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	b.log = b.log.Named("boss")
	if b.rec == nil {
		b.rec = logging.NewRecorder(b.log)
	}
	return b, nil
}

// #endregion

// #region run

// Run executes every phase for goal and returns the aggregate. It never
// panics and never returns an error: failures produce a result with Failed
// set, overall confidence 0 and one "Error: ..." insight.
func (b *Boss) Run(ctx context.Context, goal string) (result task.OrchestrationResult) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	ctx, span := b.tracer.Start(ctx, "boss.run", trace.WithAttributes(attribute.String("boss.goal", goal)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			st := b.State()
			b.log.Error("run panicked",
				zap.String("run_id", st.RunID),
				zap.String("phase", string(st.Phase)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			b.rec.Error(st.RunID, BossName, fmt.Errorf("panic: %v", r), map[string]any{"phase": string(st.Phase)})
			result = b.fail(span, goal, fmt.Sprintf("Workflow failed: %v", r))
		}
	}()

	runID := b.start(goal)
	span.SetAttributes(attribute.String("boss.run_id", runID))
	log := b.log.With(zap.String("run_id", runID))
	b.rec.Decision(runID, BossName, "start", "Starting workflow for: "+goal,
		map[string]any{"max_retries": b.cfg.MaxRetries})

	if strings.TrimSpace(goal) == "" {
		return b.fail(span, goal, "goal is empty")
	}

	var prior task.Prior
	for _, phase := range task.Phases {
		b.setPhase(phase)
		out, reason, ok := b.runPhase(ctx, runID, goal, phase, prior)
		if !ok {
			return b.fail(span, goal, reason)
		}
		switch phase {
		case task.PhaseResearch:
			prior.Gathering = &out
		case task.PhaseAnalysis:
			prior.Analysis = &out
		}
	}

	b.setPhase(task.PhaseComplete)
	res := b.aggregate(goal)
	b.finish(res, memory.StatusCompleted)
	span.SetAttributes(attribute.Float64("boss.overall_confidence", res.OverallConfidence))
	span.SetStatus(codes.Ok, "")
	log.Info("run completed", zap.Float64("overall_confidence", res.OverallConfidence))
	return res
}

// start resets per-run state and registers the run. A store failure falls
// back to a local id so the run can proceed.
func (b *Boss) start(goal string) string {
	b.mu.Lock()
	b.runID = ""
	b.phase = ""
	b.active = ""
	b.startedAt = b.now()
	b.order = nil
	b.committed = make(map[string]committed)
	b.mu.Unlock()

	runID := ""
	if b.mem != nil {
		run, err := b.mem.CreateRun(goal)
		if err != nil {
			b.log.Warn("create run failed, continuing unpersisted", zap.Error(err))
		} else {
			runID = run.ID
		}
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	machine := statemachine.New(b.cfg.StateMachine,
		statemachine.WithClock(b.now),
		statemachine.WithLogger(b.log),
		statemachine.WithObserver(func(r statemachine.Record) {
			b.rec.StateTransition(runID, b.activeExecutor(), string(r.From), string(r.To), r.Reason, r.Forced)
		}),
	)

	b.mu.Lock()
	b.runID = runID
	b.machine = machine
	b.mu.Unlock()

	for _, p := range task.Phases {
		b.execs.forPhase(p).ResetRetry()
	}
	return runID
}

// #endregion

// #region finish

func (b *Boss) fail(span trace.Span, goal, reason string) task.OrchestrationResult {
	res := b.snapshot(goal)
	res.Insights = []string{"Error: " + reason}
	res.OverallConfidence = 0
	res.Failed = true
	b.finish(res, memory.StatusFailed)
	span.SetStatus(codes.Error, reason)
	b.log.Warn("run failed", zap.String("run_id", res.RunID), zap.String("reason", reason))
	return res
}

func (b *Boss) finish(res task.OrchestrationResult, status memory.RunStatus) {
	if err := report.Validate(res); err != nil {
		b.log.Warn("result failed validation", zap.String("run_id", res.RunID), zap.Error(err))
	}
	if b.mem != nil {
		if err := b.mem.FinishRun(res, status); err != nil {
			b.log.Warn("persist result failed", zap.String("run_id", res.RunID), zap.Error(err))
		}
	}
	b.rec.RunCompleted(res.RunID, string(status), int(res.OverallConfidence+0.5))
}

// #endregion

// #region accessors

// State returns a snapshot of the current or most recent run.
func (b *Boss) State() WorkflowState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := WorkflowState{
		RunID:           b.runID,
		Phase:           b.phase,
		ActiveExecutor:  b.active,
		CompletedAgents: append([]string(nil), b.order...),
		Confidence:      make(map[string]float64, len(b.committed)),
		StartedAt:       b.startedAt,
	}
	for name, c := range b.committed {
		st.Confidence[name] = c.combined.Overall
	}
	return st
}

// Machine returns the state machine of the current or most recent run.
func (b *Boss) Machine() *statemachine.Machine {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.machine
}

func (b *Boss) activeExecutor() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *Boss) setPhase(p task.Phase) {
	b.mu.Lock()
	b.phase = p
	b.mu.Unlock()
}

func (b *Boss) setActive(name string) {
	b.mu.Lock()
	b.active = name
	b.mu.Unlock()
}

// commit adds or replaces name's entry. Entries of earlier phases are never touched.
func (b *Boss) commit(name string, c committed) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.committed[name]; !ok {
		b.order = append(b.order, name)
	}
	b.committed[name] = c
}

// #endregion
