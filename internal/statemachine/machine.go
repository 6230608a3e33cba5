package statemachine

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
)

// #region machine

// Machine holds the current state of one run. Methods are safe for concurrent
// readers; a single driver is expected to call Transition.
type Machine struct {
	mu        sync.Mutex
	cfg       Config
	current   State
	enteredAt time.Time
	count     int
	history   []Record
	scratch   map[string]any

	now      func() time.Time
	log      *zap.Logger
	observer func(Record)
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock substitutes the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) { m.log = l.Named("machine") }
}

// WithObserver registers a callback invoked after every recorded transition.
func WithObserver(fn func(Record)) Option {
	return func(m *Machine) { m.observer = fn }
}

// New returns a machine in IDLE. A non-positive ceiling falls back to the default.
func New(cfg Config, opts ...Option) *Machine {
	if cfg.MaxTransitions <= 0 {
		cfg.MaxTransitions = DefaultConfig().MaxTransitions
	}
	if cfg.Timeouts == nil {
		cfg.Timeouts = DefaultTimeouts()
	}
	m := &Machine{
		cfg:     cfg,
		current: Idle,
		scratch: make(map[string]any),
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.enteredAt = m.now()
	return m
}

// #endregion machine

// #region transition

// Transition moves to `to` when the pair is legal. Once the move would bring the
// counter to the ceiling, ERROR_RECOVERY is entered instead of any other target.
// An illegal pair returns a validation error and changes nothing.
func (m *Machine) Transition(to State, reason string) error {
	m.mu.Lock()
	var rec Record
	switch {
	case to != ErrorRecovery && m.count+1 >= m.cfg.MaxTransitions:
		m.log.Error("transition ceiling reached",
			zap.Int("transition_count", m.count+1),
			zap.Int("max_transitions", m.cfg.MaxTransitions),
			zap.String("requested", string(to)),
			zap.String("reason", reason),
		)
		rec = m.enter(ErrorRecovery, fmt.Sprintf("max transitions exceeded (requested %s: %s)", to, reason), true)
	case !ValidTransition(m.current, to):
		from := m.current
		m.mu.Unlock()
		return errs.Errorf(errs.KindValidation, "statemachine.Transition", "illegal transition %s -> %s", from, to)
	default:
		rec = m.enter(to, reason, false)
	}
	m.mu.Unlock()
	m.notify(rec)
	return nil
}

// ForceErrorRecovery enters ERROR_RECOVERY from any state, bypassing the table.
func (m *Machine) ForceErrorRecovery(reason string) {
	m.mu.Lock()
	rec := m.enter(ErrorRecovery, reason, true)
	m.mu.Unlock()
	m.notify(rec)
}

func (m *Machine) notify(rec Record) {
	if m.observer != nil {
		m.observer(rec)
	}
}

// enter records and applies a transition. Callers hold mu.
func (m *Machine) enter(to State, reason string, forced bool) Record {
	rec := Record{From: m.current, To: to, Reason: reason, At: m.now(), Forced: forced}
	m.history = append(m.history, rec)
	m.current = to
	m.enteredAt = rec.At
	m.count++

	m.log.Info("state transition",
		zap.String("from", string(rec.From)),
		zap.String("to", string(rec.To)),
		zap.String("reason", reason),
		zap.Bool("forced", forced),
		zap.Int("transition_count", m.count),
	)
	return rec
}

// #endregion transition

// #region timeout

// CheckTimeout reports whether the current state has overrun its limit.
// States without a limit never time out. Never transitions.
func (m *Machine) CheckTimeout() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timedOut()
}

func (m *Machine) timedOut() bool {
	limit, ok := m.cfg.Timeouts[m.current]
	if !ok || limit <= 0 {
		return false
	}
	elapsed := m.now().Sub(m.enteredAt)
	if elapsed > limit {
		m.log.Warn("state timeout",
			zap.String("state", string(m.current)),
			zap.Duration("elapsed", elapsed),
			zap.Duration("limit", limit),
		)
		return true
	}
	return false
}

// #endregion timeout

// #region run-state

// RunState executes work under the machine. A timeout before or after the work,
// a returned error, or a panic forces ERROR_RECOVERY and yields (zero, false).
// Nothing escapes this boundary.
func RunState[T any](m *Machine, work func() (T, error)) (result T, ok bool) {
	var zero T
	if m.CheckTimeout() {
		m.ForceErrorRecovery(fmt.Sprintf("timeout in %s before execution", m.Current()))
		return zero, false
	}

	defer func() {
		if r := recover(); r != nil {
			state := m.Current()
			m.log.Error("unit of work panicked",
				zap.String("state", string(state)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			m.ForceErrorRecovery(fmt.Sprintf("panic in %s: %v", state, r))
			result, ok = zero, false
		}
	}()

	out, err := work()
	if err != nil {
		state := m.Current()
		m.log.Error("unit of work failed",
			zap.String("state", string(state)),
			zap.Error(err),
		)
		m.ForceErrorRecovery(fmt.Sprintf("error in %s: %v", state, err))
		return zero, false
	}

	if m.CheckTimeout() {
		m.ForceErrorRecovery(fmt.Sprintf("timeout in %s after execution", m.Current()))
		return zero, false
	}
	return out, true
}

// #endregion run-state

// #region accessors

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Count returns the number of transitions since the last reset.
func (m *Machine) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// IsTerminal reports whether the machine is in COMPLETE or ERROR_RECOVERY.
func (m *Machine) IsTerminal() bool {
	return IsTerminal(m.Current())
}

// ValidNextStates lists the legal successors of the current state.
func (m *Machine) ValidNextStates() []State {
	return NextStates(m.Current())
}

// History returns a copy of the transition log.
func (m *Machine) History() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.history))
	copy(out, m.history)
	return out
}

// StateDuration returns how long the machine has been in the current state.
func (m *Machine) StateDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.enteredAt)
}

// Set stores a scratch value for the current run.
func (m *Machine) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scratch[key] = value
}

// Get reads a scratch value.
func (m *Machine) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.scratch[key]
	return v, ok
}

// Reset returns to IDLE and clears the counter, history and scratch context.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Idle
	m.count = 0
	m.history = nil
	m.scratch = make(map[string]any)
	m.enteredAt = m.now()
	m.log.Debug("machine reset")
}

// #endregion accessors
