package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// #region sink

// Sink receives events after they are logged. Publish must not block on delivery.
type Sink interface {
	Publish(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

// Publish calls f.
func (f SinkFunc) Publish(e Event) error { return f(e) }

// #endregion sink

// #region recorder

// Recorder writes events to zap and fans them out to sinks. Sink failures are
// logged and dropped.
type Recorder struct {
	log   *zap.Logger
	now   func() time.Time
	mu    sync.RWMutex
	sinks []Sink
}

// NewRecorder returns a recorder. A nil logger records nothing to zap.
func NewRecorder(log *zap.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{log: log.Named("events"), now: time.Now, sinks: sinks}
}

// AddSink registers another destination.
func (r *Recorder) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Emit stamps, logs and publishes e.
func (r *Recorder) Emit(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("run_id", e.RunID),
	}
	if e.Executor != "" {
		fields = append(fields, zap.String("executor", e.Executor))
	}
	for k, v := range e.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	if e.Type == EventError {
		r.log.Error(e.Message, fields...)
	} else {
		r.log.Info(e.Message, fields...)
	}

	r.mu.RLock()
	sinks := r.sinks
	r.mu.RUnlock()
	for _, s := range sinks {
		if err := s.Publish(e); err != nil {
			r.log.Warn("event sink failed", zap.String("event", string(e.Type)), zap.Error(err))
		}
	}
}

// #endregion recorder

// #region helpers

// StateTransition records a state-machine move.
func (r *Recorder) StateTransition(runID, executor, from, to, reason string, forced bool) {
	r.Emit(Event{
		Type:     EventStateTransition,
		RunID:    runID,
		Executor: executor,
		Message:  "state transition",
		Fields: map[string]any{
			"from":   from,
			"to":     to,
			"reason": reason,
			"forced": forced,
		},
	})
}

// Decision records a decision and its reasoning.
func (r *Recorder) Decision(runID, executor, decision, reasoning string, context map[string]any) {
	fields := map[string]any{"decision": decision, "reasoning": reasoning}
	for k, v := range context {
		fields[k] = v
	}
	r.Emit(Event{Type: EventDecision, RunID: runID, Executor: executor, Message: "decision", Fields: fields})
}

// Confidence records a confidence evaluation.
func (r *Recorder) Confidence(runID, executor string, overall float64, factors map[string]float64, rationale string) {
	r.Emit(Event{
		Type:     EventConfidence,
		RunID:    runID,
		Executor: executor,
		Message:  "confidence evaluated",
		Fields: map[string]any{
			"overall":   overall,
			"factors":   factors,
			"rationale": rationale,
		},
	})
}

// ToolCall records an external call made on behalf of an executor.
func (r *Recorder) ToolCall(runID, executor, tool string, elapsed time.Duration, err error) {
	fields := map[string]any{"tool": tool, "elapsed_ms": elapsed.Milliseconds(), "success": err == nil}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.Emit(Event{Type: EventToolCall, RunID: runID, Executor: executor, Message: "tool call", Fields: fields})
}

// Error records a fault with context.
func (r *Recorder) Error(runID, executor string, err error, context map[string]any) {
	fields := map[string]any{}
	for k, v := range context {
		fields[k] = v
	}
	msg := "error"
	if err != nil {
		msg = err.Error()
	}
	r.Emit(Event{Type: EventError, RunID: runID, Executor: executor, Message: msg, Fields: fields})
}

// RunCompleted records the end of a run.
func (r *Recorder) RunCompleted(runID, status string, overall int) {
	r.Emit(Event{
		Type:    EventRunCompleted,
		RunID:   runID,
		Message: "run completed",
		Fields:  map[string]any{"status": status, "overall_confidence": overall},
	})
}

// #endregion helpers
