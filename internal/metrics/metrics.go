// Package metrics exposes Prometheus instrumentation for orchestration runs.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielpatrickdp/agent-boss/internal/logging"
)

// Confidence sources.
const (
	SourceSelf     = "self"
	SourceJudge    = "judge"
	SourceCombined = "combined"
)

// #region metrics

// Metrics holds the orchestrator's collectors.
//
// Metrics:
//   - agentboss_runs_total{status} - finished runs by status
//   - agentboss_phase_decisions_total{executor,decision} - reflection outcomes per phase
//   - agentboss_confidence{executor,source} - confidence scores in [0,1]
//   - agentboss_judge_fallbacks_total - second opinions replaced by self-confidence
//   - agentboss_state_transitions_total{to} - state machine transitions by target
type Metrics struct {
	Runs             *prometheus.CounterVec
	PhaseDecisions   *prometheus.CounterVec
	Confidence       *prometheus.HistogramVec
	JudgeFallbacks   prometheus.Counter
	StateTransitions *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentboss_runs_total",
				Help: "Total number of orchestration runs by final status",
			},
			[]string{"status"},
		),
		PhaseDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentboss_phase_decisions_total",
				Help: "Reflection decisions taken per executor",
			},
			[]string{"executor", "decision"},
		),
		Confidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentboss_confidence",
				Help:    "Confidence scores observed per executor and source",
				Buckets: []float64{0.2, 0.4, 0.5, 0.6, 0.75, 0.9, 1},
			},
			[]string{"executor", "source"},
		),
		JudgeFallbacks: f.NewCounter(
			prometheus.CounterOpts{
				Name: "agentboss_judge_fallbacks_total",
				Help: "Second opinions that failed and fell back to self-confidence",
			},
		),
		StateTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentboss_state_transitions_total",
				Help: "State machine transitions by target state",
			},
			[]string{"to"},
		),
	}
}

// ObserveConfidence records a score for executor. Nil-safe.
func (m *Metrics) ObserveConfidence(executor, source string, v float64) {
	if m == nil {
		return
	}
	m.Confidence.WithLabelValues(executor, source).Observe(v)
}

// JudgeFallback counts one failed second opinion. Nil-safe.
func (m *Metrics) JudgeFallback() {
	if m == nil {
		return
	}
	m.JudgeFallbacks.Inc()
}

// #endregion metrics

// #region sink

// Publish implements logging.Sink, counting transitions, decisions and
// completed runs from the event stream.
func (m *Metrics) Publish(e logging.Event) error {
	if m == nil {
		return nil
	}
	switch e.Type {
	case logging.EventStateTransition:
		m.StateTransitions.WithLabelValues(field(e, "to")).Inc()
	case logging.EventDecision:
		m.PhaseDecisions.WithLabelValues(e.Executor, field(e, "decision")).Inc()
	case logging.EventRunCompleted:
		m.Runs.WithLabelValues(field(e, "status")).Inc()
	}
	return nil
}

func field(e logging.Event, key string) string {
	v, ok := e.Fields[key]
	if !ok || v == nil {
		return "unknown"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// #endregion sink
