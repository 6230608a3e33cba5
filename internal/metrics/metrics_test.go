package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/agent-boss/internal/logging"
)

func TestSink_CountsEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())
	rec := logging.NewRecorder(nil, m)

	rec.StateTransition("r", "research_agent", "IDLE", "PLANNING", "start", false)
	rec.StateTransition("r", "research_agent", "PLANNING", "TOOL_EXECUTION", "go", false)
	rec.StateTransition("r", "analyst_agent", "IDLE", "PLANNING", "start", false)
	rec.Decision("r", "analyst_agent", "replan", "low", nil)
	rec.Decision("r", "analyst_agent", "proceed", "ok", nil)
	rec.RunCompleted("r", "completed", 81)
	rec.ToolCall("r", "research_agent", "web_search", 0, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StateTransitions.WithLabelValues("PLANNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StateTransitions.WithLabelValues("TOOL_EXECUTION")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PhaseDecisions.WithLabelValues("analyst_agent", "replan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PhaseDecisions.WithLabelValues("analyst_agent", "proceed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("completed")))
}

func TestSink_MissingFieldIsUnknown(t *testing.T) {
	m := New(prometheus.NewRegistry())
	require.NoError(t, m.Publish(logging.Event{Type: logging.EventRunCompleted}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("unknown")))
}

func TestConfidenceAndFallbacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveConfidence("research_agent", SourceSelf, 0.8)
	m.ObserveConfidence("research_agent", SourceJudge, 0.7)
	m.JudgeFallback()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JudgeFallbacks))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Confidence))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP agentboss_judge_fallbacks_total Second opinions that failed and fell back to self-confidence
# TYPE agentboss_judge_fallbacks_total counter
agentboss_judge_fallbacks_total 1
`), "agentboss_judge_fallbacks_total")
	assert.NoError(t, err)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveConfidence("x", SourceSelf, 1)
		m.JudgeFallback()
		_ = m.Publish(logging.Event{Type: logging.EventDecision})
	})
}
