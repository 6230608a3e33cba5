package task

import "time"

// #region phase

// Phase is one step of the fixed pipeline. Phases only move forward.
type Phase string

const (
	PhaseResearch Phase = "RESEARCH"
	PhaseAnalysis Phase = "ANALYSIS"
	PhaseStrategy Phase = "STRATEGY"
	PhaseComplete Phase = "COMPLETE"
)

// Phases lists the working phases in execution order.
var Phases = []Phase{PhaseResearch, PhaseAnalysis, PhaseStrategy}

// Next returns the phase after p. COMPLETE is its own successor.
func (p Phase) Next() Phase {
	switch p {
	case PhaseResearch:
		return PhaseAnalysis
	case PhaseAnalysis:
		return PhaseStrategy
	default:
		return PhaseComplete
	}
}

// Role returns the executor role that serves p.
func (p Phase) Role() Role {
	switch p {
	case PhaseResearch:
		return RoleGathering
	case PhaseAnalysis:
		return RoleAnalysis
	case PhaseStrategy:
		return RolePlanning
	}
	return ""
}

// #endregion phase

// #region result

// Source is a provenance reference surfaced in the final result.
type Source struct {
	URL         string `json:"url" yaml:"url"`
	Type        string `json:"type" yaml:"type"`
	Reliability string `json:"reliability" yaml:"reliability"`
}

// ExecutorConfidence is the confidence recorded for one committed phase. Values are in [0,1].
type ExecutorConfidence struct {
	Self                  float64            `json:"self" yaml:"self"`
	SecondOpinion         float64            `json:"second_opinion" yaml:"second_opinion"`
	Combined              float64            `json:"combined" yaml:"combined"`
	Factors               map[string]float64 `json:"factors,omitempty" yaml:"factors,omitempty"`
	SecondOpinionFallback bool               `json:"second_opinion_fallback,omitempty" yaml:"second_opinion_fallback,omitempty"`
	Attempts              int                `json:"attempts" yaml:"attempts"`
}

// OrchestrationResult is the outcome of one run. OverallConfidence is in [0,100].
type OrchestrationResult struct {
	Goal              string                        `json:"goal" yaml:"goal"`
	RunID             string                        `json:"run_id" yaml:"run_id"`
	CompletedAt       time.Time                     `json:"completed_at" yaml:"completed_at"`
	Executors         []string                      `json:"executors" yaml:"executors"`
	Confidence        map[string]ExecutorConfidence `json:"confidence" yaml:"confidence"`
	Insights          []string                      `json:"insights" yaml:"insights"`
	Recommendations   []string                      `json:"recommendations" yaml:"recommendations"`
	Sources           []Source                      `json:"sources" yaml:"sources"`
	OverallConfidence float64                       `json:"overall_confidence" yaml:"overall_confidence"`
	Failed            bool                          `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// #endregion result
