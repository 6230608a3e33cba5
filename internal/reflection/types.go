// Package reflection scores executor output and turns scores into
// proceed/replan/error-recover decisions.
package reflection

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region factor-names

const (
	FactorSourceCount       = "source_count"
	FactorSourceReliability = "source_reliability"
	FactorCompleteness      = "completeness"
	FactorRelevance         = "relevance"

	FactorInsightDepth     = "insight_depth"
	FactorConsistency      = "consistency"
	FactorPatternClarity   = "pattern_clarity"
	FactorEvidenceStrength = "evidence_strength"

	FactorSpecificity   = "specificity"
	FactorActionability = "actionability"
	FactorAlignment     = "alignment"
	FactorFeasibility   = "feasibility"

	FactorSelfAssessment = "self_assessment"
	FactorBossAssessment = "boss_assessment"
)

// #endregion factor-names

// #region score

// Score is a validated confidence assessment. Construct with NewScore.
type Score struct {
	Overall   float64            `json:"overall" yaml:"overall"`
	Factors   map[string]float64 `json:"factors" yaml:"factors"`
	Role      task.Role          `json:"role" yaml:"role"`
	Rationale string             `json:"rationale" yaml:"rationale"`
}

// NewScore rejects an overall or factor value outside [0,1]. Values are never clamped.
func NewScore(overall float64, factors map[string]float64, role task.Role, rationale string) (Score, error) {
	const op = "reflection.NewScore"
	if !inUnit(overall) {
		return Score{}, errs.Errorf(errs.KindValidation, op, "overall %v outside [0,1]", overall)
	}
	copied := make(map[string]float64, len(factors))
	for name, v := range factors {
		if !inUnit(v) {
			return Score{}, errs.Errorf(errs.KindValidation, op, "factor %s=%v outside [0,1]", name, v)
		}
		copied[name] = v
	}
	return Score{Overall: overall, Factors: copied, Role: role, Rationale: rationale}, nil
}

// FactorNames returns the factor names in sorted order.
func (s Score) FactorNames() []string {
	names := make([]string, 0, len(s.Factors))
	for n := range s.Factors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// #endregion score

// #region rationale

const (
	strongFactor = 0.7
	weakFactor   = 0.5
)

// Rationale lists strong (≥0.7) and weak (<0.5) factors in the given order.
func Rationale(role task.Role, order []string, factors map[string]float64) string {
	var strong, weak []string
	for _, name := range order {
		v, ok := factors[name]
		if !ok {
			continue
		}
		switch {
		case v >= strongFactor:
			strong = append(strong, name)
		case v < weakFactor:
			weak = append(weak, name)
		}
	}
	var parts []string
	if len(strong) > 0 {
		parts = append(parts, "strong "+strings.Join(strong, ", "))
	}
	if len(weak) > 0 {
		parts = append(parts, "weak "+strings.Join(weak, ", "))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: moderate performance across all factors", role)
	}
	return fmt.Sprintf("%s: %s", role, strings.Join(parts, "; "))
}

// #endregion rationale

// #region thresholds

// Thresholds partition [0,1] into proceed, replan and error-recover bands.
type Thresholds struct {
	High          float64 `koanf:"high_threshold"`
	Low           float64 `koanf:"low_threshold"`
	MinAcceptable float64 `koanf:"min_acceptable"`
}

// DefaultThresholds returns high 0.75, low 0.50, minimum acceptable 0.40.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.75, Low: 0.50, MinAcceptable: 0.40}
}

// Validate requires each value in [0,1] and MinAcceptable < Low < High.
func (t Thresholds) Validate() error {
	const op = "reflection.Thresholds"
	for name, v := range map[string]float64{"high": t.High, "low": t.Low, "min_acceptable": t.MinAcceptable} {
		if !inUnit(v) {
			return errs.Errorf(errs.KindConfiguration, op, "%s threshold %v outside [0,1]", name, v)
		}
	}
	if !(t.MinAcceptable < t.Low && t.Low < t.High) {
		return errs.Errorf(errs.KindConfiguration, op,
			"thresholds must satisfy min_acceptable < low < high, got %.2f / %.2f / %.2f",
			t.MinAcceptable, t.Low, t.High)
	}
	return nil
}

// #endregion thresholds

// #region decision

// Outcome is the three-way result of a confidence decision.
type Outcome string

const (
	OutcomeProceed      Outcome = "proceed"
	OutcomeReplan       Outcome = "replan"
	OutcomeErrorRecover Outcome = "error_recover"
)

// Decision is a decided outcome with its explanation.
type Decision struct {
	Outcome    Outcome
	Moderate   bool // proceed taken in the low..high band
	Confidence float64
	Executor   string
	Reasoning  string
}

// #endregion decision
