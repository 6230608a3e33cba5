package reflection

// #region imports
import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #endregion

// #region vocabularies

// AuthoritativeMarkers flag reference strings from institutional domains.
var AuthoritativeMarkers = []string{".edu", ".gov", ".org"}

var analyticMarkers = []string{"because", "therefore", "indicates", "suggests", "correlation", "pattern"}

var contradictionMarkers = []string{"however", "but", "although", "contradicts"}

var structuralMarkers = []string{"1.", "2.", "-", "*", "•"}

var evidenceMarkers = []string{"data", "shows", "demonstrates", "evidence", "results"}

var concreteActionMarkers = []string{"step", "action", "implement", "execute", "timeline", "deadline"}

var actionVerbMarkers = []string{"create", "develop", "build", "design", "test", "deploy", "monitor"}

var realismMarkers = []string{"realistic", "achievable", "practical", "feasible"}

// #endregion vocabularies

// #region weights

// weight is a factor's share of overall, in percent.
type weight struct {
	name    string
	percent int
}

var roleWeights = map[task.Role][]weight{
	task.RoleGathering: {
		{FactorSourceCount, 25},
		{FactorSourceReliability, 30},
		{FactorCompleteness, 20},
		{FactorRelevance, 25},
	},
	task.RoleAnalysis: {
		{FactorInsightDepth, 30},
		{FactorConsistency, 25},
		{FactorPatternClarity, 20},
		{FactorEvidenceStrength, 25},
	},
	task.RolePlanning: {
		{FactorSpecificity, 30},
		{FactorActionability, 30},
		{FactorAlignment, 20},
		{FactorFeasibility, 20},
	},
}

// FactorOrder returns the factor names for role in weight order.
func FactorOrder(role task.Role) []string {
	ws := roleWeights[role]
	names := make([]string, len(ws))
	for i, w := range ws {
		names[i] = w.name
	}
	return names
}

// #endregion weights

// #region evaluator

// Evaluator scores outputs and decides against validated thresholds.
type Evaluator struct {
	thresholds Thresholds
}

// New validates thresholds and returns an evaluator.
func New(t Thresholds) (*Evaluator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{thresholds: t}, nil
}

// Thresholds returns the active thresholds.
func (e *Evaluator) Thresholds() Thresholds { return e.thresholds }

// #endregion evaluator

// #region score

// Score computes a role-specific confidence score via keyword heuristics over
// the serialized result, keys included. No model call.
// An empty taskDescription gives relevance and alignment a neutral 0.5.
func (e *Evaluator) Score(out task.Output, role task.Role, taskDescription string) (Score, error) {
	var factors map[string]float64
	switch role {
	case task.RoleGathering:
		factors = gatheringFactors(out, taskDescription)
	case task.RoleAnalysis:
		factors = analysisFactors(out)
	case task.RolePlanning:
		factors = planningFactors(out, taskDescription)
	default:
		return Score{}, errs.Errorf(errs.KindUnsupported, "reflection.Score", "no heuristics for role %q", role)
	}

	// Integer percentages keep the sum within [0,1] without clamping.
	var sum float64
	for _, w := range roleWeights[role] {
		sum += float64(w.percent) * factors[w.name]
	}
	overall := sum / 100

	return NewScore(overall, factors, role, Rationale(role, FactorOrder(role), factors))
}

// #endregion score

// #region gathering

func gatheringFactors(out task.Output, taskDescription string) map[string]float64 {
	text := strings.ToLower(out.Result.Serialize())

	sourceCount := capUnit(float64(len(out.Sources)) / 5)

	reliability := 0.0
	if len(out.Sources) > 0 {
		reliable := 0
		for _, s := range out.Sources {
			if IsAuthoritative(s) {
				reliable++
			}
		}
		reliability = float64(reliable) / float64(len(out.Sources))
	}

	return map[string]float64{
		FactorSourceCount:       sourceCount,
		FactorSourceReliability: reliability,
		FactorCompleteness:      capUnit(float64(len(text)) / 1000),
		FactorRelevance:         keywordCoverage(taskDescription, text),
	}
}

// IsAuthoritative reports whether ref contains an institutional-domain marker.
func IsAuthoritative(ref string) bool {
	lower := strings.ToLower(ref)
	for _, m := range AuthoritativeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// #endregion gathering

// #region analysis

func analysisFactors(out task.Output) map[string]float64 {
	result := strings.ToLower(out.Result.Serialize())
	content := result + " " + strings.ToLower(out.Reasoning)

	consistency := 1 - 0.2*float64(countPresent(content, contradictionMarkers))
	if consistency < 0 {
		consistency = 0
	}

	clarity := 0.4
	if countPresent(result, structuralMarkers) > 0 {
		clarity = 0.8
	}

	return map[string]float64{
		FactorInsightDepth:     capUnit(float64(countPresent(content, analyticMarkers)) / 3),
		FactorConsistency:      consistency,
		FactorPatternClarity:   clarity,
		FactorEvidenceStrength: capUnit(float64(countPresent(content, evidenceMarkers)) / 3),
	}
}

// #endregion analysis

// #region planning

func planningFactors(out task.Output, taskDescription string) map[string]float64 {
	content := strings.ToLower(out.Result.Serialize() + " " + out.Reasoning)

	feasibility := 0.5
	if countPresent(content, realismMarkers) > 0 {
		feasibility = 0.8
	}

	return map[string]float64{
		FactorSpecificity:   capUnit(float64(countPresent(content, concreteActionMarkers)) / 4),
		FactorActionability: capUnit(float64(countPresent(content, actionVerbMarkers)) / 3),
		FactorAlignment:     keywordCoverage(taskDescription, content),
		FactorFeasibility:   feasibility,
	}
}

// #endregion planning

// #region helpers

// countPresent counts how many markers occur at least once in lower.
func countPresent(lower string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}

// keywordCoverage is the fraction of description words found in lower, or 0.5 with no description.
func keywordCoverage(description, lower string) float64 {
	keywords := strings.Fields(strings.ToLower(description))
	if len(keywords) == 0 {
		return 0.5
	}
	found := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			found++
		}
	}
	return capUnit(float64(found) / float64(len(keywords)))
}

func capUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers

// #region decide

// Decide maps overall confidence onto exactly one outcome. Moderate scores
// (low ≤ overall < high) still proceed and are flagged Moderate.
func (e *Evaluator) Decide(out task.Output, score Score) Decision {
	t := e.thresholds
	c := score.Overall
	d := Decision{Confidence: c, Executor: out.Executor}
	switch {
	case c >= t.High:
		d.Outcome = OutcomeProceed
		d.Reasoning = fmt.Sprintf("High confidence (%.2f) - proceeding to next stage.", c)
	case c >= t.Low:
		d.Outcome = OutcomeProceed
		d.Moderate = true
		d.Reasoning = fmt.Sprintf("Moderate confidence (%.2f) - proceeding with caution.", c)
	case c >= t.MinAcceptable:
		d.Outcome = OutcomeReplan
		d.Reasoning = fmt.Sprintf("Low confidence (%.2f) - replanning recommended.", c)
	default:
		d.Outcome = OutcomeErrorRecover
		d.Reasoning = fmt.Sprintf("Unacceptable confidence (%.2f) - error recovery required.", c)
	}
	return d
}

// ShouldReplan is true for a score below the low threshold while retries remain.
func (e *Evaluator) ShouldReplan(score Score, retryCount, maxRetries int) bool {
	if retryCount >= maxRetries {
		return false
	}
	return score.Overall < e.thresholds.Low
}

// #endregion decide
