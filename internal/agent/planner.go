package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/llm"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region planner

var recommendationParams = llm.Params{MaxTokens: 1000, Temperature: 0.7}

// Planner turns committed gathering and analysis output into recommendations
// and an action plan.
type Planner struct {
	Base
}

// NewPlanner builds the planning executor. gen may be nil, in which case
// template recommendations are produced.
func NewPlanner(gen llm.Generator, opts ...Option) *Planner {
	p := &Planner{}
	p.init(PlannerName, task.RolePlanning, gen, opts...)
	return p
}

// Execute plans from whatever prior output exists. With none the output
// carries self confidence 20.
func (p *Planner) Execute(ctx context.Context, tc task.Context) (task.Output, error) {
	start := nowFunc()

	var priors []*task.Output
	for _, o := range []*task.Output{tc.Prior.Gathering, tc.Prior.Analysis} {
		if o != nil {
			priors = append(priors, o)
		}
	}
	if len(priors) == 0 {
		return task.NewOutput(p.name, tc.TaskID,
			task.Payload{Summary: "No previous outputs available for strategic planning."},
			20, "No input data for strategy generation", nil, elapsedSince(start))
	}

	avg := 0.0
	for _, o := range priors {
		avg += float64(o.SelfConfidence)
	}
	avg /= float64(len(priors))

	var recs []string
	text, err := p.generate(ctx, tc.RunID, "llm_recommendations", recommendationPrompt(tc.Description, tc.Prior, avg), recommendationParams)
	if err == nil {
		recs = ExtractItems(text, 20, 5)
		if len(recs) == 0 && strings.TrimSpace(text) != "" {
			recs = []string{strings.TrimSpace(text)}
		}
	} else {
		p.log.Info("recommendation generation failed, using template", zap.Error(err))
	}
	if len(recs) == 0 {
		recs = templateRecommendations(tc.Prior, avg)
	}

	plan := actionPlan(recs)
	feasibility := feasibilityScore(avg, len(recs))
	level := feasibilityLevel(feasibility)

	return task.NewOutput(p.name, tc.TaskID,
		task.Payload{
			Summary:         strategySummary(tc.Description, recs),
			Recommendations: recs,
			ActionPlan:      plan,
			Extra: map[string]string{
				"feasibility_level": level,
				"feasibility_score": fmt.Sprintf("%.2f", feasibility),
			},
		},
		planningConfidence(len(recs), len(plan), feasibility),
		fmt.Sprintf("Generated comprehensive strategy with %d recommendations and %d-step action plan", len(recs), len(plan)),
		nil, elapsedSince(start))
}

// planningConfidence weighs recommendations (40), plan steps (30) and feasibility (30).
func planningConfidence(recs, steps int, feasibility float64) int {
	if recs == 0 {
		return 20
	}
	unit := func(v float64) float64 {
		if v > 1 {
			return 1
		}
		return v
	}
	return int(unit(float64(recs)/3)*40 + unit(float64(steps)/4)*30 + feasibility*30)
}

// feasibilityScore blends data quality, complexity (more recommendations is
// harder) and a fixed resource estimate.
func feasibilityScore(avgConfidence float64, recs int) float64 {
	dataQuality := avgConfidence / 100
	complexity := 1 - float64(recs)*0.1
	if complexity < 0.5 {
		complexity = 0.5
	}
	const resources = 0.8
	return dataQuality*0.4 + complexity*0.3 + resources*0.3
}

func feasibilityLevel(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.5:
		return "moderate"
	}
	return "low"
}

func recommendationPrompt(desc string, prior task.Prior, avg float64) string {
	var b strings.Builder
	b.WriteString("You are a strategic advisor. Based on the research and analysis provided, generate 3-5 specific, actionable strategic recommendations.\n\n")
	fmt.Fprintf(&b, "Research Question: %s\n\n", desc)
	if prior.Gathering != nil && prior.Gathering.Result.Summary != "" {
		fmt.Fprintf(&b, "Key Research Findings:\n- %s\n\n", truncate(prior.Gathering.Result.Summary, 1000))
	}
	if prior.Analysis != nil && len(prior.Analysis.Result.Insights) > 0 {
		b.WriteString("Analysis Insights:\n")
		for i, in := range prior.Analysis.Result.Insights {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", in)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Overall Data Confidence: %.1f%%\n\n", avg)
	b.WriteString("Each recommendation should be specific, directly related to the research question and actionable with clear next steps.\n")
	b.WriteString("Format: Provide each recommendation as a separate numbered point.")
	return b.String()
}

func templateRecommendations(prior task.Prior, avg float64) []string {
	var recs []string
	switch {
	case avg >= 70:
		recs = append(recs, fmt.Sprintf("Proceed with implementation based on high confidence (%.1f%%) findings. The research data strongly supports moving forward.", avg))
	case avg >= 50:
		recs = append(recs, fmt.Sprintf("Validate key findings before full implementation. Moderate confidence (%.1f%%) suggests additional verification would strengthen the strategy.", avg))
	default:
		recs = append(recs, fmt.Sprintf("Conduct additional research to improve data quality. Low confidence (%.1f%%) indicates insufficient data for strategic decision-making.", avg))
	}
	if prior.Analysis != nil {
		for i, in := range prior.Analysis.Result.Insights {
			if i == 2 {
				break
			}
			recs = append(recs, "Act on the analysis finding: "+in)
		}
	}
	return recs
}

func actionPlan(recs []string) []string {
	plan := []string{
		fmt.Sprintf("Step 1: Review and prioritize all %d recommendations based on impact and feasibility (timeline: 1-2 days)", len(recs)),
	}
	if len(recs) > 0 {
		starts := make([]string, 0, 2)
		for i, r := range recs {
			if i == 2 {
				break
			}
			starts = append(starts, preview(r, 50))
		}
		plan = append(plan, fmt.Sprintf("Step 2: Implement %d strategic recommendations, starting with: %s (timeline: 1-2 weeks)", len(recs), strings.Join(starts, "; ")))
	}
	plan = append(plan,
		fmt.Sprintf("Step %d: Define KPIs and monitor progress to measure results (timeline: ongoing)", len(plan)+1),
		fmt.Sprintf("Step %d: Iterate on the strategy based on results and feedback (timeline: ongoing)", len(plan)+2),
	)
	return plan
}

func strategySummary(desc string, recs []string) string {
	lines := []string{
		"Strategic Plan for: " + desc,
		"",
		fmt.Sprintf("Generated %d strategic recommendations:", len(recs)),
	}
	for i, r := range recs {
		if i == 3 {
			lines = append(lines, "", fmt.Sprintf("... and %d more recommendations", len(recs)-3))
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, preview(r, 100)))
	}
	return strings.Join(lines, "\n")
}

// #endregion planner
