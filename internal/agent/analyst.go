package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/llm"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region analyst

var insightParams = llm.Params{MaxTokens: 800, Temperature: 0.7}

// Analyst draws patterns and insights from committed gathering output.
type Analyst struct {
	Base
}

// NewAnalyst builds the analysis executor. gen may be nil, in which case
// template analysis is produced.
func NewAnalyst(gen llm.Generator, opts ...Option) *Analyst {
	a := &Analyst{}
	a.init(AnalystName, task.RoleAnalysis, gen, opts...)
	return a
}

// Execute analyzes prior gathering output. Without it the output carries
// self confidence 20.
func (a *Analyst) Execute(ctx context.Context, tc task.Context) (task.Output, error) {
	start := nowFunc()

	prior := tc.Prior.Gathering
	if prior == nil {
		return task.NewOutput(a.name, tc.TaskID,
			task.Payload{Analysis: "No data available for analysis."},
			20, "Insufficient data for meaningful analysis", nil, elapsedSince(start))
	}

	analysis, err := a.generate(ctx, tc.RunID, "llm_analysis", analysisPrompt(tc.Description, prior), summaryParams)
	if err != nil {
		a.log.Info("analysis generation failed, using template", zap.Error(err))
		analysis = templateAnalysis(tc.Description, prior)
	}

	patterns := identifyPatterns(prior)

	var insights []string
	text, err := a.generate(ctx, tc.RunID, "llm_insights", insightsPrompt(tc.Description, analysis), insightParams)
	if err == nil {
		insights = ExtractItems(text, 1, 5)
	} else {
		a.log.Info("insight generation failed, using template", zap.Error(err))
	}
	if len(insights) == 0 {
		insights = templateInsights(tc.Description, prior)
	}

	return task.NewOutput(a.name, tc.TaskID,
		task.Payload{Analysis: analysis, Insights: insights, Patterns: patterns},
		analysisConfidence(len(insights), len(patterns)),
		fmt.Sprintf("Completed analysis with %d patterns identified and %d insights generated", len(patterns), len(insights)),
		nil, elapsedSince(start))
}

// analysisConfidence gives up to 50 points each for insights and patterns; three of each saturates.
func analysisConfidence(insights, patterns int) int {
	if insights == 0 && patterns == 0 {
		return 20
	}
	unit := func(n int) float64 {
		v := float64(n) / 3
		if v > 1 {
			return 1
		}
		return v
	}
	return int(unit(insights)*50 + unit(patterns)*50)
}

func analysisPrompt(desc string, prior *task.Output) string {
	summary := prior.Result.Summary
	if summary == "" {
		summary = truncate(prior.Result.Serialize(), 1000)
	}
	var b strings.Builder
	b.WriteString("You are a data analyst. Analyze the following research findings and provide a comprehensive analysis.\n\n")
	fmt.Fprintf(&b, "Task: %s\n\n", desc)
	fmt.Fprintf(&b, "Research Findings:\n%s findings:\n%s\n\n", prior.Executor, summary)
	b.WriteString("Please provide:\n")
	b.WriteString("1. A detailed analysis of the findings\n")
	b.WriteString("2. Key patterns and trends you observe\n")
	b.WriteString("3. Important connections between different pieces of information\n")
	b.WriteString("4. Any notable insights or conclusions\n\n")
	b.WriteString("Be specific and analytical in your response.")
	return b.String()
}

func insightsPrompt(desc, analysis string) string {
	return fmt.Sprintf("Based on the following analysis, generate 3-5 key insights that directly answer the research question.\n\n"+
		"Research Question: %s\n\nAnalysis:\n%s\n\n"+
		"Please provide specific, actionable insights. Format each insight as a clear statement.", desc, analysis)
}

func identifyPatterns(prior *task.Output) []string {
	patterns := []string{
		fmt.Sprintf("Average confidence across executors: %.1f%%", float64(prior.SelfConfidence)),
		fmt.Sprintf("Total data volume: %d characters", len(prior.Result.Text())),
	}
	if n := len(prior.Sources); n > 0 {
		reliable := 0
		for _, s := range prior.Sources {
			if reflection.IsAuthoritative(s) {
				reliable++
			}
		}
		patterns = append(patterns, fmt.Sprintf("%s: %d/%d reliable sources", prior.Executor, reliable, n))
	}
	return patterns
}

func templateAnalysis(desc string, prior *task.Output) string {
	lines := []string{
		"Analysis of: " + desc,
		"",
		"Data sources analyzed: 1",
		"",
		strings.ToUpper(prior.Executor) + " Analysis:",
		fmt.Sprintf("- Confidence level: %d%%", prior.SelfConfidence),
		fmt.Sprintf("- findings: %d items", len(prior.Result.Findings)),
	}
	if prior.Result.Summary != "" {
		lines = append(lines, "- summary: "+preview(prior.Result.Summary, 300))
	}
	return strings.Join(lines, "\n")
}

func templateInsights(desc string, prior *task.Output) []string {
	c := prior.SelfConfidence
	quality := "low"
	switch {
	case c >= 70:
		quality = "high"
	case c >= 50:
		quality = "moderate"
	}
	return []string{
		fmt.Sprintf("Overall data quality is %s with average confidence of %d.0%%", quality, c),
		"Analysis completed for: " + desc,
	}
}

// #endregion analyst
