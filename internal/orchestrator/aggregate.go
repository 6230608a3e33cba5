package orchestrator

import (
	"github.com/google/uuid"

	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region aggregate

// snapshot builds the parts of a result shared by success and failure: ids,
// participating executors and their confidence entries.
func (b *Boss) snapshot(goal string) task.OrchestrationResult {
	b.mu.RLock()
	defer b.mu.RUnlock()

	runID := b.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	res := task.OrchestrationResult{
		Goal:            goal,
		RunID:           runID,
		CompletedAt:     b.now().UTC(),
		Executors:       append([]string{}, b.order...),
		Confidence:      make(map[string]task.ExecutorConfidence, len(b.committed)),
		Insights:        []string{},
		Recommendations: []string{},
		Sources:         []task.Source{},
	}
	for _, name := range b.order {
		c := b.committed[name]
		res.Confidence[name] = task.ExecutorConfidence{
			Self:                  c.self.Overall,
			SecondOpinion:         c.second,
			Combined:              c.combined.Overall,
			Factors:               c.combined.Factors,
			SecondOpinionFallback: c.fallback,
			Attempts:              c.attempts,
		}
	}
	return res
}

// aggregate pools every committed phase into the final result. Overall
// confidence is the mean combined score on a 0–100 scale.
func (b *Boss) aggregate(goal string) task.OrchestrationResult {
	res := b.snapshot(goal)

	b.mu.RLock()
	defer b.mu.RUnlock()

	var sum float64
	for _, name := range b.order {
		c := b.committed[name]
		sum += c.combined.Overall
		switch c.phase {
		case task.PhaseResearch:
			if c.output.Result.Summary != "" {
				res.Insights = append(res.Insights, "Research: "+c.output.Result.Summary)
			}
			for _, url := range c.output.Sources {
				res.Sources = append(res.Sources, sourceFor(url))
			}
		case task.PhaseAnalysis:
			res.Insights = append(res.Insights, c.output.Result.Insights...)
		case task.PhaseStrategy:
			res.Recommendations = append(res.Recommendations, c.output.Result.Recommendations...)
		}
	}
	if len(b.order) > 0 {
		res.OverallConfidence = sum / float64(len(b.order)) * 100
	}
	return res
}

func sourceFor(url string) task.Source {
	reliability := "medium"
	if reflection.IsAuthoritative(url) {
		reliability = "high"
	}
	return task.Source{URL: url, Type: "web", Reliability: reliability}
}

// #endregion
