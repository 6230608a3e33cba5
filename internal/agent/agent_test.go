package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/llm"
	"github.com/danielpatrickdp/agent-boss/internal/logging"
	"github.com/danielpatrickdp/agent-boss/internal/task"
	"github.com/danielpatrickdp/agent-boss/internal/websearch"
)

// #region helpers

func fakeGen(t *testing.T, responses ...string) llm.Generator {
	t.Helper()
	cfg := llm.DefaultConfig()
	cfg.RequestsPerSecond = 0
	g, err := llm.NewLangchain(fake.NewFakeLLM(responses), cfg, nil)
	require.NoError(t, err)
	return g
}

func failingGen() llm.Generator {
	return llm.GeneratorFunc(func(context.Context, string, llm.Params) (string, error) {
		return "", errs.New(errs.KindModel, "test", "model offline")
	})
}

func staticSearch(results []websearch.Result, err error) websearch.Searcher {
	return websearch.SearcherFunc(func(context.Context, string, int) ([]websearch.Result, error) {
		return results, err
	})
}

func fiveResults() []websearch.Result {
	long := strings.Repeat("solar capacity data shows growth ", 4)
	return []websearch.Result{
		{Title: "NREL", Snippet: long, URL: "https://nrel.gov/solar"},
		{Title: "MIT", Snippet: long, URL: "https://mit.edu/energy"},
		{Title: "IEA", Snippet: long, URL: "https://iea.org/reports"},
		{Title: "Blog", Snippet: "short", URL: "https://blog.com/post"},
		{Title: "News", Snippet: "short", URL: "https://news.com/a"},
	}
}

func tc(desc string) task.Context {
	return task.Context{RunID: "run1", TaskID: "run1_x", Goal: desc, Description: desc}
}

// #endregion helpers

// #region retry-counter-tests

func TestRetryCounter(t *testing.T) {
	r := NewRetryCounter(2)
	assert.True(t, r.RetriesRemaining())
	assert.Equal(t, 1, r.IncrementRetry())
	assert.Equal(t, 2, r.IncrementRetry())
	assert.False(t, r.RetriesRemaining())
	r.ResetRetry()
	assert.Equal(t, 0, r.Retries())
	assert.True(t, r.RetriesRemaining())
}

func TestWithMaxRetries(t *testing.T) {
	a := NewAnalyst(nil, WithMaxRetries(0))
	assert.False(t, a.RetriesRemaining())
}

// #endregion retry-counter-tests

// #region gatherer-tests

func TestGatherer_NoResults(t *testing.T) {
	g := NewGatherer(staticSearch(nil, nil), websearch.DefaultConfig(), fakeGen(t, "unused"))
	out, err := g.Execute(context.Background(), tc("solar in texas"))
	require.NoError(t, err)
	assert.Equal(t, 20, out.SelfConfidence)
	assert.Empty(t, out.Sources)
	assert.Equal(t, GathererName, out.Executor)
	assert.Equal(t, "Search returned no results", out.Reasoning)
}

func TestGatherer_SummarizesWithModel(t *testing.T) {
	g := NewGatherer(staticSearch(fiveResults(), nil), websearch.DefaultConfig(), fakeGen(t, "Solar capacity grew 40%."))
	out, err := g.Execute(context.Background(), tc("solar capacity"))
	require.NoError(t, err)

	assert.Equal(t, 80, out.SelfConfidence, "5 sources give 50, 3/5 with content give 30")
	assert.Equal(t, "Solar capacity grew 40%.", out.Result.Summary)
	assert.Len(t, out.Result.Findings, 5)
	assert.Equal(t, "https://nrel.gov/solar", out.Sources[0])
	assert.Contains(t, out.Reasoning, "retrieved full content from 3 sources")
}

func TestGatherer_TemplateWhenModelFails(t *testing.T) {
	g := NewGatherer(staticSearch(fiveResults(), nil), websearch.DefaultConfig(), failingGen())
	out, err := g.Execute(context.Background(), tc("solar capacity"))
	require.NoError(t, err)
	assert.Contains(t, out.Result.Summary, "Research query: solar capacity")
	assert.Contains(t, out.Result.Summary, "3 out of 5 sources from authoritative domains")
	assert.Equal(t, 80, out.SelfConfidence)
}

func TestGatherer_NoContent(t *testing.T) {
	results := []websearch.Result{{Title: "a", Snippet: "tiny", URL: "https://a.com"}}
	g := NewGatherer(staticSearch(results, nil), websearch.DefaultConfig(), nil)
	out, err := g.Execute(context.Background(), tc("q"))
	require.NoError(t, err)
	assert.Equal(t, 10, out.SelfConfidence)
	assert.Equal(t, "Found 1 sources but could not retrieve full content", out.Reasoning)
}

func TestGatherer_RateLimitedSearchFails(t *testing.T) {
	g := NewGatherer(staticSearch(nil, errs.New(errs.KindRateLimit, "search", "429")), websearch.DefaultConfig(), nil)
	_, err := g.Execute(context.Background(), tc("q"))
	assert.True(t, errs.IsRateLimited(err))
}

func TestGatherer_OtherSearchErrorIsEmpty(t *testing.T) {
	g := NewGatherer(staticSearch(nil, errors.New("dns")), websearch.DefaultConfig(), nil)
	out, err := g.Execute(context.Background(), tc("q"))
	require.NoError(t, err)
	assert.Equal(t, 20, out.SelfConfidence)
}

func TestGatherer_RecordsToolCalls(t *testing.T) {
	var events []logging.Event
	rec := logging.NewRecorder(nil, logging.SinkFunc(func(e logging.Event) error {
		events = append(events, e)
		return nil
	}))
	g := NewGatherer(staticSearch(fiveResults(), nil), websearch.DefaultConfig(), fakeGen(t, "s"), WithRecorder(rec))
	_, err := g.Execute(context.Background(), tc("q"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "web_search", events[0].Fields["tool"])
	assert.Equal(t, "llm_summary", events[1].Fields["tool"])
}

func TestGatherer_CalculateConfidence(t *testing.T) {
	g := NewGatherer(staticSearch(fiveResults(), nil), websearch.DefaultConfig(), fakeGen(t, "solar capacity rises"))
	out, err := g.Execute(context.Background(), tc("solar capacity"))
	require.NoError(t, err)
	score, err := g.CalculateConfidence(out, "solar capacity")
	require.NoError(t, err)
	assert.Equal(t, task.RoleGathering, score.Role)
	assert.Equal(t, 1.0, score.Factors["relevance"])
}

// #endregion gatherer-tests

// #region analyst-tests

func gatheringOutput(t *testing.T) *task.Output {
	t.Helper()
	out, err := task.NewOutput(GathererName, "run1_research_agent",
		task.Payload{Summary: "Solar capacity grew 40% in 2025."},
		80, "ok", []string{"https://nrel.gov/a", "https://blog.com/b"}, 0)
	require.NoError(t, err)
	return &out
}

func TestAnalyst_NoPrior(t *testing.T) {
	a := NewAnalyst(fakeGen(t, "x"))
	out, err := a.Execute(context.Background(), tc("q"))
	require.NoError(t, err)
	assert.Equal(t, 20, out.SelfConfidence)
	assert.Equal(t, "Insufficient data for meaningful analysis", out.Reasoning)
}

func TestAnalyst_ModelInsights(t *testing.T) {
	a := NewAnalyst(fakeGen(t,
		"Growth is driven by falling costs because panel prices dropped.",
		"1. Costs fell 30%\n2. Policy support indicates more growth\n- Storage is the bottleneck\n\n",
	))
	c := tc("solar growth")
	c.Prior.Gathering = gatheringOutput(t)

	out, err := a.Execute(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{"Costs fell 30%", "Policy support indicates more growth", "Storage is the bottleneck"}, out.Result.Insights)
	require.Len(t, out.Result.Patterns, 3)
	assert.Equal(t, "research_agent: 1/2 reliable sources", out.Result.Patterns[2])
	assert.Equal(t, 100, out.SelfConfidence)
	assert.Contains(t, out.Result.Analysis, "falling costs")
}

func TestAnalyst_TemplateWithoutModel(t *testing.T) {
	a := NewAnalyst(nil)
	c := tc("solar growth")
	c.Prior.Gathering = gatheringOutput(t)

	out, err := a.Execute(context.Background(), c)
	require.NoError(t, err)
	assert.Len(t, out.Result.Insights, 2)
	assert.Contains(t, out.Result.Insights[0], "Overall data quality is high")
	assert.Equal(t, 83, out.SelfConfidence)
	assert.Contains(t, out.Result.Analysis, "RESEARCH_AGENT Analysis:")
}

// #endregion analyst-tests

// #region planner-tests

func TestPlanner_NoPrior(t *testing.T) {
	p := NewPlanner(nil)
	out, err := p.Execute(context.Background(), tc("q"))
	require.NoError(t, err)
	assert.Equal(t, 20, out.SelfConfidence)
	assert.Empty(t, out.Result.Recommendations)
}

func TestPlanner_ModelRecommendations(t *testing.T) {
	p := NewPlanner(fakeGen(t, "Here you go:\n1. Build a pilot solar farm in west Texas\n2. Develop storage partnerships with utilities\n3. Deploy a monitoring dashboard for output\nok"))
	c := tc("solar strategy")
	c.Prior.Gathering = gatheringOutput(t)
	analysis, err := task.NewOutput(AnalystName, "run1_analyst_agent", task.Payload{Insights: []string{"Costs fell"}}, 100, "", nil, 0)
	require.NoError(t, err)
	c.Prior.Analysis = &analysis

	out, err := p.Execute(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Build a pilot solar farm in west Texas",
		"Develop storage partnerships with utilities",
		"Deploy a monitoring dashboard for output",
	}, out.Result.Recommendations)
	assert.Len(t, out.Result.ActionPlan, 4)
	assert.Equal(t, "high", out.Result.Extra["feasibility_level"])
	assert.Equal(t, 94, out.SelfConfidence)
	assert.True(t, strings.HasPrefix(out.Result.Summary, "Strategic Plan for: solar strategy"))
}

func TestPlanner_TemplateWhenModelFails(t *testing.T) {
	p := NewPlanner(failingGen())
	c := tc("solar strategy")
	c.Prior.Gathering = gatheringOutput(t)

	out, err := p.Execute(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, out.Result.Recommendations, 1)
	assert.Contains(t, out.Result.Recommendations[0], "high confidence (80.0%)")
	assert.Len(t, out.Result.ActionPlan, 4)
}

func TestFeasibility(t *testing.T) {
	assert.Equal(t, "low", feasibilityLevel(feasibilityScore(0, 10)))
	assert.Equal(t, "moderate", feasibilityLevel(feasibilityScore(50, 3)))
	assert.Equal(t, "high", feasibilityLevel(feasibilityScore(100, 1)))
}

// #endregion planner-tests

// #region text-tests

func TestExtractItems(t *testing.T) {
	text := "Intro line here\n1) first item text\n  * second item\n• third\n\n42. fourth"
	assert.Equal(t, []string{"Intro line here", "first item text", "second item"}, ExtractItems(text, 5, 3))
	assert.Equal(t, []string{"first item text"}, ExtractItems(text, 15, 0)[1:2])
	assert.Empty(t, ExtractItems("", 1, 5))
}

// #endregion text-tests
