package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/llm"
	"github.com/danielpatrickdp/agent-boss/internal/reflection"
	"github.com/danielpatrickdp/agent-boss/internal/task"
	"github.com/danielpatrickdp/agent-boss/internal/websearch"
)

// #region gatherer

// summaryParams drive long-form generation for gathering and analysis.
var summaryParams = llm.Params{MaxTokens: 1500, Temperature: 0.7}

// Gatherer searches the web and summarizes what it finds.
type Gatherer struct {
	Base
	search websearch.Searcher
	cfg    websearch.Config
}

// NewGatherer builds the gathering executor. gen may be nil, in which case a
// template summary is produced.
func NewGatherer(search websearch.Searcher, cfg websearch.Config, gen llm.Generator, opts ...Option) *Gatherer {
	g := &Gatherer{search: search, cfg: cfg}
	g.init(GathererName, task.RoleGathering, gen, opts...)
	return g
}

// Execute searches for the task description, summarizes the hits and
// estimates self confidence from source count and content coverage.
// Rate-limited searches are returned as errors. Other search failures count as no results.
func (g *Gatherer) Execute(ctx context.Context, tc task.Context) (task.Output, error) {
	start := nowFunc()
	query := tc.Description
	if query == "" {
		query = tc.Goal
	}

	searchStart := nowFunc()
	results, err := websearch.Search(ctx, g.search, g.cfg, query)
	if g.recorder != nil {
		g.recorder.ToolCall(tc.RunID, g.name, "web_search", nowFunc().Sub(searchStart), err)
	}
	if err != nil {
		if errs.IsRateLimited(err) {
			return task.Output{}, err
		}
		g.log.Warn("search failed, continuing without sources", zap.String("query", query), zap.Error(err))
		results = nil
	}

	if len(results) == 0 {
		return task.NewOutput(g.name, tc.TaskID,
			task.Payload{Query: query, Summary: "No relevant sources found for the research query."},
			20, "Search returned no results", nil, elapsedSince(start))
	}

	content := g.withContent(results)
	summary, err := g.generate(ctx, tc.RunID, "llm_summary", g.summaryPrompt(query, content), summaryParams)
	if err != nil {
		g.log.Info("summary generation failed, using template", zap.Error(err))
		summary = templateSummary(query, results, content)
	}

	findings := make([]task.Finding, len(results))
	for i, r := range results {
		findings[i] = task.Finding{Title: r.Title, Snippet: r.Snippet, URL: r.URL}
	}

	confidence := gatheringConfidence(len(results), len(content))
	reasoning := fmt.Sprintf("Successfully researched topic with %d sources, retrieved full content from %d sources", len(results), len(content))
	if len(content) == 0 {
		reasoning = fmt.Sprintf("Found %d sources but could not retrieve full content", len(results))
	}

	return task.NewOutput(g.name, tc.TaskID,
		task.Payload{Query: query, Summary: summary, Findings: findings},
		confidence, reasoning, websearch.URLs(results), elapsedSince(start))
}

// withContent keeps results whose snippet is long enough to count as retrieved content.
func (g *Gatherer) withContent(results []websearch.Result) []websearch.Result {
	var out []websearch.Result
	for _, r := range results {
		if len([]rune(r.Snippet)) >= g.cfg.ScrapeMinSnippet {
			out = append(out, r)
		}
	}
	return out
}

func (g *Gatherer) summaryPrompt(query string, content []websearch.Result) string {
	if len(content) > 3 {
		content = content[:3]
	}
	var b strings.Builder
	b.WriteString("You are a research analyst. Analyze the following web content and provide a comprehensive summary that answers this research question:\n\n")
	fmt.Fprintf(&b, "Research Question: %s\n\n", query)
	b.WriteString("Web Content:\n")
	b.WriteString(websearch.FormatAsEvidence(content))
	b.WriteString("\nPlease provide:\n")
	b.WriteString("1. A clear, direct answer to the research question\n")
	b.WriteString("2. Key findings from the sources\n")
	b.WriteString("3. Important details and specifics mentioned\n")
	b.WriteString("4. Any relevant data, numbers, or comparisons\n\n")
	b.WriteString("Be specific and cite information from the sources.")
	return b.String()
}

// gatheringConfidence gives up to 50 points for source count (5 saturates) and
// up to 50 for the share of sources with content.
func gatheringConfidence(total, withContent int) int {
	if total == 0 {
		return 20
	}
	sourceScore := float64(total) / 5
	if sourceScore > 1 {
		sourceScore = 1
	}
	return int(sourceScore*50 + float64(withContent)/float64(total)*50)
}

func templateSummary(query string, results, content []websearch.Result) string {
	lines := []string{
		"Research query: " + query,
		"",
		fmt.Sprintf("Found %d relevant sources", len(results)),
		fmt.Sprintf("Retrieved content from %d sources", len(content)),
	}
	lines = append(lines, "", "Key sources:")
	for i, r := range results {
		if i == 3 {
			break
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, r.Title))
	}
	if len(content) > 0 {
		lines = append(lines, "", "Content preview:")
		for i, r := range content {
			if i == 2 {
				break
			}
			lines = append(lines, "- "+preview(r.Snippet, 200))
		}
	}
	authoritative := 0
	for _, r := range results {
		if reflection.IsAuthoritative(r.URL) {
			authoritative++
		}
	}
	lines = append(lines, "", fmt.Sprintf("%d out of %d sources from authoritative domains", authoritative, len(results)))
	return strings.Join(lines, "\n")
}

func elapsedSince(start time.Time) time.Duration {
	d := nowFunc().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

// #endregion gatherer
