// Package report renders an OrchestrationResult for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/agent-boss/internal/errs"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// #region format

// Format is an output encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts json, yaml/yml and markdown/md in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", errs.Errorf(errs.KindValidation, "report.ParseFormat", "unknown format %q: want json, yaml or markdown", s)
}

// #endregion format

// #region render

// Render writes res to w in format f.
func Render(w io.Writer, res task.OrchestrationResult, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(res))
		return err
	}
	return errs.Errorf(errs.KindValidation, "report.Render", "unknown format %q", f)
}

// Markdown returns a human-readable summary of res. Empty sections get a
// placeholder line.
func Markdown(res task.OrchestrationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", res.Goal)
	status := "completed"
	if res.Failed {
		status = "failed"
	}
	fmt.Fprintf(&b, "- **Run:** `%s`\n", res.RunID)
	fmt.Fprintf(&b, "- **Status:** %s\n", status)
	if !res.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "- **Completed:** %s\n", res.CompletedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&b, "- **Overall confidence:** %.0f%%\n", res.OverallConfidence)

	b.WriteString("\n## Confidence\n\n")
	if len(res.Executors) == 0 {
		b.WriteString("_No executor completed._\n")
	} else {
		b.WriteString("| Executor | Self | Second opinion | Combined | Attempts |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, name := range executorOrder(res) {
			c := res.Confidence[name]
			second := pct(c.SecondOpinion)
			if c.SecondOpinionFallback {
				second += " (fallback)"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n", name, pct(c.Self), second, pct(c.Combined), c.Attempts)
		}
	}

	writeList(&b, "Insights", res.Insights, "No specific insights were generated.")
	writeList(&b, "Recommendations", res.Recommendations, "Further research may be needed.")

	b.WriteString("\n## Sources\n\n")
	if len(res.Sources) == 0 {
		b.WriteString("_No sources._\n")
	}
	for _, s := range res.Sources {
		fmt.Fprintf(&b, "- <%s> (%s, %s reliability)\n", s.URL, s.Type, s.Reliability)
	}
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string, empty string) {
	fmt.Fprintf(b, "\n## %s\n\n", title)
	if len(items) == 0 {
		fmt.Fprintf(b, "_%s_\n", empty)
		return
	}
	for i, it := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, it)
	}
}

// executorOrder lists executors in run order, then any extra confidence entries sorted.
func executorOrder(res task.OrchestrationResult) []string {
	seen := make(map[string]bool, len(res.Executors))
	order := make([]string, 0, len(res.Confidence))
	for _, e := range res.Executors {
		if !seen[e] {
			seen[e] = true
			order = append(order, e)
		}
	}
	var extra []string
	for e := range res.Confidence {
		if !seen[e] {
			extra = append(extra, e)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// #endregion render

// #region validate

// Validate checks a result before it is persisted or returned: a goal, a
// UUID run id, overall confidence in [0,100] and per-executor values in [0,1].
func Validate(res task.OrchestrationResult) error {
	const op = "report.Validate"
	if strings.TrimSpace(res.Goal) == "" {
		return errs.New(errs.KindValidation, op, "goal is empty")
	}
	if _, err := uuid.Parse(res.RunID); err != nil {
		return errs.Errorf(errs.KindValidation, op, "run id %q is not a uuid", res.RunID)
	}
	if res.OverallConfidence < 0 || res.OverallConfidence > 100 {
		return errs.Errorf(errs.KindValidation, op, "overall confidence %.2f outside [0,100]", res.OverallConfidence)
	}
	for name, c := range res.Confidence {
		for label, v := range map[string]float64{"self": c.Self, "second_opinion": c.SecondOpinion, "combined": c.Combined} {
			if v < 0 || v > 1 {
				return errs.Errorf(errs.KindValidation, op, "%s %s confidence %.2f outside [0,1]", name, label, v)
			}
		}
	}
	return nil
}

// #endregion validate
