package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agent-boss/internal/config"
	"github.com/danielpatrickdp/agent-boss/internal/memory"
)

var (
	inspectRun  string
	inspectLast int
	inspectJSON bool
	inspectDB   string
)

// inspectCmd prints stored runs
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect stored runs, decisions and scores",
	Long: `Inspect the run memory without starting any model.

Examples:
  # Ten most recent runs plus executor averages
  boss inspect --last 10

  # One run with its decisions and scores
  boss inspect --run 3f2a... --json`,
	Args: cobra.NoArgs,
	RunE: inspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectRun, "run", "", "show single run detail")
	inspectCmd.Flags().IntVar(&inspectLast, "last", 20, "show N most recent runs")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "output as JSON instead of table")
	inspectCmd.Flags().StringVar(&inspectDB, "db", "", "path to the run database (overrides memory.path)")
}

func inspect(cmd *cobra.Command, _ []string) error {
	path := inspectDB
	if path == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path = cfg.Memory.Path
	}
	store, err := memory.NewStore(path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	w := cmd.OutOrStdout()
	if inspectRun != "" {
		return runDetailMode(w, store, inspectRun, inspectJSON)
	}
	return runListMode(w, store, inspectLast, inspectJSON)
}

// #region list-mode

type listRow struct {
	RunID             string  `json:"run_id"`
	Goal              string  `json:"goal"`
	Status            string  `json:"status"`
	OverallConfidence float64 `json:"overall_confidence"`
	CreatedAt         string  `json:"created_at"`
}

type listOutput struct {
	Runs      []listRow             `json:"runs"`
	Executors []memory.ExecutorStat `json:"executors"`
}

func runListMode(w io.Writer, store *memory.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	stats, err := store.ExecutorStats()
	if err != nil {
		return err
	}

	// Store returns newest first; reverse for chronological
	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[len(runs)-1-i] = listRow{
			RunID:             r.ID,
			Goal:              r.Goal,
			Status:            string(r.Status),
			OverallConfidence: r.OverallConfidence,
			CreatedAt:         r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(w, listOutput{Runs: rows, Executors: stats})
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}

	fmt.Fprintf(w, "%-10s  %-11s  %7s  %-20s  %s\n", "Run", "Status", "Overall", "Created", "Goal")
	fmt.Fprintf(w, "%-10s+-%-11s+-%7s+-%-20s+-%s\n", "----------", "-----------", "-------", "--------------------", "----")
	for _, r := range rows {
		fmt.Fprintf(w, "%-10s  %-11s  %6.1f%%  %-20s  %s\n",
			shortID(r.RunID), r.Status, r.OverallConfidence, r.CreatedAt, truncate(r.Goal, 60))
	}

	if len(stats) > 0 {
		fmt.Fprintf(w, "\nExecutor averages (decay-weighted):\n")
		for _, s := range stats {
			fmt.Fprintf(w, "  %-16s %6.1f  (%d samples)\n", s.Executor, s.WeightedAverage, s.Samples)
		}
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type scoreRow struct {
	Executor string `json:"executor"`
	Attempt  int    `json:"attempt"`
	Self     int    `json:"self"`
	Second   int    `json:"second"`
	Combined int    `json:"combined"`
}

type detailOutput struct {
	Run       memory.Run              `json:"run"`
	Insights  []string                `json:"insights,omitempty"`
	Scores    []scoreRow              `json:"scores"`
	Decisions []memory.DecisionRecord `json:"decisions"`
}

func runDetailMode(w io.Writer, store *memory.Store, runID string, jsonOut bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	scores, err := store.Scores(runID)
	if err != nil {
		return err
	}
	decisions, err := store.Decisions(runID)
	if err != nil {
		return err
	}

	out := detailOutput{Run: run, Scores: make([]scoreRow, 0, len(scores)), Decisions: decisions}
	if res, err := store.Result(runID); err == nil {
		out.Insights = res.Insights
	}
	for _, s := range scores {
		out.Scores = append(out.Scores, scoreRow{
			Executor: s.Executor,
			Attempt:  s.Attempt,
			Self:     s.SelfScore,
			Second:   s.SecondScore,
			Combined: s.Combined(),
		})
	}
	if out.Decisions == nil {
		out.Decisions = []memory.DecisionRecord{}
	}

	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Run:       %s\n", run.ID)
	fmt.Fprintf(w, "Goal:      %s\n", run.Goal)
	fmt.Fprintf(w, "Status:    %s\n", run.Status)
	fmt.Fprintf(w, "Overall:   %.1f%%\n", run.OverallConfidence)
	fmt.Fprintf(w, "Created:   %s\n", run.CreatedAt.Format("2006-01-02T15:04:05Z"))
	if !run.CompletedAt.IsZero() {
		fmt.Fprintf(w, "Completed: %s\n", run.CompletedAt.Format("2006-01-02T15:04:05Z"))
	}

	if len(out.Scores) > 0 {
		fmt.Fprintf(w, "\nScores:\n")
		fmt.Fprintf(w, "  %-16s  %7s  %4s  %6s  %8s\n", "Executor", "Attempt", "Self", "Second", "Combined")
		for _, s := range out.Scores {
			fmt.Fprintf(w, "  %-16s  %7d  %4d  %6d  %8d\n", s.Executor, s.Attempt, s.Self, s.Second, s.Combined)
		}
	}

	if len(out.Decisions) > 0 {
		fmt.Fprintf(w, "\nDecisions:\n")
		for _, d := range out.Decisions {
			fmt.Fprintf(w, "  [%s] %-16s %s%s\n",
				d.CreatedAt.Format("15:04:05"), d.Executor, truncate(d.Decision, 40), contextSuffix(d.Context))
		}
	}

	if len(out.Insights) > 0 {
		fmt.Fprintf(w, "\nInsights:\n")
		for _, in := range out.Insights {
			fmt.Fprintf(w, "  - %s\n", in)
		}
	}
	return nil
}

// contextSuffix renders the attempt and moderate flag when present.
func contextSuffix(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, 2)
	for _, k := range []string{"attempt", "moderate", "fallback"} {
		if v, ok := ctx[k]; ok {
			keys = append(keys, fmt.Sprintf("%s=%v", k, v))
		}
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return fmt.Sprintf("  %v", keys)
}

// #endregion detail-mode

// #region output

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// #endregion output
