package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agent-boss/internal/config"
	"github.com/danielpatrickdp/agent-boss/internal/memory"
	"github.com/danielpatrickdp/agent-boss/internal/replay"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

var (
	replayRun        string
	replayFixture    string
	replayDB         string
	replayJSON       bool
	replayHigh       float64
	replayLow        float64
	replayMin        float64
	replayMaxRetries int
)

var errFixtureDiverged = errors.New("replay diverged from fixture expectations")

// replayCmd re-decides stored attempts under other thresholds
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-decide a stored run under different thresholds",
	Long: `Replay a stored run's confidence scores through the decision bands
without calling any model. Threshold flags default to the loaded config.

Examples:
  # What would a stricter floor have done to this run?
  boss replay --run 3f2a... --min-acceptable 0.6 --max-retries 1

  # Regression check against a fixture with expected actions
  boss replay --fixture internal/replay/testdata/default_run.json`,
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayRun, "run", "", "run id to replay")
	f.StringVar(&replayFixture, "fixture", "", "replay a JSON fixture instead of a stored run")
	f.StringVar(&replayDB, "db", "", "path to the run database (overrides memory.path)")
	f.BoolVar(&replayJSON, "json", false, "output as JSON instead of table")
	f.Float64Var(&replayHigh, "high", 0, "high threshold override")
	f.Float64Var(&replayLow, "low", 0, "low threshold override")
	f.Float64Var(&replayMin, "min-acceptable", 0, "minimum acceptable override")
	f.IntVar(&replayMaxRetries, "max-retries", 0, "retry budget override")
	replayCmd.MarkFlagsMutuallyExclusive("run", "fixture")
	replayCmd.MarkFlagsOneRequired("run", "fixture")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	if replayFixture != "" {
		return runReplayFixture(w, replayFixture, replayJSON)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	path := cfg.Memory.Path
	if replayDB != "" {
		path = replayDB
	}
	store, err := memory.NewStore(path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	rc := replay.Config{Thresholds: cfg.Reflection, MaxRetries: cfg.Orchestrator.MaxRetries}
	flags := cmd.Flags()
	if flags.Changed("high") {
		rc.Thresholds.High = replayHigh
	}
	if flags.Changed("low") {
		rc.Thresholds.Low = replayLow
	}
	if flags.Changed("min-acceptable") {
		rc.Thresholds.MinAcceptable = replayMin
	}
	if flags.Changed("max-retries") {
		rc.MaxRetries = replayMaxRetries
	}
	return runReplayStored(w, store, replayRun, rc, replayJSON)
}

// #region stored-mode

type replayOutput struct {
	RunID   string          `json:"run_id"`
	Status  string          `json:"status"`
	Config  replayConfigOut `json:"config"`
	Results []replay.Result `json:"results"`
	Summary replay.Summary  `json:"summary"`
}

type replayConfigOut struct {
	High          float64 `json:"high_threshold"`
	Low           float64 `json:"low_threshold"`
	MinAcceptable float64 `json:"min_acceptable"`
	MaxRetries    int     `json:"max_retries"`
}

func runReplayStored(w io.Writer, store *memory.Store, runID string, rc replay.Config, asJSON bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	attempts, err := replay.FromStore(store, runID)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		return fmt.Errorf("run %s has no scored attempts", shortID(runID))
	}
	results, err := replay.Replay(attempts, rc)
	if err != nil {
		return err
	}
	summary := replay.Summarize(results, len(task.Phases))

	if asJSON {
		return printJSON(w, replayOutput{
			RunID:  run.ID,
			Status: string(run.Status),
			Config: replayConfigOut{
				High:          rc.Thresholds.High,
				Low:           rc.Thresholds.Low,
				MinAcceptable: rc.Thresholds.MinAcceptable,
				MaxRetries:    rc.MaxRetries,
			},
			Results: results,
			Summary: summary,
		})
	}

	fmt.Fprintf(w, "Run %s (%s)  thresholds %.2f/%.2f/%.2f  max_retries %d\n\n",
		shortID(run.ID), run.Status,
		rc.Thresholds.High, rc.Thresholds.Low, rc.Thresholds.MinAcceptable, rc.MaxRetries)
	printReplayTable(w, results)
	fmt.Fprintf(w, "\nSummary: %d attempts, %d proceed, %d replan, %d error_recover, %d exhausted, %d unreached, %d changed\n",
		summary.TotalAttempts, summary.Proceeds, summary.Replans, summary.ErrorRecovers,
		summary.Exhausted, summary.Unreached, summary.Changed)
	fmt.Fprintf(w, "Replayed outcome: %s (recorded status: %s)\n", summary.Outcome, run.Status)
	return nil
}

func printReplayTable(w io.Writer, results []replay.Result) {
	fmt.Fprintf(w, "%-16s| %-7s| %-8s| %-14s| %-14s| %s\n", "Executor", "Attempt", "Combined", "Recorded", "Replayed", "Match")
	fmt.Fprintf(w, "%-16s+%-8s+%-9s+%-15s+%-15s+%s\n",
		"----------------", "--------", "---------", "---------------", "---------------", "------")
	for _, r := range results {
		recorded := string(r.Recorded)
		if recorded == "" {
			recorded = "-"
		}
		match := "OK"
		if r.Changed {
			match = "DIFF"
		}
		fmt.Fprintf(w, "%-16s| %-7d| %-8.2f| %-14s| %-14s| %s\n",
			r.Executor, r.Attempt, r.Combined, recorded, r.Action, match)
	}
}

// #endregion stored-mode

// #region fixture-mode

func runReplayFixture(w io.Writer, path string, asJSON bool) error {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return err
	}
	results, err := replay.Replay(f.ToAttempts(), f.Config.ToConfig())
	if err != nil {
		return err
	}
	summary := replay.Summarize(results, len(task.Phases))

	if asJSON {
		if err := printJSON(w, struct {
			Description string          `json:"description"`
			Results     []replay.Result `json:"results"`
			Summary     replay.Summary  `json:"summary"`
		}{f.Description, results, summary}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "%-16s| %-7s| %-14s| %-14s| %s\n", "Executor", "Attempt", "Expected", "Replayed", "Match")
		fmt.Fprintf(w, "%-16s+%-8s+%-15s+%-15s+%s\n",
			"----------------", "--------", "---------------", "---------------", "------")
	}

	total := len(results)
	if len(f.ExpectedResults) < total {
		total = len(f.ExpectedResults)
	}
	matches := 0
	for i := 0; i < total; i++ {
		exp, got := f.ExpectedResults[i].Action, results[i].Action
		match := "DIFF"
		if exp == got {
			match = "OK"
			matches++
		}
		if !asJSON {
			fmt.Fprintf(w, "%-16s| %-7d| %-14s| %-14s| %s\n", results[i].Executor, results[i].Attempt, exp, got, match)
		}
	}
	diverge := len(results) - matches
	if len(f.ExpectedResults) > len(results) {
		diverge = len(f.ExpectedResults) - matches
	}
	outcomeOK := f.ExpectedOutcome == "" || f.ExpectedOutcome == summary.Outcome
	if !asJSON {
		fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge; outcome %s\n", total, matches, diverge, summary.Outcome)
	}
	if diverge > 0 || !outcomeOK {
		return errFixtureDiverged
	}
	return nil
}

// #endregion fixture-mode
