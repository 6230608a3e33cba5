package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/agent-boss/internal/report"
)

var runFormat string

// runCmd runs one goal and prints the report
var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run a goal through research, analysis and strategy",
	Long: `Run a goal through the three phases and print the result.

Examples:
  # JSON result on stdout
  boss run "Compare managed Postgres vendors"

  # Markdown report
  boss run --format markdown "Plan a solar rollout for a small town"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func init() {
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "json", "output format: json, yaml or markdown")
}

func runGoal(cmd *cobra.Command, args []string) error {
	f, err := report.ParseFormat(runFormat)
	if err != nil {
		return err
	}
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := a.cfg.Orchestrator.RunTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	res := a.Run(ctx, strings.Join(args, " "))
	if err := report.Render(cmd.OutOrStdout(), res, f); err != nil {
		return err
	}
	if res.Failed {
		return fmt.Errorf("run %s failed", res.RunID)
	}
	return nil
}
