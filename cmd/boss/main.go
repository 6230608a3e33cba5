// Command boss runs goals through the gathering, analysis and planning
// pipeline, serves the HTTP API, and inspects and replays stored runs.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the optional YAML config file
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "boss",
	Short: "Confidence-gated research, analysis and planning runs",
	Long: `boss drives a goal through research, analysis and strategy phases.
Each phase is gated on the executor's self-assessed confidence combined with a
second opinion from a judge model.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOr("BOSS_CONFIG_FILE", ""), "path to YAML config")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(replayCmd)
}

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
