package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edforge/eval-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "eval-cli",
	Short: "Teaching-agent transcript evaluation and homework grading",
	Long:  "Scores tutoring transcripts across weighted dimensions via an LLM judge, runs batch homework grading consistency checks against the cloud grading service, exports score sheets.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
