package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edforge/eval-cli/internal/eval"
	"github.com/edforge/eval-cli/internal/model"
	"github.com/edforge/eval-cli/internal/report"
	"github.com/edforge/eval-cli/pkg/oracle"
)

var (
	evalTranscript string
	evalTeacherDoc string
	evalDimensions string
	evalOutput     string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a tutoring transcript across all dimensions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.ValidateOracle(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		transcript, err := model.LoadTranscript(evalTranscript)
		if err != nil {
			return eris.Wrap(err, "load transcript")
		}
		teacherDoc, err := model.LoadTeacherDoc(evalTeacherDoc)
		if err != nil {
			return eris.Wrap(err, "load teacher doc")
		}

		specs := eval.DefaultDimensions()
		weightsFile := evalDimensions
		if weightsFile == "" {
			weightsFile = cfg.Eval.WeightsFile
		}
		if weightsFile != "" {
			specs, err = eval.LoadDimensions(weightsFile)
			if err != nil {
				return eris.Wrap(err, "load dimension weights")
			}
		}

		var client oracle.Client
		switch cfg.Oracle.Provider {
		case "anthropic":
			client = oracle.NewAnthropicClient(cfg.Oracle.Key, cfg.Oracle.Model)
		default:
			client = oracle.NewClient(cfg.Oracle.Key, cfg.Oracle.BaseURL, oracle.WithModel(cfg.Oracle.Model))
		}
		judge := oracle.NewJudge(client, cfg.Oracle.Model, cfg.Oracle.MaxTokens)

		result, err := eval.NewEvaluator(judge).Evaluate(ctx, specs, teacherDoc, transcript)
		if err != nil {
			return eris.Wrap(err, "evaluate transcript")
		}

		if err := st.SaveReport(ctx, result); err != nil {
			return eris.Wrap(err, "save report")
		}
		if cfg.Store.Retention > 0 {
			pruned, err := st.PruneReports(ctx, cfg.Store.Retention)
			if err != nil {
				zap.L().Warn("prune old reports failed", zap.Error(err))
			} else if pruned > 0 {
				zap.L().Info("pruned old reports", zap.Int("removed", pruned))
			}
		}

		md := report.RenderMarkdown(result)
		if evalOutput != "" {
			if err := os.WriteFile(evalOutput, []byte(md), 0o644); err != nil {
				return eris.Wrap(err, "write report file")
			}
			zap.L().Info("report written",
				zap.String("path", evalOutput),
				zap.String("report_id", result.ID),
			)
			return nil
		}

		_, err = os.Stdout.WriteString(md)
		return err
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evalTranscript, "transcript", "", "transcript JSON file (required)")
	evaluateCmd.Flags().StringVar(&evalTeacherDoc, "teacher-doc", "", "lesson design document (required)")
	evaluateCmd.Flags().StringVar(&evalDimensions, "dimensions", "", "dimension weights YAML, overrides config")
	evaluateCmd.Flags().StringVar(&evalOutput, "output", "", "write the markdown report here instead of stdout")
	_ = evaluateCmd.MarkFlagRequired("transcript")
	_ = evaluateCmd.MarkFlagRequired("teacher-doc")
	rootCmd.AddCommand(evaluateCmd)
}
