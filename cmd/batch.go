package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edforge/eval-cli/internal/report"
	"github.com/edforge/eval-cli/internal/resilience"
	"github.com/edforge/eval-cli/internal/review"
	"github.com/edforge/eval-cli/pkg/cloudgrade"
)

var (
	batchLabel    string
	batchInstance string
	batchAttempts int
	batchOutput   string
)

var batchGradeCmd = &cobra.Command{
	Use:   "batch [files...]",
	Short: "Grade homework files repeatedly and export a consistency score sheet",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.ValidateCloudGrade(); err != nil {
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

		client := cloudgrade.NewClient(cfg.CloudGrade.Authorization, cfg.CloudGrade.Cookie,
			cloudgrade.WithBaseURL(cfg.CloudGrade.BaseURL),
			cloudgrade.WithRateLimit(cfg.CloudGrade.RateLimit),
		)

		instanceNid := batchInstance
		if instanceNid == "" {
			instanceNid = cfg.CloudGrade.InstanceNid
		}
		ictx, err := client.InstanceDetails(ctx, instanceNid)
		if err != nil {
			return eris.Wrap(err, "fetch instance details")
		}
		zap.L().Info("grading instance resolved",
			zap.String("instance", ictx.InstanceNid),
			zap.String("name", ictx.InstanceName),
		)

		runner := review.NewRunner(client,
			review.WithConcurrency(cfg.Review.Concurrency),
			review.WithPollOptions(
				cloudgrade.WithPollInterval(time.Duration(cfg.Review.PollSecs)*time.Second),
				cloudgrade.WithPollTimeout(time.Duration(cfg.Review.PollTimeoutSecs)*time.Second),
			),
		)

		files, err := runner.Prepare(ctx, ictx, args)
		if err != nil {
			return err
		}

		attemptTotal := batchAttempts
		if attemptTotal <= 0 {
			attemptTotal = cfg.Review.Attempts
		}

		attempts, err := runner.Run(ctx, ictx, files, attemptTotal)
		if err != nil {
			return err
		}

		for _, a := range attempts {
			if a.Success {
				continue
			}
			entry := resilience.DLQEntry{
				ID:           uuid.New().String(),
				SubjectLabel: a.SubjectLabel,
				AttemptIndex: a.AttemptIndex,
				Error:        a.Error,
				ErrorType:    resilience.ClassifyError(eris.New(a.Error)),
				FailedPhase:  "grade",
				MaxRetries:   3,
				NextRetryAt:  time.Now().UTC(),
				CreatedAt:    time.Now().UTC(),
				LastFailedAt: time.Now().UTC(),
			}
			if err := st.EnqueueDLQ(ctx, entry); err != nil {
				zap.L().Warn("enqueue failed attempt", zap.Error(err))
			}
		}

		summary := review.Aggregate(attempts, attemptTotal)

		record, err := st.SaveSummary(ctx, batchLabel, summary)
		if err != nil {
			return eris.Wrap(err, "save batch summary")
		}

		if err := report.WriteScoreSheet(summary, batchOutput); err != nil {
			return eris.Wrap(err, "write score sheet")
		}

		zap.L().Info("batch grading complete",
			zap.String("label", record.Label),
			zap.String("summary_id", record.ID),
			zap.String("sheet", batchOutput),
		)
		return nil
	},
}

func init() {
	batchGradeCmd.Flags().StringVar(&batchLabel, "label", "", "batch label for stored summaries (required)")
	batchGradeCmd.Flags().StringVar(&batchInstance, "instance", "", "grading instance nid, overrides config")
	batchGradeCmd.Flags().IntVar(&batchAttempts, "attempts", 0, "grading attempts per file, overrides config")
	batchGradeCmd.Flags().StringVar(&batchOutput, "output", "评分表.xlsx", "score sheet output path")
	_ = batchGradeCmd.MarkFlagRequired("label")
	rootCmd.AddCommand(batchGradeCmd)
}
