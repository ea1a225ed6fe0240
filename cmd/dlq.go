package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/edforge/eval-cli/internal/resilience"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the failed-grading dead letter queue",
}

// -- dlq list --

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued grading failures",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		errorType, _ := cmd.Flags().GetString("error-type")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: errorType, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}

		total, err := st.CountDLQ(ctx)
		if err != nil {
			return eris.Wrap(err, "dlq count")
		}

		if len(entries) == 0 {
			fmt.Fprintf(os.Stderr, "No due entries (%d total in queue).\n", total)
			return nil
		}

		formatDLQList(os.Stdout, entries)
		fmt.Fprintf(os.Stderr, "%d due, %d total in queue.\n", len(entries), total)
		return nil
	},
}

// -- dlq remove --

var dlqRemoveCmd = &cobra.Command{
	Use:   "remove <entry-id>",
	Short: "Remove one entry from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.RemoveDLQ(ctx, args[0]); err != nil {
			return eris.Wrap(err, "dlq remove")
		}
		fmt.Fprintf(os.Stderr, "Removed entry %s.\n", args[0])
		return nil
	},
}

func init() {
	dlqListCmd.Flags().String("error-type", "", "filter by error type (retryable, permanent)")
	dlqListCmd.Flags().Int("limit", 50, "max number of entries to display")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRemoveCmd)
	rootCmd.AddCommand(dlqCmd)
}

// formatDLQList writes a tabular list of DLQ entries to w.
func formatDLQList(out io.Writer, entries []resilience.DLQEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSUBJECT\tATTEMPT\tTYPE\tRETRIES\tNEXT_RETRY")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t----\t-------\t----------")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d/%d\t%s\n",
			truncateID(e.ID),
			e.SubjectLabel,
			e.AttemptIndex,
			e.ErrorType,
			e.RetryCount,
			e.MaxRetries,
			e.NextRetryAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
