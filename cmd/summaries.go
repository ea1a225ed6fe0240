package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/edforge/eval-cli/internal/report"
	"github.com/edforge/eval-cli/internal/store"
)

var summariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "Inspect stored batch grading summaries",
}

// -- summaries list --

var summariesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batch summaries",
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

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := st.ListSummaries(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "summaries list")
		}

		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No batch summaries found.")
			return nil
		}

		formatSummariesList(os.Stdout, records)
		return nil
	},
}

// -- summaries show --

var summariesShowCmd = &cobra.Command{
	Use:   "show <label>",
	Short: "Show one batch summary",
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

		record, err := st.GetSummary(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "summaries show")
		}
		if record == nil {
			return eris.Errorf("batch summary not found: %s", args[0])
		}

		sheet, _ := cmd.Flags().GetString("sheet")
		if sheet != "" {
			if err := report.WriteScoreSheet(record.Summary, sheet); err != nil {
				return eris.Wrap(err, "export score sheet")
			}
			fmt.Fprintf(os.Stderr, "Score sheet written to %s.\n", sheet)
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

func init() {
	summariesListCmd.Flags().Int("limit", 50, "max number of summaries to display")
	summariesShowCmd.Flags().String("sheet", "", "re-export the summary as an xlsx score sheet instead of JSON")

	summariesCmd.AddCommand(summariesListCmd)
	summariesCmd.AddCommand(summariesShowCmd)
	rootCmd.AddCommand(summariesCmd)
}

// formatSummariesList writes a tabular list of summary records to w.
func formatSummariesList(out io.Writer, records []store.SummaryRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLABEL\tSUBJECTS\tATTEMPTS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t--------\t--------\t-------")

	for _, r := range records {
		subjects := 0
		if r.Summary != nil {
			subjects = len(r.Summary.Subjects)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.Label,
			subjects,
			r.Attempts,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
