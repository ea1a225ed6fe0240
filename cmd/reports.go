package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/edforge/eval-cli/internal/model"
	"github.com/edforge/eval-cli/internal/report"
	"github.com/edforge/eval-cli/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect stored evaluation reports",
	Long:  "Commands for listing, viewing, deleting, and pruning evaluation reports.",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation reports",
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

		level, _ := cmd.Flags().GetString("level")
		taskID, _ := cmd.Flags().GetString("task-id")
		limit, _ := cmd.Flags().GetInt("limit")

		reports, err := st.ListReports(ctx, store.ReportFilter{
			Level:  level,
			TaskID: taskID,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "reports list")
		}

		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		formatReportsList(os.Stdout, reports)
		return nil
	},
}

// -- reports show --

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show one report as markdown or JSON",
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

		r, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports show")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}

		_, err = os.Stdout.WriteString(report.RenderMarkdown(r))
		return err
	},
}

// -- reports delete --

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <report-id>",
	Short: "Delete one report",
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

		if err := st.DeleteReport(ctx, args[0]); err != nil {
			return eris.Wrap(err, "reports delete")
		}
		fmt.Fprintf(os.Stderr, "Deleted report %s.\n", args[0])
		return nil
	},
}

// -- reports prune --

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest N reports",
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

		keep, _ := cmd.Flags().GetInt("keep")
		if keep <= 0 {
			keep = cfg.Store.Retention
		}

		removed, err := st.PruneReports(ctx, keep)
		if err != nil {
			return eris.Wrap(err, "reports prune")
		}
		fmt.Fprintf(os.Stderr, "Removed %d report(s), kept the newest %d.\n", removed, keep)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().String("level", "", "filter by final level (优秀, 良好, 合格, 不合格, 一票否决)")
	reportsListCmd.Flags().String("task-id", "", "filter by transcript task ID")
	reportsListCmd.Flags().Int("limit", 50, "max number of reports to display")

	reportsShowCmd.Flags().Bool("json", false, "emit the raw report JSON instead of markdown")

	reportsPruneCmd.Flags().Int("keep", 0, "how many newest reports to keep (defaults to store.retention)")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsDeleteCmd)
	reportsCmd.AddCommand(reportsPruneCmd)
	rootCmd.AddCommand(reportsCmd)
}

// formatReportsList writes a tabular list of reports to w.
func formatReportsList(out io.Writer, reports []model.EvaluationReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTASK\tLEVEL\tSCORE\tPASS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-----\t----\t-------")

	for _, r := range reports {
		pass := "yes"
		if !r.PassCriteriaMet {
			pass = "no"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%s\n",
			truncateID(r.ID),
			r.TaskID,
			r.FinalLevel,
			r.TotalScore,
			pass,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
