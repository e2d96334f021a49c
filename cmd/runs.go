package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List collection run history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cadence, _ := cmd.Flags().GetString("cadence")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Cadence: cadence,
			Status:  model.RunStatus(status),
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.CollectionRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCADENCE\tSTATUS\tPHASE\tRAW\tSTORED\tNEW\tDROPPED\tDURATION\tSTARTED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			r.ID[:min(8, len(r.ID))],
			r.Cadence,
			r.Status,
			r.Phase,
			r.RawCount,
			r.StoredCount,
			r.InsertedCount,
			r.DroppedCount,
			formatDuration(r.Duration().Milliseconds()),
			r.StartedAt.Format("2006-01-02 15:04:05"),
			truncate(r.Error, 60),
		)
	}
	_ = tw.Flush()
}

func init() {
	runsCmd.Flags().String("cadence", "", "filter by cadence name")
	runsCmd.Flags().String("status", "", "filter by status (running, completed, failed)")
	runsCmd.Flags().Int("limit", 20, "max runs to show")
	rootCmd.AddCommand(runsCmd)
}
