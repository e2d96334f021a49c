package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		since, _ := cmd.Flags().GetDuration("since")
		alertType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.AlertFilter{Type: model.AlertType(alertType), Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		alerts, err := st.ListAlerts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "alerts list")
		}
		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No alerts found.")
			return nil
		}
		formatAlertsList(os.Stdout, alerts)
		return nil
	},
}

func formatAlertsList(w io.Writer, alerts []model.Alert) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tSEVERITY\tMESSAGE")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			a.Timestamp.Format("2006-01-02 15:04:05"),
			a.Type,
			a.Severity,
			truncate(a.Message, 90),
		)
	}
	_ = tw.Flush()
}

func init() {
	alertsCmd.Flags().Duration("since", 24*time.Hour, "only alerts within this window (0 for all)")
	alertsCmd.Flags().String("type", "", "filter by alert type")
	alertsCmd.Flags().Int("limit", 50, "max alerts to show")
	rootCmd.AddCommand(alertsCmd)
}
