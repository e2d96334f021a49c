package main

import (
	"encoding/json"
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

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List stored opportunity signals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		since, _ := cmd.Flags().GetDuration("since")
		channel, _ := cmd.Flags().GetString("channel")
		priority, _ := cmd.Flags().GetString("priority")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		filter := store.SignalFilter{
			Channel:  model.Channel(channel),
			Priority: model.Priority(priority),
			Limit:    limit,
		}
		if since > 0 {
			filter.From = time.Now().Add(-since)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		signals, err := st.ListSignals(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "signals list")
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(signals)
		}
		if len(signals) == 0 {
			fmt.Fprintln(os.Stderr, "No signals found.")
			return nil
		}
		formatSignalsList(os.Stdout, signals)
		return nil
	},
}

func formatSignalsList(w io.Writer, signals []model.Signal) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tPRIORITY\tCHANNEL\tMODE\tREV\tCREATED\tTITLE")
	for _, s := range signals {
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\t%d\t%s\t%s\n",
			s.CompositeScore,
			s.Priority,
			s.Channel,
			s.CollectionMode,
			s.Revision,
			s.CreatedAt.Format("2006-01-02 15:04"),
			truncate(s.Title, 70),
		)
	}
	_ = tw.Flush()
}

func init() {
	signalsCmd.Flags().Duration("since", 24*time.Hour, "only signals created within this window (0 for all)")
	signalsCmd.Flags().String("channel", "", "filter by channel")
	signalsCmd.Flags().String("priority", "", "filter by priority (low, medium, high)")
	signalsCmd.Flags().Int("limit", 50, "max signals to show")
	signalsCmd.Flags().Bool("json", false, "print full signals as JSON")
	rootCmd.AddCommand(signalsCmd)
}
