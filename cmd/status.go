package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/monitoring"
	"github.com/boazzati/AFH-Platform-sub001/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored metrics, recent run summary and latest health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lookback, _ := cmd.Flags().GetInt("lookback")
		if lookback <= 0 {
			lookback = cfg.Monitor.LookbackHours
		}
		rep, err := buildStatusReport(ctx, st, lookback)
		if err != nil {
			return err
		}
		formatStatus(os.Stdout, rep, cfg.Monitor.FailureRateThreshold)
		return nil
	},
}

// statusReader is the store surface the status report needs.
type statusReader interface {
	monitoring.RunLister
	GetMetrics(ctx context.Context) (*model.MetricsSnapshot, error)
	LatestHealthStatus(ctx context.Context) (*model.HealthStatus, error)
}

var _ statusReader = store.Store(nil)

type statusReport struct {
	Metrics model.MetricsSnapshot
	Summary *monitoring.RunSummary
	Health  *model.HealthStatus
}

func buildStatusReport(ctx context.Context, st statusReader, lookbackHours int) (*statusReport, error) {
	m, err := st.GetMetrics(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "status: metrics")
	}
	sum, err := monitoring.Summarize(ctx, st, lookbackHours)
	if err != nil {
		return nil, eris.Wrap(err, "status: run summary")
	}
	hs, err := st.LatestHealthStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "status: health")
	}
	return &statusReport{Metrics: *m, Summary: sum, Health: hs}, nil
}

func formatStatus(w io.Writer, rep *statusReport, failThreshold float64) {
	m := rep.Metrics
	fmt.Fprintln(w, "Metrics")
	fmt.Fprintf(w, "  Total runs:     %d (%d ok, %d failed)\n", m.TotalRuns, m.SuccessfulRuns, m.FailedRuns)
	fmt.Fprintf(w, "  Processed:      %d\n", m.OpportunitiesProcessed)
	fmt.Fprintf(w, "  Avg duration:   %.0fms\n", m.AverageProcessingTimeMs)
	fmt.Fprintf(w, "  Last run:       %s\n", formatTimePtr(m.LastRunTime))
	fmt.Fprintf(w, "  Last success:   %s\n", formatTimePtr(m.LastSuccessTime))

	s := rep.Summary
	fmt.Fprintf(w, "\nLast %dh\n", s.LookbackHours)
	fmt.Fprintf(w, "  Runs:           %d (%d ok, %d failed, %.1f%% fail rate)\n", s.Total, s.Completed, s.Failed, s.FailRate*100)
	fmt.Fprintf(w, "  Stored:         %d\n", s.Stored)
	if s.Degraded(failThreshold) {
		fmt.Fprintf(w, "  WARNING: failure rate above %.0f%%\n", failThreshold*100)
	}
	if len(s.ByCadence) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  CADENCE\tRUNS\tOK\tFAILED\tSTORED\tLAST RUN")
		names := make([]string, 0, len(s.ByCadence))
		for name := range s.ByCadence {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			c := s.ByCadence[name]
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%s\n", name, c.Runs, c.Completed, c.Failed, c.Stored, formatTimePtr(c.LastRun))
		}
		_ = tw.Flush()
	}

	fmt.Fprintln(w, "\nHealth")
	if rep.Health == nil {
		fmt.Fprintln(w, "  no health checks recorded")
		return
	}
	state := "healthy"
	if !rep.Health.Healthy {
		state = "UNHEALTHY"
	}
	fmt.Fprintf(w, "  %s at %s\n", state, rep.Health.CheckedAt.Format(time.RFC3339))
	for _, c := range rep.Health.Failed() {
		fmt.Fprintf(w, "  - %s: %s\n", c.Name, c.Detail)
	}
}

func init() {
	statusCmd.Flags().Int("lookback", 0, "summary window in hours (default from config)")
	rootCmd.AddCommand(statusCmd)
}
