package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/store"
)

// RunLister abstracts the run-history query the summary needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.CollectionRun, error)
}

// CadenceSummary aggregates the recent runs of one cadence.
type CadenceSummary struct {
	Runs      int        `json:"runs"`
	Completed int        `json:"completed"`
	Failed    int        `json:"failed"`
	Stored    int        `json:"stored"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

// RunSummary is a point-in-time view of run history within a lookback window.
type RunSummary struct {
	Total         int                       `json:"total"`
	Completed     int                       `json:"completed"`
	Failed        int                       `json:"failed"`
	FailRate      float64                   `json:"fail_rate"`
	Stored        int                       `json:"stored"`
	AvgDurationMs float64                   `json:"avg_duration_ms"`
	ByCadence     map[string]CadenceSummary `json:"by_cadence"`
	LookbackHours int                       `json:"lookback_hours"`
	CollectedAt   time.Time                 `json:"collected_at"`
}

// maxSummaryRuns bounds how much history one summary scans.
const maxSummaryRuns = 1000

// Summarize aggregates runs started within the lookback window.
func Summarize(ctx context.Context, runs RunLister, lookbackHours int) (*RunSummary, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := time.Now().UTC()
	sum := &RunSummary{
		ByCadence:     make(map[string]CadenceSummary),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	list, err := runs.ListRuns(ctx, store.RunFilter{Limit: maxSummaryRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	since := now.Add(-time.Duration(lookbackHours) * time.Hour)
	var totalMs float64
	var finished int
	for _, r := range list {
		if r.StartedAt.Before(since) {
			continue
		}
		sum.Total++
		c := sum.ByCadence[r.Cadence]
		c.Runs++
		switch r.Status {
		case model.RunStatusCompleted:
			sum.Completed++
			c.Completed++
		case model.RunStatusFailed:
			sum.Failed++
			c.Failed++
		}
		if r.Status != model.RunStatusRunning {
			totalMs += float64(r.Duration().Milliseconds())
			finished++
		}
		sum.Stored += r.StoredCount
		c.Stored += r.StoredCount
		if c.LastRun == nil || r.StartedAt.After(*c.LastRun) {
			started := r.StartedAt
			c.LastRun = &started
		}
		sum.ByCadence[r.Cadence] = c
	}

	if finished > 0 {
		sum.FailRate = float64(sum.Failed) / float64(finished)
		sum.AvgDurationMs = totalMs / float64(finished)
	}
	return sum, nil
}

// Degraded reports whether the failure rate is above threshold with at least
// five finished runs.
func (s *RunSummary) Degraded(threshold float64) bool {
	return s.Completed+s.Failed >= 5 && s.FailRate > threshold
}
