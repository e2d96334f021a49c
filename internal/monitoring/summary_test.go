package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

func TestSummarize(t *testing.T) {
	now := time.Now().UTC()
	run := func(cadence string, status model.RunStatus, ago time.Duration, stored int) model.CollectionRun {
		start := now.Add(-ago)
		end := start.Add(2 * time.Second)
		r := model.CollectionRun{ID: cadence + ago.String(), Cadence: cadence, StartedAt: start, Status: status, StoredCount: stored}
		if status != model.RunStatusRunning {
			r.EndedAt = &end
		}
		return r
	}
	st := &memStore{runs: []model.CollectionRun{
		run("urgent", model.RunStatusCompleted, time.Hour, 3),
		run("urgent", model.RunStatusFailed, 2*time.Hour, 0),
		run("deep", model.RunStatusCompleted, 3*time.Hour, 7),
		run("deep", model.RunStatusRunning, time.Minute, 0),
		run("weekly", model.RunStatusCompleted, 72*time.Hour, 9),
	}}

	sum, err := Summarize(context.Background(), st, 24)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 10, sum.Stored)
	assert.InDelta(t, 1.0/3.0, sum.FailRate, 0.001)
	assert.InDelta(t, 2000, sum.AvgDurationMs, 0.001)
	assert.Equal(t, 2, sum.ByCadence["urgent"].Runs)
	assert.NotContains(t, sum.ByCadence, "weekly")
	assert.False(t, sum.Degraded(0.1), "fewer than five finished runs")
}

func TestRunSummary_Degraded(t *testing.T) {
	s := &RunSummary{Completed: 3, Failed: 3, FailRate: 0.5}
	assert.True(t, s.Degraded(0.25))
	assert.False(t, s.Degraded(0.6))
}
