// Package monitoring keeps the run metrics singleton, evaluates per-run
// alert rules, delivers alerts and runs the periodic health checks.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// MetricsStore is the store surface the recorder writes to.
type MetricsStore interface {
	GetMetrics(ctx context.Context) (*model.MetricsSnapshot, error)
	SetMetrics(ctx context.Context, m model.MetricsSnapshot) error
	AppendAlert(ctx context.Context, a model.Alert) error
}

// Batch summarizes what one run processed, for the alert rules.
type Batch struct {
	// Stored are the signals persisted by the run.
	Stored []model.Signal
	// Processed is the number of records scored, before the gate.
	Processed int
	// LowConfidence counts scored records below the confidence floor.
	LowConfidence int
}

// HighPriority counts stored signals with high priority.
func (b Batch) HighPriority() int {
	n := 0
	for _, s := range b.Stored {
		if s.Priority == model.PriorityHigh {
			n++
		}
	}
	return n
}

// Recorder updates the metrics singleton after every run and appends one
// alert per triggered rule. Read-modify-write of the singleton is serialized
// so overlapping cadences never lose an increment.
type Recorder struct {
	mu      sync.Mutex
	store   MetricsStore
	rules   config.AlertConfig
	alerter *Alerter
	last    model.MetricsSnapshot
	nowFunc func() time.Time
}

// NewRecorder creates a Recorder. alerter may be nil.
func NewRecorder(st MetricsStore, rules config.AlertConfig, alerter *Alerter) *Recorder {
	return &Recorder{store: st, rules: rules, alerter: alerter, nowFunc: time.Now}
}

// ApplyRun folds a finished run into the snapshot.
func ApplyRun(m model.MetricsSnapshot, run *model.CollectionRun) model.MetricsSnapshot {
	m.TotalRuns++
	ended := run.StartedAt
	if run.EndedAt != nil {
		ended = *run.EndedAt
	}
	m.LastRunTime = &ended
	if run.Status == model.RunStatusFailed {
		m.FailedRuns++
	} else {
		m.SuccessfulRuns++
		m.LastSuccessTime = &ended
	}

	n := float64(m.SuccessfulRuns + m.FailedRuns)
	sample := float64(run.Duration().Milliseconds())
	m.AverageProcessingTimeMs = (m.AverageProcessingTimeMs*(n-1) + sample) / n
	m.OpportunitiesProcessed += run.ProcessedCount
	return m
}

// RecordRun persists updated metrics and any alerts for a finished run.
// Alerts are appended even when the metrics update fails; the metrics error
// is returned afterwards.
func (r *Recorder) RecordRun(ctx context.Context, run *model.CollectionRun, batch Batch) error {
	log := zap.L().With(zap.String("component", "monitoring.recorder"), zap.String("run_id", run.ID))

	metricsErr := r.updateMetrics(ctx, run)
	if metricsErr != nil {
		log.Error("monitoring: update metrics", zap.Error(metricsErr))
	}

	alerts := r.Evaluate(run, batch)
	var appended []model.Alert
	var alertErrs []error
	for _, a := range alerts {
		if err := r.store.AppendAlert(ctx, a); err != nil {
			log.Error("monitoring: append alert", zap.String("type", string(a.Type)), zap.Error(err))
			alertErrs = append(alertErrs, eris.Wrapf(err, "monitoring: append %s alert", a.Type))
			continue
		}
		appended = append(appended, a)
	}
	if len(appended) > 0 {
		r.alerter.SendAlerts(ctx, appended)
	}
	return errors.Join(append([]error{metricsErr}, alertErrs...)...)
}

func (r *Recorder) updateMetrics(ctx context.Context, run *model.CollectionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.store.GetMetrics(ctx)
	if err != nil {
		return eris.Wrap(err, "monitoring: read metrics")
	}
	next := ApplyRun(*cur, run)
	if err := r.store.SetMetrics(ctx, next); err != nil {
		return eris.Wrap(err, "monitoring: write metrics")
	}
	r.last = next
	return nil
}

// Evaluate returns the alerts triggered by a run.
func (r *Recorder) Evaluate(run *model.CollectionRun, batch Batch) []model.Alert {
	now := r.nowFunc().UTC()
	var alerts []model.Alert

	if run.Status == model.RunStatusFailed {
		alerts = append(alerts, model.Alert{
			ID:       uuid.New().String(),
			Type:     model.AlertCollectionError,
			Severity: "high",
			Message:  fmt.Sprintf("collection run %s for cadence %s failed: %s", run.ID, run.Cadence, run.Error),
			Details: map[string]any{
				"run_id":  run.ID,
				"cadence": run.Cadence,
				"phase":   string(run.Phase),
				"error":   run.Error,
			},
			Timestamp: now,
		})
		return alerts
	}

	if high := batch.HighPriority(); high > r.rules.HighPriorityMin {
		alerts = append(alerts, model.Alert{
			ID:       uuid.New().String(),
			Type:     model.AlertHighPriority,
			Severity: "medium",
			Message:  fmt.Sprintf("%d high-priority opportunities found by %s", high, run.Cadence),
			Details: map[string]any{
				"run_id":  run.ID,
				"cadence": run.Cadence,
				"count":   high,
			},
			Timestamp: now,
		})
	}

	if batch.Processed > 0 && float64(batch.LowConfidence) > r.rules.LowConfidenceRatio*float64(batch.Processed) {
		alerts = append(alerts, model.Alert{
			ID:       uuid.New().String(),
			Type:     model.AlertLowConfidence,
			Severity: "low",
			Message: fmt.Sprintf("%d of %d records in %s run scored below the confidence floor",
				batch.LowConfidence, batch.Processed, run.Cadence),
			Details: map[string]any{
				"run_id":         run.ID,
				"cadence":        run.Cadence,
				"low_confidence": batch.LowConfidence,
				"batch_size":     batch.Processed,
				"ratio":          r.rules.LowConfidenceRatio,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// Snapshot reads the metrics singleton. On a store error it returns the last
// known good snapshot together with the error.
func (r *Recorder) Snapshot(ctx context.Context) (model.MetricsSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.store.GetMetrics(ctx)
	if err != nil {
		return r.last, eris.Wrap(err, "monitoring: read metrics")
	}
	r.last = *m
	return r.last, nil
}

// Flush makes sure the stored snapshot is at least as recent as the cached
// one, writing the cache back if the store is behind.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.store.GetMetrics(ctx)
	if err != nil {
		return eris.Wrap(err, "monitoring: flush metrics")
	}
	if cur.TotalRuns >= r.last.TotalRuns {
		r.last = *cur
		return nil
	}
	return eris.Wrap(r.store.SetMetrics(ctx, r.last), "monitoring: flush metrics")
}
