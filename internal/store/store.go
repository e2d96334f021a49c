// Package store persists opportunity signals, the metrics singleton, alerts,
// run history and health snapshots.
package store

import (
	"context"
	"time"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// SignalFilter narrows ListSignals.
type SignalFilter struct {
	From     time.Time      `json:"from,omitempty"`
	To       time.Time      `json:"to,omitempty"`
	Channel  model.Channel  `json:"channel,omitempty"`
	Priority model.Priority `json:"priority,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	Type  model.AlertType `json:"type,omitempty"`
	Since time.Time       `json:"since,omitempty"`
	Limit int             `json:"limit,omitempty"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Cadence string          `json:"cadence,omitempty"`
	Status  model.RunStatus `json:"status,omitempty"`
	Limit   int             `json:"limit,omitempty"`
}

// Store is the persistence interface for the collection pipeline. All
// writes are single-statement upserts or appends, so concurrent runs from
// different cadences need no extra locking.
type Store interface {
	// Signals
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.Signal, error)
	// Upsert inserts sig or merges it over the existing row with the same
	// fingerprint. created_at and collection_mode of an existing row are
	// never changed. Returns true when a new row was inserted.
	Upsert(ctx context.Context, sig model.Signal) (bool, error)
	QueryByTimeRange(ctx context.Context, from, to time.Time) ([]model.Signal, error)
	ListSignals(ctx context.Context, filter SignalFilter) ([]model.Signal, error)
	LatestSignalCreatedAt(ctx context.Context) (*time.Time, error)

	// Metrics singleton
	GetMetrics(ctx context.Context) (*model.MetricsSnapshot, error)
	SetMetrics(ctx context.Context, m model.MetricsSnapshot) error

	// Alerts (append-only)
	AppendAlert(ctx context.Context, a model.Alert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)

	// Run history
	SaveRun(ctx context.Context, run model.CollectionRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.CollectionRun, error)

	// Health
	SaveHealthStatus(ctx context.Context, hs model.HealthStatus) error
	LatestHealthStatus(ctx context.Context) (*model.HealthStatus, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func limitOr(n int) uint64 {
	if n <= 0 {
		return defaultListLimit
	}
	return uint64(n)
}
