package model

import "time"

// RunStatus is the terminal-or-running status of a collection run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunPhase tracks where a run is inside the stage sequence.
type RunPhase string

const (
	PhaseIdle          RunPhase = "idle"
	PhaseIngesting     RunPhase = "ingesting"
	PhaseDeduplicating RunPhase = "deduplicating"
	PhaseEnriching     RunPhase = "enriching"
	PhaseScoring       RunPhase = "scoring"
	PhasePersisting    RunPhase = "persisting"
	PhaseCompleted     RunPhase = "completed"
	PhaseFailed        RunPhase = "failed"
)

// Terminal reports whether no further transitions are allowed from p.
func (p RunPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// runPhaseOrder is the only forward path through a run.
var runPhaseOrder = map[RunPhase]RunPhase{
	PhaseIdle:          PhaseIngesting,
	PhaseIngesting:     PhaseDeduplicating,
	PhaseDeduplicating: PhaseEnriching,
	PhaseEnriching:     PhaseScoring,
	PhaseScoring:       PhasePersisting,
	PhasePersisting:    PhaseCompleted,
}

// CanTransition reports whether a run may move from one phase to another.
// Failed is reachable from every non-terminal phase.
func CanTransition(from, to RunPhase) bool {
	if from.Terminal() {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	return runPhaseOrder[from] == to
}

// Cadence is a named recurring schedule and the sources it collects from.
type Cadence struct {
	Name        string        `json:"name" yaml:"name" mapstructure:"name"`
	TriggerSpec string        `json:"trigger_spec" yaml:"trigger_spec" mapstructure:"trigger_spec"`
	Enabled     bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Sources     []string      `json:"sources" yaml:"sources" mapstructure:"sources"`
	RunTimeout  time.Duration `json:"run_timeout" yaml:"run_timeout" mapstructure:"run_timeout"`
}

// CollectionRun is one execution of the pipeline for a single cadence trigger.
type CollectionRun struct {
	ID             string     `json:"id"`
	Cadence        string     `json:"cadence"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Status         RunStatus  `json:"status"`
	Phase          RunPhase   `json:"phase"`
	RawCount       int        `json:"raw_count"`
	ProcessedCount int        `json:"processed_count"`
	StoredCount    int        `json:"stored_count"`
	InsertedCount  int        `json:"inserted_count"`
	UpdatedCount   int        `json:"updated_count"`
	DroppedCount   int        `json:"dropped_count"`
	Error          string     `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r *CollectionRun) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// MetricsKey is the fixed key of the singleton metrics document.
const MetricsKey = "global"

// MetricsSnapshot holds the rolling pipeline counters. One per process.
type MetricsSnapshot struct {
	TotalRuns               int        `json:"total_runs"`
	SuccessfulRuns          int        `json:"successful_runs"`
	FailedRuns              int        `json:"failed_runs"`
	LastRunTime             *time.Time `json:"last_run_time,omitempty"`
	LastSuccessTime         *time.Time `json:"last_success_time,omitempty"`
	AverageProcessingTimeMs float64    `json:"average_processing_time_ms"`
	OpportunitiesProcessed  int        `json:"opportunities_processed"`
}
