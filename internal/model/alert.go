package model

import "time"

// AlertType identifies the rule that produced an alert.
type AlertType string

const (
	AlertHighPriority    AlertType = "high_priority_opportunities"
	AlertLowConfidence   AlertType = "low_confidence_batch"
	AlertCollectionError AlertType = "collection_error"
	AlertHealth          AlertType = "health_alert"
)

// Alert is an append-only operational notice.
type Alert struct {
	ID        string         `json:"id"`
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// HealthCheck is the result of a single liveness or freshness probe.
type HealthCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// HealthStatus is persisted once per health cycle.
type HealthStatus struct {
	ID        string        `json:"id"`
	CheckedAt time.Time     `json:"checked_at"`
	Healthy   bool          `json:"healthy"`
	Checks    []HealthCheck `json:"checks"`
}

// Failed returns the checks that did not pass.
func (h HealthStatus) Failed() []HealthCheck {
	var out []HealthCheck
	for _, c := range h.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}
