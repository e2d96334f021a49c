package model

import "time"

// Channel names the market channel an opportunity belongs to (e.g. "hotels").
type Channel string

// DefaultChannel is the weight-table row used when a channel has no row of its own.
const DefaultChannel Channel = "default"

// Priority is the bucketed importance of a scored signal.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities low < medium < high. Unknown values rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	default:
		return 0
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// RawItem is a single item fetched from a source. It lives for one run only.
type RawItem struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	SourceID    string    `json:"source_id"`
}

// Text returns the concatenated title and body used for keyword matching.
func (r RawItem) Text() string {
	return r.Title + " " + r.Body
}

// Classification is the classifier's (or the fallback's) view of a raw item.
type Classification struct {
	IsOpportunity  bool     `json:"is_opportunity"`
	Channel        Channel  `json:"channel"`
	Priority       Priority `json:"priority"`
	Confidence     float64  `json:"confidence"` // 0-100
	Tags           []string `json:"tags,omitempty"`
	Location       string   `json:"location,omitempty"`
	PotentialValue string   `json:"potential_value,omitempty"`
}

// ClassifiedBy records which path produced a classification.
type ClassifiedBy string

const (
	ClassifiedByClassifier ClassifiedBy = "classifier"
	ClassifiedByFallback   ClassifiedBy = "fallback"
)

// CandidateRecord is a classified raw item that has not been deduplicated or scored yet.
type CandidateRecord struct {
	RawItem
	Classification
	Official     bool         `json:"official"`
	ClassifiedBy ClassifiedBy `json:"classified_by"`
}

// Enrichment holds the analyzer's deeper view of a candidate.
type Enrichment struct {
	MarketSize         string   `json:"market_size"`
	CompetitionLevel   string   `json:"competition_level"`
	SuccessProbability *float64 `json:"success_probability,omitempty"`
	RiskFactors        []string `json:"risk_factors,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
	Degraded           bool     `json:"degraded,omitempty"`
}

// SubScores are the five scoring components, each in [0,100].
type SubScores struct {
	Confidence      float64 `json:"confidence"`
	Relevance       float64 `json:"relevance"`
	Urgency         float64 `json:"urgency"`
	MarketPotential float64 `json:"market_potential"`
	Feasibility     float64 `json:"feasibility"`
}

// Signal is the persisted, scored opportunity keyed by Fingerprint.
type Signal struct {
	Fingerprint    string      `json:"fingerprint"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	URL            string      `json:"url,omitempty"`
	SourceID       string      `json:"source_id"`
	Channel        Channel     `json:"channel"`
	Categories     []string    `json:"categories,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	Location       string      `json:"location,omitempty"`
	SubScores      SubScores   `json:"sub_scores"`
	CompositeScore float64     `json:"composite_score"`
	Priority       Priority    `json:"priority"`
	CollectionMode string      `json:"collection_mode"`
	Enrichment     *Enrichment `json:"enrichment,omitempty"`
	PublishedAt    time.Time   `json:"published_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Revision       int         `json:"revision"`
}
