package model

// WriteOp is the dedup stage's decision for a candidate.
type WriteOp string

const (
	// OpInsert means no signal with the fingerprint was created inside the window.
	OpInsert WriteOp = "insert"
	// OpUpdate means the candidate merges over a signal created inside the window.
	OpUpdate WriteOp = "update"
)

// EnrichedRecord is a deduplicated, enriched candidate ready for scoring.
type EnrichedRecord struct {
	CandidateRecord
	Fingerprint string     `json:"fingerprint"`
	Op          WriteOp    `json:"op"`
	Enrichment  Enrichment `json:"enrichment"`
}
