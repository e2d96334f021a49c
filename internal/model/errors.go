package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Stage-local failures. Each is recovered where it happens and never fails a run.
var (
	ErrSourceUnavailable = eris.New("source unavailable")
	ErrClassification    = eris.New("classification failed")
	ErrEnrichment        = eris.New("enrichment failed")
)

// Control-surface errors returned synchronously to callers of the orchestrator.
var (
	ErrNotRunning     = eris.New("orchestrator is not running")
	ErrUnknownCadence = eris.New("unknown cadence")
	ErrCadenceBusy    = eris.New("cadence already has a run in flight")
)

// PersistenceError is a store-level failure. It is the only error that fails a run.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError wraps err as a failure of the named store operation.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
