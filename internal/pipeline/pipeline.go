// Package pipeline executes one collection run: ingestion, dedup, enrichment,
// scoring and persistence, strictly in that order.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boazzati/AFH-Platform-sub001/internal/dedup"
	"github.com/boazzati/AFH-Platform-sub001/internal/ingest"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/monitoring"
	"github.com/boazzati/AFH-Platform-sub001/internal/scorer"
)

// Ingester produces the candidates of one run.
type Ingester interface {
	Collect(ctx context.Context, cadence model.Cadence) ingest.Result
}

// Store is the persistence surface used by a run.
type Store interface {
	Upsert(ctx context.Context, sig model.Signal) (bool, error)
	SaveRun(ctx context.Context, run model.CollectionRun) error
}

// RunRecorder receives every finished run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *model.CollectionRun, batch monitoring.Batch) error
}

// finalizeTimeout bounds run bookkeeping after the run context is gone.
const finalizeTimeout = 30 * time.Second

// Pipeline runs the stages for a cadence. It holds no per-run state and is
// safe for concurrent runs of different cadences.
type Pipeline struct {
	ingest   Ingester
	dedup    *dedup.Stage
	scorer   *scorer.Scorer
	store    Store
	recorder RunRecorder
	nowFunc  func() time.Time
}

// New creates a Pipeline.
func New(in Ingester, dd *dedup.Stage, sc *scorer.Scorer, st Store, rec RunRecorder) *Pipeline {
	return &Pipeline{
		ingest:   in,
		dedup:    dd,
		scorer:   sc,
		store:    st,
		recorder: rec,
		nowFunc:  time.Now,
	}
}

// Execute runs the cadence once and returns the finished run. The run fails
// only on a *model.PersistenceError; every other stage failure has already
// been absorbed by its stage.
func (p *Pipeline) Execute(ctx context.Context, cadence model.Cadence) *model.CollectionRun {
	run := &model.CollectionRun{
		ID:        uuid.New().String(),
		Cadence:   cadence.Name,
		StartedAt: p.nowFunc().UTC(),
		Status:    model.RunStatusRunning,
		Phase:     model.PhaseIdle,
	}
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("cadence", cadence.Name),
		zap.String("run_id", run.ID),
	)
	p.saveRun(ctx, run, log)
	log.Info("pipeline: run started", zap.Strings("sources", cadence.Sources))

	batch, err := p.stages(ctx, cadence, run, log)
	if err != nil {
		p.fail(run, err, log)
	} else {
		advance(run, model.PhaseCompleted, log)
		run.Status = model.RunStatusCompleted
		end := p.nowFunc().UTC()
		run.EndedAt = &end
		log.Info("pipeline: run completed",
			zap.Int("raw", run.RawCount),
			zap.Int("processed", run.ProcessedCount),
			zap.Int("stored", run.StoredCount),
			zap.Int("inserted", run.InsertedCount),
			zap.Int("updated", run.UpdatedCount),
			zap.Int("dropped", run.DroppedCount),
			zap.Int64("duration_ms", run.Duration().Milliseconds()),
		)
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	p.saveRun(fctx, run, log)
	if p.recorder != nil {
		if err := p.recorder.RecordRun(fctx, run, batch); err != nil {
			log.Error("pipeline: record run metrics", zap.Error(err))
		}
	}
	return run
}

func (p *Pipeline) stages(ctx context.Context, cadence model.Cadence, run *model.CollectionRun, log *zap.Logger) (monitoring.Batch, error) {
	var batch monitoring.Batch

	advance(run, model.PhaseIngesting, log)
	res := p.ingest.Collect(ctx, cadence)
	run.RawCount = res.RawCount

	advance(run, model.PhaseDeduplicating, log)
	resolved, err := p.dedup.Resolve(ctx, res.Candidates)
	if err != nil {
		return batch, err
	}

	advance(run, model.PhaseEnriching, log)
	degraded := p.dedup.Enrich(ctx, resolved)
	if degraded > 0 {
		log.Warn("pipeline: degraded enrichments", zap.Int("degraded", degraded))
	}

	advance(run, model.PhaseScoring, log)
	scored := make([]model.Signal, 0, len(resolved.Records))
	for _, rec := range resolved.Records {
		sig := p.scorer.Score(rec)
		if p.scorer.LowConfidence(sig) {
			batch.LowConfidence++
		}
		scored = append(scored, sig)
	}
	batch.Processed = len(scored)
	run.ProcessedCount = len(scored)

	kept, dropped := p.scorer.Gate(scored)
	run.DroppedCount = dropped

	advance(run, model.PhasePersisting, log)
	now := p.nowFunc().UTC()
	for _, sig := range kept {
		sig.CreatedAt = now
		sig.UpdatedAt = now
		sig.CollectionMode = cadence.Name

		inserted, err := p.store.Upsert(ctx, sig)
		if err != nil {
			return batch, model.NewPersistenceError("upsert", err)
		}
		if inserted {
			run.InsertedCount++
		} else {
			run.UpdatedCount++
		}
		run.StoredCount++
		batch.Stored = append(batch.Stored, sig)
	}
	return batch, nil
}

func (p *Pipeline) fail(run *model.CollectionRun, err error, log *zap.Logger) {
	failedAt := run.Phase
	advance(run, model.PhaseFailed, log)
	run.Status = model.RunStatusFailed
	run.Error = string(failedAt) + ": " + err.Error()
	end := p.nowFunc().UTC()
	run.EndedAt = &end
	log.Error("pipeline: run failed", zap.String("phase", string(failedAt)), zap.Error(err))
}

func (p *Pipeline) saveRun(ctx context.Context, run *model.CollectionRun, log *zap.Logger) {
	if err := p.store.SaveRun(ctx, *run); err != nil {
		log.Warn("pipeline: save run history", zap.Error(err))
	}
}

// advance moves the run to the next phase. An illegal transition is a bug
// in the caller and is logged rather than applied.
func advance(run *model.CollectionRun, to model.RunPhase, log *zap.Logger) {
	if !model.CanTransition(run.Phase, to) {
		log.DPanic("pipeline: illegal phase transition",
			zap.String("from", string(run.Phase)), zap.String("to", string(to)))
		return
	}
	run.Phase = to
}
