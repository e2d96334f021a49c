// Package dedup fingerprints candidates, decides insert versus update against
// the store and enriches the survivors through the analyzer in rate-limited
// batches.
package dedup

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boazzati/AFH-Platform-sub001/internal/analysis"
	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/fingerprint"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/resilience"
)

// Placeholder values of a degraded enrichment.
const (
	UnknownValue               = "unknown"
	DegradedSuccessProbability = 50.0
)

// Lookup is the store read the stage needs.
type Lookup interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.Signal, error)
}

// Resolved is the output of Resolve: deduplicated records with their write
// decision, plus the stored signals they will merge over.
type Resolved struct {
	Records   []model.EnrichedRecord
	Collapsed int
	Inserts   int
	Updates   int

	existing map[string]*model.Signal
}

// Existing returns the stored signal a record will update, or nil.
func (r *Resolved) Existing(fp string) *model.Signal {
	return r.existing[fp]
}

// Stage is the dedup and enrichment stage.
type Stage struct {
	lookup     Lookup
	analyzer   analysis.Analyzer
	window     time.Duration
	batchSize  int
	batchDelay time.Duration
	policy     resilience.Policy
	nowFunc    func() time.Time
}

// New builds the stage.
func New(cfg config.DedupConfig, retry config.RetryConfig, lookup Lookup, analyzer analysis.Analyzer) *Stage {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 10
	}
	window := time.Duration(cfg.WindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Stage{
		lookup:     lookup,
		analyzer:   analyzer,
		window:     window,
		batchSize:  batch,
		batchDelay: time.Duration(cfg.BatchDelayMs) * time.Millisecond,
		policy:     resilience.FromConfig(retry).WithLogger("analyzer", "analyze"),
		nowFunc:    time.Now,
	}
}

// Resolve fingerprints every candidate, collapses in-run duplicates to the
// first occurrence and looks each fingerprint up in the store. A store
// failure is returned as a *model.PersistenceError.
func (s *Stage) Resolve(ctx context.Context, candidates []model.CandidateRecord) (*Resolved, error) {
	out := &Resolved{existing: make(map[string]*model.Signal)}
	seen := make(map[string]struct{}, len(candidates))
	cutoff := s.nowFunc().Add(-s.window)

	for _, c := range candidates {
		fp := fingerprint.Compute(c.Title, c.Body, c.SourceID)
		if _, dup := seen[fp]; dup {
			out.Collapsed++
			continue
		}
		seen[fp] = struct{}{}

		existing, err := s.lookup.FindByFingerprint(ctx, fp)
		if err != nil {
			return nil, model.NewPersistenceError("find by fingerprint", err)
		}

		rec := model.EnrichedRecord{CandidateRecord: c, Fingerprint: fp, Op: model.OpInsert}
		if existing != nil && !existing.CreatedAt.Before(cutoff) {
			rec.Op = model.OpUpdate
			out.existing[fp] = existing
			out.Updates++
		} else {
			out.Inserts++
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// Enrich runs the analyzer over the resolved records in batches. Analyzer
// failures degrade the item; they never fail the batch. Returns the number
// of degraded records. If ctx ends between batches, the rest are degraded
// without calling the analyzer.
func (s *Stage) Enrich(ctx context.Context, r *Resolved) int {
	log := zap.L().With(zap.String("component", "dedup"))
	degraded := 0

	for start := 0; start < len(r.Records); start += s.batchSize {
		end := min(start+s.batchSize, len(r.Records))
		batch := r.Records[start:end]

		if start > 0 {
			if err := resilience.Sleep(ctx, s.batchDelay); err != nil {
				log.Warn("enrichment interrupted, degrading remaining records",
					zap.Int("remaining", len(r.Records)-start), zap.Error(err))
				for i := start; i < len(r.Records); i++ {
					s.finish(r, &r.Records[i], Degraded())
					degraded++
				}
				return degraded
			}
		}

		results := make([]model.Enrichment, len(batch))
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(s.batchSize)
		for i := range batch {
			g.Go(func() error {
				results[i] = s.analyze(gCtx, batch[i], log)
				return nil
			})
		}
		_ = g.Wait()

		for i := range batch {
			if results[i].Degraded {
				degraded++
			}
			s.finish(r, &batch[i], results[i])
		}
	}
	return degraded
}

func (s *Stage) analyze(ctx context.Context, rec model.EnrichedRecord, log *zap.Logger) model.Enrichment {
	if s.analyzer == nil || !s.analyzer.Configured() {
		return Degraded()
	}
	e, err := resilience.DoVal(ctx, s.policy, func(ctx context.Context) (model.Enrichment, error) {
		return s.analyzer.Analyze(ctx, rec.CandidateRecord)
	})
	if err != nil {
		log.Warn("analyzer failed, using degraded enrichment",
			zap.String("fingerprint", rec.Fingerprint),
			zap.String("source", rec.SourceID),
			zap.Error(err),
		)
		return Degraded()
	}
	return e
}

// finish attaches the enrichment and, for updates, carries the stored
// location over an empty one.
func (s *Stage) finish(r *Resolved, rec *model.EnrichedRecord, fresh model.Enrichment) {
	rec.Enrichment = s.merge(r, *rec, fresh)
	if rec.Op == model.OpUpdate && rec.Location == "" {
		if prev := r.Existing(rec.Fingerprint); prev != nil {
			rec.Location = prev.Location
		}
	}
}

// merge keeps a stored, non-degraded enrichment when the fresh one is degraded.
func (s *Stage) merge(r *Resolved, rec model.EnrichedRecord, fresh model.Enrichment) model.Enrichment {
	if !fresh.Degraded || rec.Op != model.OpUpdate {
		return fresh
	}
	prev := r.Existing(rec.Fingerprint)
	if prev == nil || prev.Enrichment == nil || prev.Enrichment.Degraded {
		return fresh
	}
	return *prev.Enrichment
}

// Degraded returns the minimal enrichment used when the analyzer is
// unavailable or fails.
func Degraded() model.Enrichment {
	p := DegradedSuccessProbability
	return model.Enrichment{
		MarketSize:         UnknownValue,
		CompetitionLevel:   UnknownValue,
		SuccessProbability: &p,
		Degraded:           true,
	}
}
