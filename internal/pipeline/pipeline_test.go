package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/dedup"
	"github.com/boazzati/AFH-Platform-sub001/internal/ingest"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/monitoring"
	"github.com/boazzati/AFH-Platform-sub001/internal/scorer"
	"github.com/boazzati/AFH-Platform-sub001/internal/store"
)

type fakeIngester struct {
	result ingest.Result
}

func (f *fakeIngester) Collect(context.Context, model.Cadence) ingest.Result {
	return f.result
}

// brokenUpserts fails every Upsert and delegates the rest.
type brokenUpserts struct {
	store.Store
}

func (brokenUpserts) Upsert(context.Context, model.Signal) (bool, error) {
	return false, errors.New("disk full")
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func candidate(title string, confidence float64, published time.Time) model.CandidateRecord {
	return model.CandidateRecord{
		RawItem: model.RawItem{
			Title:       title,
			Body:        "Regional chain announces expansion with new location openings",
			URL:         "https://news.example.com/" + title,
			SourceID:    "news-expansion",
			PublishedAt: published,
		},
		Classification: model.Classification{
			IsOpportunity: true,
			Channel:       "restaurants",
			Priority:      model.PriorityMedium,
			Confidence:    confidence,
			Tags:          []string{"expansion"},
		},
		ClassifiedBy: model.ClassifiedByClassifier,
	}
}

func newTestPipeline(t *testing.T, st store.Store, in Ingester) (*Pipeline, *monitoring.Recorder) {
	t.Helper()
	sc, err := scorer.New(scorer.DefaultScoringConfig(), config.KeywordConfig{
		Categories: config.DefaultCategoryKeywords(),
		Urgency:    config.DefaultUrgencyKeywords(),
	})
	require.NoError(t, err)
	dd := dedup.New(config.DedupConfig{WindowHours: 24, BatchSize: 10}, config.RetryConfig{}, st, nil)
	rec := monitoring.NewRecorder(st, config.AlertConfig{HighPriorityMin: 0, LowConfidenceRatio: 0.5}, nil)
	return New(in, dd, sc, st, rec), rec
}

func TestExecute_StoresPassingSignals(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	in := &fakeIngester{result: ingest.Result{
		RawCount: 3,
		Candidates: []model.CandidateRecord{
			candidate("Burger Barn expands", 85, now.Add(-time.Hour)),
			candidate("Taco Town expands", 40, now.Add(-2*time.Hour)),
		},
	}}
	p, _ := newTestPipeline(t, st, in)

	run := p.Execute(context.Background(), model.Cadence{Name: "urgent"})
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, model.PhaseCompleted, run.Phase)
	assert.Equal(t, 3, run.RawCount)
	assert.Equal(t, 2, run.ProcessedCount)
	assert.Equal(t, 1, run.StoredCount)
	assert.Equal(t, 1, run.InsertedCount)
	assert.Equal(t, 1, run.DroppedCount, "confidence below the gate is dropped")
	require.NotNil(t, run.EndedAt)

	sigs, err := st.ListSignals(context.Background(), store.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "Burger Barn expands", sigs[0].Title)
	assert.Equal(t, "urgent", sigs[0].CollectionMode)
	require.NotNil(t, sigs[0].Enrichment)
	assert.True(t, sigs[0].Enrichment.Degraded, "no analyzer configured")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusCompleted, runs[0].Status)

	m, err := st.GetMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.TotalRuns)
	assert.Equal(t, 1, m.SuccessfulRuns)
	assert.Equal(t, 2, m.OpportunitiesProcessed)
}

func TestExecute_IdempotentAcrossRuns(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	first := candidate("Pizza Palace expands", 90, now.Add(-time.Hour))
	second := first
	second.PublishedAt = now.Add(-10 * time.Minute)

	in := &fakeIngester{result: ingest.Result{Candidates: []model.CandidateRecord{first}}}
	p, _ := newTestPipeline(t, st, in)

	run1 := p.Execute(context.Background(), model.Cadence{Name: "urgent"})
	require.Equal(t, model.RunStatusCompleted, run1.Status)
	sigs, err := st.ListSignals(context.Background(), store.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	createdAt := sigs[0].CreatedAt

	in.result = ingest.Result{Candidates: []model.CandidateRecord{second}}
	run2 := p.Execute(context.Background(), model.Cadence{Name: "regular"})
	require.Equal(t, model.RunStatusCompleted, run2.Status)
	assert.Equal(t, 0, run2.InsertedCount)
	assert.Equal(t, 1, run2.UpdatedCount)

	sigs, err = st.ListSignals(context.Background(), store.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, sigs, 1, "same fingerprint yields one signal")
	assert.True(t, createdAt.Equal(sigs[0].CreatedAt))
	assert.False(t, sigs[0].UpdatedAt.Before(createdAt))
	assert.Equal(t, "urgent", sigs[0].CollectionMode, "first insert's cadence wins")
	assert.Equal(t, 2, sigs[0].Revision)
}

func TestExecute_EmptyIngestCompletes(t *testing.T) {
	st := newTestStore(t)
	in := &fakeIngester{result: ingest.Result{FailedSources: []string{"a", "b", "c"}}}
	p, _ := newTestPipeline(t, st, in)

	run := p.Execute(context.Background(), model.Cadence{Name: "regular", Sources: []string{"a", "b", "c"}})
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Zero(t, run.RawCount)

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{Type: model.AlertCollectionError})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestExecute_PersistenceErrorFailsRun(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	in := &fakeIngester{result: ingest.Result{Candidates: []model.CandidateRecord{candidate("Diner expands", 90, now)}}}
	p, rec := newTestPipeline(t, brokenUpserts{st}, in)

	run := p.Execute(context.Background(), model.Cadence{Name: "deep"})
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.PhaseFailed, run.Phase)
	assert.Contains(t, run.Error, "persisting")
	assert.Contains(t, run.Error, "disk full")

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{Type: model.AlertCollectionError})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, run.ID, alerts[0].Details["run_id"])

	m, err := rec.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.FailedRuns)
	assert.Equal(t, m.TotalRuns, m.SuccessfulRuns+m.FailedRuns)
}

func TestExecute_HighPriorityAlert(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	c := candidate("Urgent deadline: hotel group expansion partnership", 100, now)
	c.Body = "urgent deadline asap this week closing soon: new menu rollout"
	c.Location = "Denver"
	c.Official = true
	in := &fakeIngester{result: ingest.Result{Candidates: []model.CandidateRecord{c}}}
	p, _ := newTestPipeline(t, st, in)

	run := p.Execute(context.Background(), model.Cadence{Name: "urgent"})
	require.Equal(t, model.RunStatusCompleted, run.Status)

	sigs, err := st.ListSignals(context.Background(), store.SignalFilter{})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, model.PriorityHigh, sigs[0].Priority)
	assert.InDelta(t, 89, sigs[0].CompositeScore, 0.001)
	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{Type: model.AlertHighPriority})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}
