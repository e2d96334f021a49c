package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testSignal(fp string, score float64, created time.Time) model.Signal {
	prob := 72.0
	return model.Signal{
		Fingerprint:    fp,
		Title:          "Burger chain opens 40 new locations",
		Description:    "Expansion into the midwest",
		URL:            "https://news.example.com/" + fp,
		SourceID:       "news-expansion",
		Channel:        "restaurants",
		Categories:     []string{"expansion"},
		Tags:           []string{"expansion", "midwest"},
		Location:       "Chicago",
		SubScores:      model.SubScores{Confidence: 80, Relevance: 90, Urgency: 20, MarketPotential: 70, Feasibility: 60},
		CompositeScore: score,
		Priority:       model.PriorityMedium,
		CollectionMode: "urgent",
		Enrichment: &model.Enrichment{
			MarketSize:         "large",
			CompetitionLevel:   "medium",
			SuccessProbability: &prob,
			RiskFactors:        []string{"labor costs"},
		},
		PublishedAt: created.Add(-time.Hour),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	t.Run("UpsertAndFind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		inserted, err := s.Upsert(ctx, testSignal("fp-1", 75.5, base))
		require.NoError(t, err)
		assert.True(t, inserted)

		got, err := s.FindByFingerprint(ctx, "fp-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Burger chain opens 40 new locations", got.Title)
		assert.Equal(t, model.Channel("restaurants"), got.Channel)
		assert.Equal(t, []string{"expansion", "midwest"}, got.Tags)
		assert.InDelta(t, 75.5, got.CompositeScore, 0.001)
		assert.InDelta(t, 90, got.SubScores.Relevance, 0.001)
		require.NotNil(t, got.Enrichment)
		require.NotNil(t, got.Enrichment.SuccessProbability)
		assert.InDelta(t, 72, *got.Enrichment.SuccessProbability, 0.001)
		assert.True(t, base.Equal(got.CreatedAt))
		assert.Equal(t, 1, got.Revision)
	})

	t.Run("FindMissingReturnsNil", func(t *testing.T) {
		s := newStore(t)
		got, err := s.FindByFingerprint(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("UpsertPreservesCreatedAtAndMode", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Upsert(ctx, testSignal("fp-1", 60, base))
		require.NoError(t, err)

		later := base.Add(3 * time.Hour)
		update := testSignal("fp-1", 88, later)
		update.CollectionMode = "deep"
		update.URL = ""
		update.Location = ""
		update.Priority = model.PriorityHigh

		inserted, err := s.Upsert(ctx, update)
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := s.FindByFingerprint(ctx, "fp-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, base.Equal(got.CreatedAt), "created_at must not move")
		assert.True(t, later.Equal(got.UpdatedAt))
		assert.Equal(t, "urgent", got.CollectionMode)
		assert.Equal(t, "https://news.example.com/fp-1", got.URL, "empty url keeps the stored one")
		assert.Equal(t, "Chicago", got.Location)
		assert.InDelta(t, 88, got.CompositeScore, 0.001)
		assert.Equal(t, model.PriorityHigh, got.Priority)
		assert.Equal(t, 2, got.Revision)
	})

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sig := testSignal("fp-1", 70, base)

		for range 3 {
			_, err := s.Upsert(ctx, sig)
			require.NoError(t, err)
		}
		all, err := s.QueryByTimeRange(ctx, base.Add(-time.Hour), base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.InDelta(t, 70, all[0].CompositeScore, 0.001)
	})

	t.Run("QueryByTimeRangeAndFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := testSignal("a", 50, base)
		b := testSignal("b", 90, base.Add(time.Hour))
		b.Channel = "hotels"
		c := testSignal("c", 70, base.Add(48*time.Hour))
		for _, sig := range []model.Signal{a, b, c} {
			_, err := s.Upsert(ctx, sig)
			require.NoError(t, err)
		}

		got, err := s.QueryByTimeRange(ctx, base, base.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].Fingerprint, "higher composite first")
		assert.Equal(t, "a", got[1].Fingerprint)

		hotels, err := s.ListSignals(ctx, SignalFilter{Channel: "hotels"})
		require.NoError(t, err)
		require.Len(t, hotels, 1)
		assert.Equal(t, "b", hotels[0].Fingerprint)

		limited, err := s.ListSignals(ctx, SignalFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "b", limited[0].Fingerprint)
	})

	t.Run("LatestSignalCreatedAt", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		latest, err := s.LatestSignalCreatedAt(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)

		_, err = s.Upsert(ctx, testSignal("a", 50, base))
		require.NoError(t, err)
		_, err = s.Upsert(ctx, testSignal("b", 50, base.Add(2*time.Hour)))
		require.NoError(t, err)

		latest, err = s.LatestSignalCreatedAt(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.True(t, base.Add(2*time.Hour).Equal(*latest))
	})

	t.Run("MetricsSingleton", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m, err := s.GetMetrics(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.MetricsSnapshot{}, *m)

		now := base
		require.NoError(t, s.SetMetrics(ctx, model.MetricsSnapshot{TotalRuns: 1, SuccessfulRuns: 1, LastRunTime: &now}))
		require.NoError(t, s.SetMetrics(ctx, model.MetricsSnapshot{TotalRuns: 2, SuccessfulRuns: 1, FailedRuns: 1}))

		m, err = s.GetMetrics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, m.TotalRuns)
		assert.Equal(t, 1, m.FailedRuns)
		assert.Nil(t, m.LastRunTime)
	})

	t.Run("AlertsAppendAndList", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.AppendAlert(ctx, model.Alert{
			Type: model.AlertHighPriority, Severity: "high", Message: "3 high", Timestamp: base,
			Details: map[string]any{"count": 3},
		}))
		require.NoError(t, s.AppendAlert(ctx, model.Alert{
			Type: model.AlertHealth, Severity: "critical", Message: "store down", Timestamp: base.Add(time.Minute),
		}))

		all, err := s.ListAlerts(ctx, AlertFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, model.AlertHealth, all[0].Type, "newest first")
		assert.NotEmpty(t, all[1].ID)
		assert.InDelta(t, 3, all[1].Details["count"], 0.001)

		health, err := s.ListAlerts(ctx, AlertFilter{Type: model.AlertHealth})
		require.NoError(t, err)
		require.Len(t, health, 1)

		recent, err := s.ListAlerts(ctx, AlertFilter{Since: base.Add(30 * time.Second)})
		require.NoError(t, err)
		require.Len(t, recent, 1)
	})

	t.Run("RunsSaveAndList", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run := model.CollectionRun{ID: "r1", Cadence: "urgent", StartedAt: base, Status: model.RunStatusRunning, Phase: model.PhaseIngesting}
		require.NoError(t, s.SaveRun(ctx, run))

		ended := base.Add(time.Minute)
		run.Status = model.RunStatusCompleted
		run.Phase = model.PhaseCompleted
		run.EndedAt = &ended
		run.StoredCount = 4
		require.NoError(t, s.SaveRun(ctx, run))
		require.NoError(t, s.SaveRun(ctx, model.CollectionRun{ID: "r2", Cadence: "deep", StartedAt: base.Add(time.Hour), Status: model.RunStatusFailed}))

		runs, err := s.ListRuns(ctx, RunFilter{Cadence: "urgent"})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, model.RunStatusCompleted, runs[0].Status)
		assert.Equal(t, 4, runs[0].StoredCount)
		assert.Equal(t, time.Minute, runs[0].Duration())

		failed, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "r2", failed[0].ID)
	})

	t.Run("HealthStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		latest, err := s.LatestHealthStatus(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)

		require.NoError(t, s.SaveHealthStatus(ctx, model.HealthStatus{CheckedAt: base, Healthy: true,
			Checks: []model.HealthCheck{{Name: "store", OK: true}}}))
		require.NoError(t, s.SaveHealthStatus(ctx, model.HealthStatus{CheckedAt: base.Add(time.Minute), Healthy: false,
			Checks: []model.HealthCheck{{Name: "freshness", OK: false, Detail: "stale"}}}))

		latest, err = s.LatestHealthStatus(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.False(t, latest.Healthy)
		require.Len(t, latest.Failed(), 1)
		assert.Equal(t, "freshness", latest.Failed()[0].Name)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "open.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestSQLiteMigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"afh.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		sqliteDSN("afh.db"))
	assert.Equal(t,
		"file:afh.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		sqliteDSN("file:afh.db?mode=rwc"))
	assert.Equal(t, "afh.db?_pragma=busy_timeout(100)", sqliteDSN("afh.db?_pragma=busy_timeout(100)"))
}

func TestSQLite_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "concurrent.db")

	// Two stores on one file stand in for two processes sharing the database.
	var stores []Store
	for range 2 {
		s, err := NewSQLite(dbPath)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		require.NoError(t, s.Migrate(ctx))
		stores = append(stores, s)
	}

	const (
		writers      = 8
		perWriter    = 60
		fingerprints = 20
	)
	created := time.Now().UTC().Truncate(time.Second)

	var (
		wg       sync.WaitGroup
		failed   atomic.Int32
		firstErr atomic.Value
	)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := stores[w%len(stores)]
			for i := range perWriter {
				fp := fmt.Sprintf("fp-%d", (w*perWriter+i)%fingerprints)
				if _, err := s.Upsert(ctx, testSignal(fp, 70, created)); err != nil {
					failed.Add(1)
					firstErr.CompareAndSwap(nil, err.Error())
				}
			}
		}()
	}
	wg.Wait()

	require.Zero(t, failed.Load(), "first error: %v", firstErr.Load())

	for i := range fingerprints {
		got, err := stores[0].FindByFingerprint(ctx, fmt.Sprintf("fp-%d", i))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, writers*perWriter/fingerprints, got.Revision)
	}
}
