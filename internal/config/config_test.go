package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 1000, cfg.Retry.BaseDelayMs)
	assert.InDelta(t, 2.0, cfg.Retry.BackoffMultiplier, 0.001)
	assert.Equal(t, 24, cfg.Dedup.WindowHours)
	assert.Equal(t, 10, cfg.Dedup.BatchSize)
	assert.InDelta(t, 30, cfg.Scoring.MinScore, 0.001)
	assert.InDelta(t, 60, cfg.Scoring.MinConfidence, 0.001)
	assert.InDelta(t, 80, cfg.Scoring.HighThreshold, 0.001)
	assert.InDelta(t, 60, cfg.Scoring.MediumThreshold, 0.001)
	assert.InDelta(t, 0.25, cfg.Scoring.Weights.Confidence, 0.001)
	assert.InDelta(t, 0.25, cfg.Scoring.Weights.Relevance, 0.001)
	assert.InDelta(t, 0.2, cfg.Scoring.Weights.Urgency, 0.001)
	assert.InDelta(t, 0.2, cfg.Scoring.Weights.MarketPotential, 0.001)
	assert.InDelta(t, 0.1, cfg.Scoring.Weights.Feasibility, 0.001)
	assert.InDelta(t, 50, cfg.Fallback.Confidence, 0.001)
	assert.Equal(t, 24, cfg.Health.FreshnessHours)

	require.Len(t, cfg.Cadences, 4)
	assert.Equal(t, "urgent", cfg.Cadences[0].Name)
	assert.Len(t, cfg.Keywords.Categories, 4)
	assert.Contains(t, cfg.Scoring.ChannelWeights, string(model.DefaultChannel))
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/afh
log:
  level: debug
  format: console
sources:
  - id: tenders
    kind: html
    url: https://example.com/tenders
    official: true
    item_selector: article
cadences:
  - name: fast
    trigger_spec: "@every 5m"
    enabled: true
    sources: [tenders]
    run_timeout: 2m
dedup:
  batch_size: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Dedup.BatchSize)
	require.Len(t, cfg.Sources, 1)
	assert.True(t, cfg.Sources[0].Official)
	require.Len(t, cfg.Cadences, 1)
	assert.Equal(t, 2*time.Minute, cfg.Cadences[0].RunTimeout)
	// Defaults still apply for unset values
	assert.Equal(t, 24, cfg.Dedup.WindowHours)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chdirTemp(t)
	t.Setenv("AFH_SCORING_MIN_CONFIDENCE", "70")
	t.Setenv("AFH_ANTHROPIC_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 70, cfg.Scoring.MinConfidence, 0.001)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
}

func TestValidate_UnknownSource(t *testing.T) {
	cfg := &Config{
		Sources:  []SourceConfig{{ID: "a"}},
		Cadences: []model.Cadence{{Name: "x", TriggerSpec: "@every 1m", Enabled: true, Sources: []string{"a", "b"}}},
		Dedup:    DedupConfig{BatchSize: 10, WindowHours: 24},
		Fallback: FallbackConfig{Priority: "medium"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source b")
}

func TestValidate_DuplicateCadence(t *testing.T) {
	cfg := &Config{
		Cadences: []model.Cadence{{Name: "x", TriggerSpec: "@every 1m"}, {Name: "x", TriggerSpec: "@every 1m"}},
		Dedup:    DedupConfig{BatchSize: 10, WindowHours: 24},
		Fallback: FallbackConfig{Priority: "bogus"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate cadence x")
	assert.Contains(t, err.Error(), "fallback.priority")
}

func TestSourceByID(t *testing.T) {
	cfg := &Config{Sources: DefaultSources()}
	s, ok := cfg.SourceByID("menu-launches")
	require.True(t, ok)
	assert.Equal(t, "restaurants", s.ChannelHint)

	_, ok = cfg.SourceByID("nope")
	assert.False(t, ok)
}

func TestRetryTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, RetryConfig{}.Timeout())
	assert.Equal(t, 5*time.Second, RetryConfig{TimeoutSecs: 5}.Timeout())
}

func TestSchedulerLocation(t *testing.T) {
	assert.Equal(t, time.UTC, SchedulerConfig{}.Location())
	assert.Equal(t, time.UTC, SchedulerConfig{Timezone: "Not/AZone"}.Location())
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
