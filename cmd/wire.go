package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/boazzati/AFH-Platform-sub001/internal/analysis"
	"github.com/boazzati/AFH-Platform-sub001/internal/dedup"
	"github.com/boazzati/AFH-Platform-sub001/internal/ingest"
	"github.com/boazzati/AFH-Platform-sub001/internal/monitoring"
	"github.com/boazzati/AFH-Platform-sub001/internal/orchestrator"
	"github.com/boazzati/AFH-Platform-sub001/internal/pipeline"
	"github.com/boazzati/AFH-Platform-sub001/internal/scorer"
	"github.com/boazzati/AFH-Platform-sub001/internal/source"
	"github.com/boazzati/AFH-Platform-sub001/internal/store"
	anthropicpkg "github.com/boazzati/AFH-Platform-sub001/pkg/anthropic"
	"github.com/boazzati/AFH-Platform-sub001/pkg/jina"
)

// htmlPerHostRate bounds listing-page requests against any single host.
const htmlPerHostRate = rate.Limit(0.5)

// collectorEnv holds everything the run, trigger and serve commands need.
type collectorEnv struct {
	Store        store.Store
	Recorder     *monitoring.Recorder
	Health       *monitoring.HealthMonitor
	Orchestrator *orchestrator.Orchestrator
}

// Close releases resources held by the environment.
func (e *collectorEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initCollector validates the configuration and builds the full collection
// stack. Callers should defer env.Close().
func initCollector(ctx context.Context) (*collectorEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sc, err := scorer.New(cfg.Scoring, cfg.Keywords)
	if err != nil {
		return nil, eris.Wrap(err, "init scorer")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	llmConfigured := cfg.Anthropic.Key != ""
	if !llmConfigured {
		zap.L().Warn("AFH_ANTHROPIC_KEY not set, classification and analysis use fallbacks")
	}
	llm := anthropicpkg.NewClient(cfg.Anthropic.Key)
	classifier := analysis.NewClassifier(llm, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, llmConfigured)
	analyzer := analysis.NewAnalyzer(llm, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, llmConfigured)

	var jinaOpts []jina.Option
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	search := source.NewJinaSearch(jina.NewClient(cfg.Jina.Key, jinaOpts...), cfg.Jina.Key != "")
	listing := source.NewHTMLListing(nil, htmlPerHostRate)

	sources := source.NewRegistry()
	sources.Register(source.KindJinaSearch, search)
	sources.Register(source.KindHTML, listing)

	alerter := monitoring.NewAlerter(cfg.Alerts.WebhookURL)
	rec := monitoring.NewRecorder(st, cfg.Alerts, alerter)

	health := monitoring.NewHealthMonitor(st, cfg.Health, map[string]monitoring.Configurable{
		"classifier":          classifier,
		"analyzer":            analyzer,
		source.KindJinaSearch: search,
		source.KindHTML:       listing,
	}, alerter)

	pl := pipeline.New(
		ingest.New(cfg, sources, classifier),
		dedup.New(cfg.Dedup, cfg.Retry, st, analyzer),
		sc,
		st,
		rec,
	)

	return &collectorEnv{
		Store:        st,
		Recorder:     rec,
		Health:       health,
		Orchestrator: orchestrator.New(cfg, pl, rec, health),
	}, nil
}

// stopTimeout is how long shutdown waits for in-flight runs.
func stopTimeout() time.Duration {
	if cfg.Scheduler.StopTimeoutSecs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(cfg.Scheduler.StopTimeoutSecs) * time.Second
}

// shutdown stops the orchestrator on a fresh deadline, since the caller's
// context is usually already cancelled by the signal.
func shutdown(ctx context.Context, orch *orchestrator.Orchestrator) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout())
	defer cancel()
	return orch.Stop(sctx)
}
