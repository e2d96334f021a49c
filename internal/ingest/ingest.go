// Package ingest pulls raw items from a cadence's sources, filters them by
// keyword relevance and classifies the survivors.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/boazzati/AFH-Platform-sub001/internal/analysis"
	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/keywords"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/resilience"
	"github.com/boazzati/AFH-Platform-sub001/internal/source"
)

// Result is the output of one ingestion pass.
type Result struct {
	Candidates     []model.CandidateRecord
	RawCount       int
	Relevant       int
	NonOpportunity int
	Fallbacks      int
	Fetched        map[string]int
	FailedSources  []string
}

// Stage is the ingestion stage. It holds only immutable configuration and
// collaborators and is safe for concurrent runs.
type Stage struct {
	sources        map[string]config.SourceConfig
	registry       *source.Registry
	classifier     analysis.Classifier
	relevance      *keywords.Set
	fallback       config.FallbackConfig
	fetchPolicy    resilience.Policy
	classifyPolicy resilience.Policy
}

// New builds the stage.
func New(cfg *config.Config, registry *source.Registry, classifier analysis.Classifier) *Stage {
	sources := make(map[string]config.SourceConfig, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources[s.ID] = s
	}
	policy := resilience.FromConfig(cfg.Retry)
	return &Stage{
		sources:        sources,
		registry:       registry,
		classifier:     classifier,
		relevance:      keywords.NewSet(cfg.Keywords.Categories),
		fallback:       cfg.Fallback,
		fetchPolicy:    policy.WithLogger("source", "fetch"),
		classifyPolicy: policy.WithLogger("classifier", "classify"),
	}
}

// Collect runs every source of the cadence in order. Source failures yield
// an empty result for that source, and classifier failures yield the
// keyword fallback; neither is returned as an error.
func (s *Stage) Collect(ctx context.Context, cadence model.Cadence) Result {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("cadence", cadence.Name))
	res := Result{Fetched: make(map[string]int, len(cadence.Sources))}

	for _, id := range cadence.Sources {
		cfg, items, err := s.fetch(ctx, id)
		if err != nil {
			log.Warn("ingest: source unavailable, continuing with empty result",
				zap.String("source", id), zap.Error(err))
			res.FailedSources = append(res.FailedSources, id)
			res.Fetched[id] = 0
			continue
		}
		res.Fetched[id] = len(items)
		res.RawCount += len(items)

		for _, item := range items {
			categories := s.relevance.Categories(item.Text())
			if len(categories) == 0 {
				continue
			}
			res.Relevant++

			out := s.classify(ctx, item, cfg, categories)
			if out.IsFallback() {
				res.Fallbacks++
				log.Debug("ingest: classifier fallback",
					zap.String("source", id), zap.String("title", item.Title), zap.Error(out.Cause()))
			} else if !out.Value.IsOpportunity {
				res.NonOpportunity++
				continue
			}

			by := model.ClassifiedByClassifier
			if out.IsFallback() {
				by = model.ClassifiedByFallback
			}
			res.Candidates = append(res.Candidates, model.CandidateRecord{
				RawItem:        item,
				Classification: out.Value,
				Official:       cfg.Official,
				ClassifiedBy:   by,
			})
		}
	}

	log.Info("ingest: complete",
		zap.Int("raw", res.RawCount),
		zap.Int("relevant", res.Relevant),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("fallbacks", res.Fallbacks),
		zap.Int("failed_sources", len(res.FailedSources)),
	)
	return res
}

func (s *Stage) fetch(ctx context.Context, id string) (config.SourceConfig, []model.RawItem, error) {
	cfg, ok := s.sources[id]
	if !ok {
		return cfg, nil, eris.Wrapf(model.ErrSourceUnavailable, "source %s is not configured", id)
	}
	client, ok := s.registry.Lookup(cfg.Kind)
	if !ok {
		return cfg, nil, eris.Wrapf(model.ErrSourceUnavailable, "source %s: no client for kind %q", id, cfg.Kind)
	}

	items, err := resilience.DoVal(ctx, s.fetchPolicy, func(ctx context.Context) ([]model.RawItem, error) {
		return client.Fetch(ctx, cfg)
	})
	if err != nil {
		return cfg, nil, eris.Wrapf(model.ErrSourceUnavailable, "source %s: %v", id, err)
	}
	for i := range items {
		items[i].SourceID = id
	}
	return cfg, items, nil
}

// classify returns the classifier's answer or the deterministic fallback.
func (s *Stage) classify(ctx context.Context, item model.RawItem, cfg config.SourceConfig, categories []string) model.Outcome[model.Classification] {
	if s.classifier == nil || !s.classifier.Configured() {
		return model.FellBack(s.fallbackFor(cfg, categories), eris.Wrap(model.ErrClassification, "classifier not configured"))
	}

	c, err := resilience.DoVal(ctx, s.classifyPolicy, func(ctx context.Context) (model.Classification, error) {
		return s.classifier.Classify(ctx, item, cfg.ChannelHint)
	})
	if err != nil {
		return model.FellBack(s.fallbackFor(cfg, categories), err)
	}
	if len(c.Tags) == 0 {
		c.Tags = categories
	}
	return model.Parsed(c)
}

// fallbackFor is the keyword-based classification. It never rejects an item.
func (s *Stage) fallbackFor(cfg config.SourceConfig, categories []string) model.Classification {
	channel := model.Channel(cfg.ChannelHint)
	if channel == "" {
		channel = model.Channel(s.fallback.Channel)
	}
	if channel == "" {
		channel = model.DefaultChannel
	}
	priority := model.Priority(s.fallback.Priority)
	if !priority.Valid() {
		priority = model.PriorityMedium
	}
	confidence := s.fallback.Confidence
	if confidence <= 0 {
		confidence = 50
	}
	return model.Classification{
		IsOpportunity: true,
		Channel:       channel,
		Priority:      priority,
		Confidence:    confidence,
		Tags:          append([]string(nil), categories...),
	}
}
