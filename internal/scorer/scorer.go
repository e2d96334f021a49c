package scorer

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/keywords"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// Feasibility bonuses on top of the base score.
const (
	feasibilityBase        = 50
	feasibilityLocation    = 10
	feasibilityOfficial    = 15
	feasibilityConfident   = 15
	feasibilityLowCompete  = 10
	feasibilityConfidentAt = 70

	urgencyPerKeyword = 20
)

// Scorer is pure: identical records and tables always produce identical
// scores. It is safe for concurrent use.
type Scorer struct {
	cfg        config.ScoringConfig
	categories *keywords.Set
	urgency    keywords.List
}

// New validates cfg and builds a scorer over the configured keyword tables.
func New(cfg config.ScoringConfig, kw config.KeywordConfig) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{
		cfg:        cfg,
		categories: keywords.NewSet(kw.Categories),
		urgency:    keywords.NewList(kw.Urgency),
	}, nil
}

// Score computes the sub-scores, composite and priority of rec and returns
// the signal that would be persisted. Timestamps and collection mode are
// left for the persistence step.
func (s *Scorer) Score(rec model.EnrichedRecord) model.Signal {
	text := rec.Text()
	categories := s.categories.Categories(text)
	subs := s.SubScores(rec, categories, text)
	composite := s.Composite(subs)

	enrichment := rec.Enrichment
	return model.Signal{
		Fingerprint:    rec.Fingerprint,
		Title:          rec.Title,
		Description:    rec.Body,
		URL:            rec.URL,
		SourceID:       rec.SourceID,
		Channel:        rec.Channel,
		Categories:     categories,
		Tags:           rec.Tags,
		Location:       rec.Location,
		SubScores:      subs,
		CompositeScore: composite,
		Priority:       s.PriorityOf(composite),
		Enrichment:     &enrichment,
		PublishedAt:    rec.PublishedAt,
	}
}

// SubScores computes the five components, each rounded and clamped to [0,100].
func (s *Scorer) SubScores(rec model.EnrichedRecord, categories []string, text string) model.SubScores {
	return model.SubScores{
		Confidence:      round2(clamp(rec.Confidence)),
		Relevance:       round2(s.relevance(rec.Channel, categories)),
		Urgency:         round2(clamp(float64(urgencyPerKeyword * s.urgency.Count(text)))),
		MarketPotential: round2(s.marketPotential(rec)),
		Feasibility:     round2(feasibility(rec)),
	}
}

// Composite is the weighted sum of the sub-scores.
func (s *Scorer) Composite(subs model.SubScores) float64 {
	w := s.cfg.Weights
	sum := subs.Confidence*w.Confidence +
		subs.Relevance*w.Relevance +
		subs.Urgency*w.Urgency +
		subs.MarketPotential*w.MarketPotential +
		subs.Feasibility*w.Feasibility
	return round2(clamp(sum))
}

// PriorityOf buckets a composite score. It is monotonic in score.
func (s *Scorer) PriorityOf(score float64) model.Priority {
	switch {
	case score >= s.cfg.HighThreshold:
		return model.PriorityHigh
	case score >= s.cfg.MediumThreshold:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// Passes reports whether a signal clears the validation gate.
func (s *Scorer) Passes(sig model.Signal) bool {
	return sig.CompositeScore >= s.cfg.MinScore && sig.SubScores.Confidence >= s.cfg.MinConfidence
}

// LowConfidence reports whether a signal's confidence is below the gate floor.
func (s *Scorer) LowConfidence(sig model.Signal) bool {
	return sig.SubScores.Confidence < s.cfg.MinConfidence
}

// Gate drops signals that fail validation and sorts the rest. Dropped
// signals are counted, never reported as errors.
func (s *Scorer) Gate(signals []model.Signal) (kept []model.Signal, dropped int) {
	kept = make([]model.Signal, 0, len(signals))
	for _, sig := range signals {
		if s.Passes(sig) {
			kept = append(kept, sig)
		} else {
			dropped++
		}
	}
	Sort(kept)
	return kept, dropped
}

// Sort orders signals by composite score descending, then most recent
// publication, then fingerprint so the order is total.
func Sort(signals []model.Signal) {
	slices.SortStableFunc(signals, func(a, b model.Signal) int {
		if c := cmp.Compare(b.CompositeScore, a.CompositeScore); c != 0 {
			return c
		}
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Fingerprint, b.Fingerprint)
	})
}

// relevance takes the strongest matched category from the channel's row of
// the weight table, falling back to the default row.
func (s *Scorer) relevance(channel model.Channel, categories []string) float64 {
	row, ok := s.cfg.ChannelWeights[strings.ToLower(string(channel))]
	def := s.cfg.ChannelWeights[string(model.DefaultChannel)]
	if !ok {
		row = def
	}

	best := 0.0
	for _, cat := range categories {
		w, ok := row[cat]
		if !ok {
			w = def[cat]
		}
		best = math.Max(best, w)
	}
	return clamp(best * 100)
}

func (s *Scorer) marketPotential(rec model.EnrichedRecord) float64 {
	if p := rec.Enrichment.SuccessProbability; p != nil {
		return clamp(*p)
	}
	m, ok := s.cfg.ChannelDefaults[strings.ToLower(string(rec.Channel))]
	if !ok {
		m = s.cfg.ChannelDefaults[string(model.DefaultChannel)]
	}
	return clamp(m * 100)
}

func feasibility(rec model.EnrichedRecord) float64 {
	score := float64(feasibilityBase)
	if strings.TrimSpace(rec.Location) != "" {
		score += feasibilityLocation
	}
	if rec.Official {
		score += feasibilityOfficial
	}
	if rec.Confidence > feasibilityConfidentAt {
		score += feasibilityConfident
	}
	if strings.EqualFold(rec.Enrichment.CompetitionLevel, "low") {
		score += feasibilityLowCompete
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
