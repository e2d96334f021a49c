// Package scorer computes sub-scores, composite scores and priorities for
// enriched opportunity records and applies the validation gate.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
)

// DefaultScoringConfig returns a config.ScoringConfig with the standard
// weights and thresholds. Weights sum to 1.0.
func DefaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Weights: config.ScoringWeights{
			Confidence:      0.25,
			Relevance:       0.25,
			Urgency:         0.2,
			MarketPotential: 0.2,
			Feasibility:     0.1,
		},
		ChannelWeights:  config.DefaultChannelWeights(),
		ChannelDefaults: config.DefaultChannelMultipliers(),
		HighThreshold:   80,
		MediumThreshold: 60,
		MinScore:        30,
		MinConfidence:   60,
	}
}

// WeightSum returns the sum of all composite weights.
func WeightSum(w config.ScoringWeights) float64 {
	return w.Confidence + w.Relevance + w.Urgency + w.MarketPotential + w.Feasibility
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	weights := map[string]float64{
		"confidence":       c.Weights.Confidence,
		"relevance":        c.Weights.Relevance,
		"urgency":          c.Weights.Urgency,
		"market_potential": c.Weights.MarketPotential,
		"feasibility":      c.Weights.Feasibility,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("weights.%s must be >= 0", name))
		}
	}
	if sum := WeightSum(c.Weights); math.Abs(sum-1) > 0.001 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1.0, got %.3f", sum))
	}

	if c.HighThreshold < c.MediumThreshold {
		errs = append(errs, "high_threshold must be >= medium_threshold")
	}
	if c.MediumThreshold < 0 || c.HighThreshold > 100 {
		errs = append(errs, "priority thresholds must be between 0 and 100")
	}
	if c.MinScore < 0 || c.MinScore > 100 {
		errs = append(errs, "min_score must be between 0 and 100")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		errs = append(errs, "min_confidence must be between 0 and 100")
	}

	for channel, row := range c.ChannelWeights {
		for cat, w := range row {
			if w < 0 || w > 1 {
				errs = append(errs, fmt.Sprintf("channel_weights.%s.%s must be between 0 and 1", channel, cat))
			}
		}
	}
	for channel, m := range c.ChannelDefaults {
		if m < 0 || m > 1 {
			errs = append(errs, fmt.Sprintf("channel_defaults.%s must be between 0 and 1", channel))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
