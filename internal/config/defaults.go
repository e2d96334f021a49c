package config

import (
	"time"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// Keyword categories used for relevance scoring.
const (
	CategoryExpansion   = "expansion"
	CategoryMenu        = "menu"
	CategoryPartnership = "partnership"
	CategoryTrend       = "trend"
)

// DefaultCadences returns the built-in collection schedules.
func DefaultCadences() []model.Cadence {
	return []model.Cadence{
		{
			Name:        "urgent",
			TriggerSpec: "*/15 * * * *",
			Enabled:     true,
			Sources:     []string{"news-expansion"},
			RunTimeout:  10 * time.Minute,
		},
		{
			Name:        "regular",
			TriggerSpec: "0 * * * *",
			Enabled:     true,
			Sources:     []string{"news-expansion", "news-partnerships", "industry-trends"},
			RunTimeout:  20 * time.Minute,
		},
		{
			Name:        "deep",
			TriggerSpec: "0 */6 * * *",
			Enabled:     true,
			Sources:     []string{"news-expansion", "news-partnerships", "industry-trends", "menu-launches"},
			RunTimeout:  45 * time.Minute,
		},
		{
			Name:        "weekly",
			TriggerSpec: "0 9 * * 1",
			Enabled:     true,
			Sources:     []string{"industry-trends", "menu-launches"},
			RunTimeout:  time.Hour,
		},
	}
}

// DefaultSources returns the built-in search sources.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{ID: "news-expansion", Kind: "jina_search", Query: "restaurant chain expansion new locations opening", MaxItems: 10},
		{ID: "news-partnerships", Kind: "jina_search", Query: "foodservice partnership contract catering supplier", MaxItems: 10},
		{ID: "industry-trends", Kind: "jina_search", Query: "away from home food consumer trends", MaxItems: 10},
		{ID: "menu-launches", Kind: "jina_search", Query: "new menu launch limited time offer restaurant", ChannelHint: "restaurants", MaxItems: 10},
	}
}

// DefaultCategoryKeywords returns the keyword sets per relevance category.
func DefaultCategoryKeywords() map[string][]string {
	return map[string][]string{
		CategoryExpansion:   {"expansion", "expand", "new location", "opening", "new store", "franchise", "rollout"},
		CategoryMenu:        {"menu", "new dish", "limited time", "seasonal", "recipe", "plant-based", "beverage"},
		CategoryPartnership: {"partnership", "partner", "collaboration", "contract", "supplier", "tender", "catering"},
		CategoryTrend:       {"trend", "consumer demand", "growth", "emerging", "popular", "market share"},
	}
}

// DefaultUrgencyKeywords returns the keywords that raise the urgency sub-score.
func DefaultUrgencyKeywords() []string {
	return []string{"urgent", "immediately", "deadline", "this week", "asap", "closing soon", "limited time", "now hiring"}
}

// DefaultChannelWeights returns the channel x category relevance table.
func DefaultChannelWeights() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"restaurants": {CategoryExpansion: 0.9, CategoryMenu: 1.0, CategoryPartnership: 0.7, CategoryTrend: 0.8},
		"hotels":      {CategoryExpansion: 0.8, CategoryMenu: 0.7, CategoryPartnership: 0.9, CategoryTrend: 0.6},
		"workplace":   {CategoryExpansion: 0.6, CategoryMenu: 0.6, CategoryPartnership: 0.9, CategoryTrend: 0.5},
		"education":   {CategoryExpansion: 0.5, CategoryMenu: 0.7, CategoryPartnership: 0.8, CategoryTrend: 0.5},
		"healthcare":  {CategoryExpansion: 0.6, CategoryMenu: 0.6, CategoryPartnership: 0.8, CategoryTrend: 0.5},
		"travel":      {CategoryExpansion: 0.8, CategoryMenu: 0.7, CategoryPartnership: 0.8, CategoryTrend: 0.7},
		string(model.DefaultChannel): {
			CategoryExpansion: 0.6, CategoryMenu: 0.6, CategoryPartnership: 0.6, CategoryTrend: 0.5,
		},
	}
}

// DefaultChannelMultipliers returns the market-potential multiplier per channel.
func DefaultChannelMultipliers() map[string]float64 {
	return map[string]float64{
		"restaurants":                0.7,
		"hotels":                     0.65,
		"workplace":                  0.55,
		"education":                  0.5,
		"healthcare":                 0.55,
		"travel":                     0.6,
		string(model.DefaultChannel): 0.5,
	}
}
