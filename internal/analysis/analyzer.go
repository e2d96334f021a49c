package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/pkg/anthropic"
)

// Analyzer produces deeper market analysis for a candidate.
type Analyzer interface {
	Analyze(ctx context.Context, rec model.CandidateRecord) (model.Enrichment, error)
	Configured() bool
}

const analyzeSystemPrompt = `You assess away-from-home food and beverage sales opportunities.
Respond with a single JSON object and nothing else:
{"market_size": "<small|medium|large>", "competition_level": "<low|medium|high>", "success_probability": <0-100>, "risk_factors": ["..."], "recommended_actions": ["..."]}`

const analyzeUserPrompt = `Channel: %s
Location: %s
Tags: %s
Title: %s

Body (first 3000 chars):
%s`

// AnthropicAnalyzer enriches candidates with a Messages API call.
type AnthropicAnalyzer struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	configured bool
}

// NewAnalyzer builds an analyzer.
func NewAnalyzer(client anthropic.Client, model string, maxTokens int64, configured bool) *AnthropicAnalyzer {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicAnalyzer{client: client, model: model, maxTokens: maxTokens, configured: configured}
}

// Configured reports whether an API key was supplied.
func (a *AnthropicAnalyzer) Configured() bool { return a.client != nil && a.configured }

type analyzeResponse struct {
	MarketSize         string   `json:"market_size"`
	CompetitionLevel   string   `json:"competition_level"`
	SuccessProbability *float64 `json:"success_probability"`
	RiskFactors        []string `json:"risk_factors"`
	RecommendedActions []string `json:"recommended_actions"`
}

// Analyze asks the model for market size, competition and success odds.
func (a *AnthropicAnalyzer) Analyze(ctx context.Context, rec model.CandidateRecord) (model.Enrichment, error) {
	prompt := fmt.Sprintf(analyzeUserPrompt,
		rec.Channel, rec.Location, strings.Join(rec.Tags, ", "), rec.Title, truncate(rec.Body, 3000))

	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      analyzeSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return model.Enrichment{}, callError(err, "analyze")
	}
	resp.Usage.Log(a.model, "analyze")

	return parseEnrichment(resp.Text())
}

func parseEnrichment(text string) (model.Enrichment, error) {
	var raw analyzeResponse
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return model.Enrichment{}, eris.Wrapf(model.ErrEnrichment, "unparseable response: %v", err)
	}
	if strings.TrimSpace(raw.MarketSize) == "" && strings.TrimSpace(raw.CompetitionLevel) == "" && raw.SuccessProbability == nil {
		return model.Enrichment{}, eris.Wrap(model.ErrEnrichment, "empty analysis")
	}

	e := model.Enrichment{
		MarketSize:         strings.ToLower(strings.TrimSpace(raw.MarketSize)),
		CompetitionLevel:   strings.ToLower(strings.TrimSpace(raw.CompetitionLevel)),
		RiskFactors:        normalizeList(raw.RiskFactors),
		RecommendedActions: normalizeList(raw.RecommendedActions),
	}
	if raw.SuccessProbability != nil {
		p := percent(*raw.SuccessProbability)
		e.SuccessProbability = &p
	}
	return e, nil
}
