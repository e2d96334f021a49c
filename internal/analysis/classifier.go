// Package analysis holds the LLM-backed classifier and analyzer clients.
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

// Classifier turns a raw item into a tentative classification. Any error,
// including an unparseable response, sends the caller to its fallback.
type Classifier interface {
	Classify(ctx context.Context, item model.RawItem, channelHint string) (model.Classification, error)
	Configured() bool
}

const classifySystemPrompt = `You screen news and listings for away-from-home food and beverage sales opportunities (restaurants, hotels, workplace catering, education, healthcare, travel).
Respond with a single JSON object and nothing else:
{"is_opportunity": <bool>, "channel": "<restaurants|hotels|workplace|education|healthcare|travel|default>", "priority": "<low|medium|high>", "confidence": <0-100>, "tags": ["..."], "location": "<city or region, empty if unknown>", "potential_value": "<short estimate, empty if unknown>"}`

const classifyUserPrompt = `Channel hint: %s
Title: %s

Body (first 2000 chars):
%s`

// AnthropicClassifier classifies items with a single Messages API call.
type AnthropicClassifier struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	configured bool
}

// NewClassifier builds a classifier. configured is the presence check
// reported to the health monitor.
func NewClassifier(client anthropic.Client, model string, maxTokens int64, configured bool) *AnthropicClassifier {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &AnthropicClassifier{client: client, model: model, maxTokens: maxTokens, configured: configured}
}

// Configured reports whether an API key was supplied.
func (c *AnthropicClassifier) Configured() bool { return c.client != nil && c.configured }

type classifyResponse struct {
	IsOpportunity  *bool    `json:"is_opportunity"`
	Channel        string   `json:"channel"`
	Priority       string   `json:"priority"`
	Confidence     *float64 `json:"confidence"`
	Tags           []string `json:"tags"`
	Location       string   `json:"location"`
	PotentialValue string   `json:"potential_value"`
}

// Classify sends the item to the model and validates the structured reply.
func (c *AnthropicClassifier) Classify(ctx context.Context, item model.RawItem, channelHint string) (model.Classification, error) {
	if channelHint == "" {
		channelHint = string(model.DefaultChannel)
	}
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      classifySystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: fmt.Sprintf(classifyUserPrompt, channelHint, item.Title, truncate(item.Body, 2000))}},
		Temperature: &temp,
	})
	if err != nil {
		return model.Classification{}, callError(err, "classify")
	}
	resp.Usage.Log(c.model, "classify")

	return parseClassification(resp.Text(), channelHint)
}

func parseClassification(text, channelHint string) (model.Classification, error) {
	var raw classifyResponse
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return model.Classification{}, eris.Wrapf(model.ErrClassification, "unparseable response: %v", err)
	}
	if raw.IsOpportunity == nil || raw.Confidence == nil {
		return model.Classification{}, eris.Wrap(model.ErrClassification, "response missing is_opportunity or confidence")
	}

	priority := model.Priority(strings.ToLower(strings.TrimSpace(raw.Priority)))
	if !priority.Valid() {
		return model.Classification{}, eris.Wrapf(model.ErrClassification, "invalid priority %q", raw.Priority)
	}

	channel := model.Channel(strings.ToLower(strings.TrimSpace(raw.Channel)))
	if channel == "" {
		channel = model.Channel(channelHint)
	}

	return model.Classification{
		IsOpportunity:  *raw.IsOpportunity,
		Channel:        channel,
		Priority:       priority,
		Confidence:     percent(*raw.Confidence),
		Tags:           normalizeList(raw.Tags),
		Location:       strings.TrimSpace(raw.Location),
		PotentialValue: strings.TrimSpace(raw.PotentialValue),
	}, nil
}
