package source

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/resilience"
	"github.com/boazzati/AFH-Platform-sub001/pkg/jina"
)

// JinaSearch turns web search results into raw items.
type JinaSearch struct {
	client     jina.Client
	configured bool
	nowFunc    func() time.Time
}

// NewJinaSearch wraps a Jina client. configured is the presence check
// surfaced to the health monitor.
func NewJinaSearch(client jina.Client, configured bool) *JinaSearch {
	return &JinaSearch{client: client, configured: configured, nowFunc: time.Now}
}

// Configured reports whether an API key was supplied.
func (j *JinaSearch) Configured() bool { return j.client != nil && j.configured }

// Fetch runs the source query and maps each hit to a RawItem.
func (j *JinaSearch) Fetch(ctx context.Context, cfg config.SourceConfig) ([]model.RawItem, error) {
	if strings.TrimSpace(cfg.Query) == "" {
		return nil, eris.Errorf("jina source %s: empty query", cfg.ID)
	}

	var opts []jina.SearchOption
	if cfg.Site != "" {
		opts = append(opts, jina.WithSiteFilter(cfg.Site))
	}

	resp, err := j.client.Search(ctx, cfg.Query, opts...)
	if err != nil {
		var se *jina.StatusError
		if errors.As(err, &se) {
			return nil, resilience.ClassifyStatus(eris.Wrapf(err, "jina source %s", cfg.ID), se.StatusCode)
		}
		return nil, eris.Wrapf(err, "jina source %s", cfg.ID)
	}

	now := j.nowFunc().UTC()
	items := make([]model.RawItem, 0, len(resp.Data))
	for _, r := range resp.Data {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			continue
		}
		body := strings.TrimSpace(r.Content)
		if body == "" {
			body = strings.TrimSpace(r.Description)
		}
		published := parseTime(r.PublishedTime, "")
		if published.IsZero() {
			published = now
		}
		items = append(items, model.RawItem{
			Title:       title,
			Body:        body,
			URL:         r.URL,
			PublishedAt: published,
			SourceID:    cfg.ID,
		})
	}
	return capItems(items, cfg.MaxItems), nil
}
