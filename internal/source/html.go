package source

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
	"github.com/boazzati/AFH-Platform-sub001/internal/resilience"
)

// Selector defaults for listing pages that only set item_selector.
const (
	defaultItemSelector  = "article"
	defaultTitleSelector = "h1, h2, h3"
	defaultBodySelector  = "p"
	defaultLinkSelector  = "a[href]"
	defaultDateSelector  = "time"
)

// HTMLListing scrapes a listing page (news index, tender board) into raw
// items using CSS selectors from the source configuration.
type HTMLListing struct {
	client    *http.Client
	userAgent string
	perHost   rate.Limit
	burst     int
	nowFunc   func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTMLListing returns a listing scraper limited to perHost requests per
// second against any single host.
func NewHTMLListing(client *http.Client, perHost rate.Limit) *HTMLListing {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if perHost <= 0 {
		perHost = 1
	}
	return &HTMLListing{
		client:    client,
		userAgent: "afh-collector/1.0",
		perHost:   perHost,
		burst:     1,
		nowFunc:   time.Now,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Configured always holds; listing pages need no credentials.
func (h *HTMLListing) Configured() bool { return h.client != nil }

func (h *HTMLListing) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(h.perHost, h.burst)
		h.limiters[host] = lim
	}
	return lim
}

// Fetch downloads cfg.URL and extracts one item per matched element.
func (h *HTMLListing) Fetch(ctx context.Context, cfg config.SourceConfig) ([]model.RawItem, error) {
	pageURL, err := url.Parse(cfg.URL)
	if err != nil || pageURL.Host == "" {
		return nil, eris.Errorf("html source %s: invalid url %q", cfg.ID, cfg.URL)
	}

	doc, err := h.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "html source %s", cfg.ID)
	}

	sel := selectorsOf(cfg)
	now := h.nowFunc().UTC()
	var items []model.RawItem
	doc.Find(sel.item).Each(func(_ int, s *goquery.Selection) {
		title := cleanText(s.Find(sel.title).First().Text())
		if title == "" {
			return
		}

		var body []string
		s.Find(sel.body).Each(func(_ int, p *goquery.Selection) {
			if t := cleanText(p.Text()); t != "" {
				body = append(body, t)
			}
		})

		link := ""
		if href, ok := s.Find(sel.link).First().Attr("href"); ok {
			if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
				link = pageURL.ResolveReference(ref).String()
			}
		}

		published := extractDate(s.Find(sel.date).First(), cfg.DateLayout)
		if published.IsZero() {
			published = now
		}

		items = append(items, model.RawItem{
			Title:       title,
			Body:        strings.Join(body, "\n"),
			URL:         link,
			PublishedAt: published,
			SourceID:    cfg.ID,
		})
	})

	return capItems(items, cfg.MaxItems), nil
}

func (h *HTMLListing) fetchDocument(ctx context.Context, pageURL *url.URL) (*goquery.Document, error) {
	if err := h.limiterFor(pageURL.Host).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "request document")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyStatus(eris.Errorf("unexpected status %s", resp.Status), resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "parse document")
	}
	return doc, nil
}

type selectors struct {
	item, title, body, link, date string
}

func selectorsOf(cfg config.SourceConfig) selectors {
	or := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return selectors{
		item:  or(cfg.ItemSelector, defaultItemSelector),
		title: or(cfg.TitleSelector, defaultTitleSelector),
		body:  or(cfg.BodySelector, defaultBodySelector),
		link:  or(cfg.LinkSelector, defaultLinkSelector),
		date:  or(cfg.DateSelector, defaultDateSelector),
	}
}

// extractDate prefers a machine-readable datetime attribute over the element text.
func extractDate(s *goquery.Selection, layout string) time.Time {
	if s.Length() == 0 {
		return time.Time{}
	}
	if dt, ok := s.Attr("datetime"); ok {
		if t := parseTime(strings.TrimSpace(dt), layout); !t.IsZero() {
			return t
		}
	}
	return parseTime(cleanText(s.Text()), layout)
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
