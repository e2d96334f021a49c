package store

import (
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// Column lists shared by both backends. Order matches the scan helpers.
const (
	signalColumns = "fingerprint, title, description, url, source_id, channel, categories, tags, location, " +
		"sub_scores, composite_score, priority, collection_mode, enrichment, published_at, created_at, updated_at, revision"
	alertColumns  = "id, type, severity, message, details, created_at"
	runColumns    = "id, cadence, status, started_at, data"
	healthColumns = "id, checked_at, healthy, checks"
)

// timeArg converts a time to the backend's parameter form.
type timeArg func(time.Time) any

func signalsQuery(ph sq.PlaceholderFormat, ts timeArg, f SignalFilter) sq.SelectBuilder {
	q := sq.Select(signalColumns).From("signals").PlaceholderFormat(ph)
	if !f.From.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": ts(f.From)})
	}
	if !f.To.IsZero() {
		q = q.Where(sq.Lt{"created_at": ts(f.To)})
	}
	if f.Channel != "" {
		q = q.Where(sq.Eq{"channel": string(f.Channel)})
	}
	if f.Priority != "" {
		q = q.Where(sq.Eq{"priority": string(f.Priority)})
	}
	q = q.OrderBy("composite_score DESC", "published_at DESC", "fingerprint")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	return q
}

func alertsQuery(ph sq.PlaceholderFormat, ts timeArg, f AlertFilter) sq.SelectBuilder {
	q := sq.Select(alertColumns).From("alerts").PlaceholderFormat(ph)
	if f.Type != "" {
		q = q.Where(sq.Eq{"type": string(f.Type)})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": ts(f.Since)})
	}
	return q.OrderBy("created_at DESC", "id").Limit(limitOr(f.Limit))
}

func runsQuery(ph sq.PlaceholderFormat, f RunFilter) sq.SelectBuilder {
	q := sq.Select(runColumns).From("collection_runs").PlaceholderFormat(ph)
	if f.Cadence != "" {
		q = q.Where(sq.Eq{"cadence": f.Cadence})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	return q.OrderBy("started_at DESC", "id").Limit(limitOr(f.Limit))
}

// signalJSON holds the JSON-encoded columns of a signal.
type signalJSON struct {
	categories, tags, subScores, enrichment []byte
}

func encodeSignal(sig model.Signal) (signalJSON, error) {
	var out signalJSON
	var err error
	if out.categories, err = json.Marshal(nonNil(sig.Categories)); err != nil {
		return out, eris.Wrap(err, "marshal categories")
	}
	if out.tags, err = json.Marshal(nonNil(sig.Tags)); err != nil {
		return out, eris.Wrap(err, "marshal tags")
	}
	if out.subScores, err = json.Marshal(sig.SubScores); err != nil {
		return out, eris.Wrap(err, "marshal sub_scores")
	}
	if sig.Enrichment != nil {
		if out.enrichment, err = json.Marshal(sig.Enrichment); err != nil {
			return out, eris.Wrap(err, "marshal enrichment")
		}
	} else {
		out.enrichment = []byte("null")
	}
	return out, nil
}

func decodeSignal(sig *model.Signal, j signalJSON) error {
	if err := unmarshalOptional(j.categories, &sig.Categories); err != nil {
		return eris.Wrap(err, "unmarshal categories")
	}
	if err := unmarshalOptional(j.tags, &sig.Tags); err != nil {
		return eris.Wrap(err, "unmarshal tags")
	}
	if err := unmarshalOptional(j.subScores, &sig.SubScores); err != nil {
		return eris.Wrap(err, "unmarshal sub_scores")
	}
	if len(j.enrichment) > 0 && string(j.enrichment) != "null" {
		var e model.Enrichment
		if err := json.Unmarshal(j.enrichment, &e); err != nil {
			return eris.Wrap(err, "unmarshal enrichment")
		}
		sig.Enrichment = &e
	}
	return nil
}

func unmarshalOptional(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
