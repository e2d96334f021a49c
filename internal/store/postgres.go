package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/boazzati/AFH-Platform-sub001/internal/db"
	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS signals (
	fingerprint     TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	source_id       TEXT NOT NULL,
	channel         TEXT NOT NULL,
	categories      JSONB NOT NULL DEFAULT '[]',
	tags            JSONB NOT NULL DEFAULT '[]',
	location        TEXT NOT NULL DEFAULT '',
	sub_scores      JSONB NOT NULL,
	composite_score DOUBLE PRECISION NOT NULL,
	priority        TEXT NOT NULL,
	collection_mode TEXT NOT NULL,
	enrichment      JSONB,
	published_at    TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	revision        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS metrics (
	key        TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	type       TEXT NOT NULL,
	severity   TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS collection_runs (
	id         TEXT PRIMARY KEY,
	cadence    TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	data       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS health_status (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	checked_at TIMESTAMPTZ NOT NULL,
	healthy    BOOLEAN NOT NULL,
	checks     JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at);
CREATE INDEX IF NOT EXISTS idx_signals_channel ON signals(channel);
CREATE INDEX IF NOT EXISTS idx_alerts_type_created ON alerts(type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_cadence ON collection_runs(cadence, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_health_checked_at ON health_status(checked_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func pgTime(t time.Time) any { return t }

func scanPostgresSignal(row pgx.Row) (*model.Signal, error) {
	var (
		sig               model.Signal
		channel, priority string
		j                 signalJSON
	)
	if err := row.Scan(
		&sig.Fingerprint, &sig.Title, &sig.Description, &sig.URL, &sig.SourceID, &channel,
		&j.categories, &j.tags, &sig.Location, &j.subScores, &sig.CompositeScore, &priority,
		&sig.CollectionMode, &j.enrichment, &sig.PublishedAt, &sig.CreatedAt, &sig.UpdatedAt, &sig.Revision,
	); err != nil {
		return nil, err
	}
	sig.Channel = model.Channel(channel)
	sig.Priority = model.Priority(priority)
	if err := decodeSignal(&sig, j); err != nil {
		return nil, err
	}
	return &sig, nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fingerprint string) (*model.Signal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE fingerprint = $1`, fingerprint)
	sig, err := scanPostgresSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find signal %s", fingerprint)
	}
	return sig, nil
}

const postgresUpsertSignal = `
INSERT INTO signals (` + signalColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1)
ON CONFLICT (fingerprint) DO UPDATE SET
	title           = EXCLUDED.title,
	description     = EXCLUDED.description,
	url             = CASE WHEN EXCLUDED.url = '' THEN signals.url ELSE EXCLUDED.url END,
	source_id       = EXCLUDED.source_id,
	channel         = EXCLUDED.channel,
	categories      = EXCLUDED.categories,
	tags            = EXCLUDED.tags,
	location        = CASE WHEN EXCLUDED.location = '' THEN signals.location ELSE EXCLUDED.location END,
	sub_scores      = EXCLUDED.sub_scores,
	composite_score = EXCLUDED.composite_score,
	priority        = EXCLUDED.priority,
	enrichment      = EXCLUDED.enrichment,
	published_at    = EXCLUDED.published_at,
	updated_at      = EXCLUDED.updated_at,
	revision        = signals.revision + 1
RETURNING revision`

func (s *PostgresStore) Upsert(ctx context.Context, sig model.Signal) (bool, error) {
	j, err := encodeSignal(sig)
	if err != nil {
		return false, eris.Wrap(err, "postgres: upsert signal")
	}
	now := time.Now().UTC()
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = now
	}

	var revision int
	err = s.pool.QueryRow(ctx, postgresUpsertSignal,
		sig.Fingerprint, sig.Title, sig.Description, sig.URL, sig.SourceID, string(sig.Channel),
		j.categories, j.tags, sig.Location, j.subScores, sig.CompositeScore,
		string(sig.Priority), sig.CollectionMode, j.enrichment,
		sig.PublishedAt, sig.CreatedAt, sig.UpdatedAt,
	).Scan(&revision)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert signal %s", sig.Fingerprint)
	}
	return revision == 1, nil
}

func (s *PostgresStore) QueryByTimeRange(ctx context.Context, from, to time.Time) ([]model.Signal, error) {
	return s.querySignals(ctx, SignalFilter{From: from, To: to})
}

func (s *PostgresStore) ListSignals(ctx context.Context, filter SignalFilter) ([]model.Signal, error) {
	filter.Limit = int(limitOr(filter.Limit))
	return s.querySignals(ctx, filter)
}

func (s *PostgresStore) querySignals(ctx context.Context, filter SignalFilter) ([]model.Signal, error) {
	query, args, err := signalsQuery(sq.Dollar, pgTime, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build signals query")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list signals")
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		sig, err := scanPostgresSignal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan signal")
		}
		out = append(out, *sig)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate signals")
}

func (s *PostgresStore) LatestSignalCreatedAt(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM signals`).Scan(&latest); err != nil {
		return nil, eris.Wrap(err, "postgres: latest signal")
	}
	return latest, nil
}

func (s *PostgresStore) GetMetrics(ctx context.Context) (*model.MetricsSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM metrics WHERE key = $1`, model.MetricsKey).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.MetricsSnapshot{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get metrics")
	}
	var m model.MetricsSnapshot
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal metrics")
	}
	return &m, nil
}

func (s *PostgresStore) SetMetrics(ctx context.Context, m model.MetricsSnapshot) error {
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metrics")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO metrics (key, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		model.MetricsKey, data,
	)
	return eris.Wrap(err, "postgres: set metrics")
}

func (s *PostgresStore) AppendAlert(ctx context.Context, a model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	details, err := json.Marshal(a.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal alert details")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, string(a.Type), a.Severity, a.Message, details, a.Timestamp,
	)
	return eris.Wrap(err, "postgres: append alert")
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query, args, err := alertsQuery(sq.Dollar, pgTime, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build alerts query")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var (
			a       model.Alert
			typ     string
			details []byte
		)
		if err := rows.Scan(&a.ID, &typ, &a.Severity, &a.Message, &details, &a.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.Type = model.AlertType(typ)
		if err := unmarshalOptional(details, &a.Details); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal alert details")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate alerts")
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.CollectionRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO collection_runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, data = EXCLUDED.data`,
		run.ID, run.Cadence, string(run.Status), run.StartedAt, data,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.CollectionRun, error) {
	filter.Limit = int(limitOr(filter.Limit))
	query, args, err := runsQuery(sq.Dollar, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build runs query")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.CollectionRun
	for rows.Next() {
		var (
			id, cadence, status string
			startedAt           time.Time
			data                []byte
		)
		if err := rows.Scan(&id, &cadence, &status, &startedAt, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var run model.CollectionRun
		if err := json.Unmarshal(data, &run); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal run %s", id)
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) SaveHealthStatus(ctx context.Context, hs model.HealthStatus) error {
	if hs.ID == "" {
		hs.ID = uuid.New().String()
	}
	checks, err := json.Marshal(hs.Checks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal health checks")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO health_status (`+healthColumns+`) VALUES ($1, $2, $3, $4)`,
		hs.ID, hs.CheckedAt, hs.Healthy, checks,
	)
	return eris.Wrap(err, "postgres: save health status")
}

func (s *PostgresStore) LatestHealthStatus(ctx context.Context) (*model.HealthStatus, error) {
	var (
		hs     model.HealthStatus
		checks []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT `+healthColumns+` FROM health_status ORDER BY checked_at DESC LIMIT 1`,
	).Scan(&hs.ID, &hs.CheckedAt, &hs.Healthy, &checks)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest health status")
	}
	if err := json.Unmarshal(checks, &hs.Checks); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal health checks")
	}
	return &hs, nil
}
