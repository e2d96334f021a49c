package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/boazzati/AFH-Platform-sub001/internal/model"
)

// sqliteTimeLayout is fixed-width so TEXT comparison orders chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func sqliteTime(t time.Time) any {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the connection pragmas to path unless the caller
// already supplied its own.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// NewSQLite opens a SQLite database at the given path in WAL mode. The pool
// holds one connection, so overlapping runs queue on it instead of failing
// with SQLITE_BUSY.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: open")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS signals (
	fingerprint     TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	source_id       TEXT NOT NULL,
	channel         TEXT NOT NULL,
	categories      TEXT NOT NULL DEFAULT '[]',
	tags            TEXT NOT NULL DEFAULT '[]',
	location        TEXT NOT NULL DEFAULT '',
	sub_scores      TEXT NOT NULL,
	composite_score REAL NOT NULL,
	priority        TEXT NOT NULL,
	collection_mode TEXT NOT NULL,
	enrichment      TEXT,
	published_at    TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	revision        INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS metrics (
	key        TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	severity   TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS collection_runs (
	id         TEXT PRIMARY KEY,
	cadence    TEXT NOT NULL,
	status     TEXT NOT NULL,
	started_at TEXT NOT NULL,
	data       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS health_status (
	id         TEXT PRIMARY KEY,
	checked_at TEXT NOT NULL,
	healthy    INTEGER NOT NULL,
	checks     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals(created_at);
CREATE INDEX IF NOT EXISTS idx_signals_channel ON signals(channel);
CREATE INDEX IF NOT EXISTS idx_alerts_type_created ON alerts(type, created_at);
CREATE INDEX IF NOT EXISTS idx_runs_cadence ON collection_runs(cadence, started_at);
CREATE INDEX IF NOT EXISTS idx_health_checked_at ON health_status(checked_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSignal(row rowScanner) (*model.Signal, error) {
	var (
		sig                               model.Signal
		channel, priority                 string
		categories, tags, subScores       string
		enrichment                        sql.NullString
		publishedAt, createdAt, updatedAt string
	)
	if err := row.Scan(
		&sig.Fingerprint, &sig.Title, &sig.Description, &sig.URL, &sig.SourceID, &channel,
		&categories, &tags, &sig.Location, &subScores, &sig.CompositeScore, &priority,
		&sig.CollectionMode, &enrichment, &publishedAt, &createdAt, &updatedAt, &sig.Revision,
	); err != nil {
		return nil, err
	}
	sig.Channel = model.Channel(channel)
	sig.Priority = model.Priority(priority)

	if err := decodeSignal(&sig, signalJSON{
		categories: []byte(categories),
		tags:       []byte(tags),
		subScores:  []byte(subScores),
		enrichment: []byte(enrichment.String),
	}); err != nil {
		return nil, err
	}

	var err error
	if sig.PublishedAt, err = parseSQLiteTime(publishedAt); err != nil {
		return nil, eris.Wrap(err, "parse published_at")
	}
	if sig.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, eris.Wrap(err, "parse created_at")
	}
	if sig.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, eris.Wrap(err, "parse updated_at")
	}
	return &sig, nil
}

func (s *SQLiteStore) FindByFingerprint(ctx context.Context, fingerprint string) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE fingerprint = ?`, fingerprint)
	sig, err := scanSQLiteSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find signal %s", fingerprint)
	}
	return sig, nil
}

const sqliteUpsertSignal = `
INSERT INTO signals (` + signalColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT(fingerprint) DO UPDATE SET
	title           = excluded.title,
	description     = excluded.description,
	url             = CASE WHEN excluded.url = '' THEN signals.url ELSE excluded.url END,
	source_id       = excluded.source_id,
	channel         = excluded.channel,
	categories      = excluded.categories,
	tags            = excluded.tags,
	location        = CASE WHEN excluded.location = '' THEN signals.location ELSE excluded.location END,
	sub_scores      = excluded.sub_scores,
	composite_score = excluded.composite_score,
	priority        = excluded.priority,
	enrichment      = excluded.enrichment,
	published_at    = excluded.published_at,
	updated_at      = excluded.updated_at,
	revision        = signals.revision + 1
RETURNING revision`

func (s *SQLiteStore) Upsert(ctx context.Context, sig model.Signal) (bool, error) {
	j, err := encodeSignal(sig)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: upsert signal")
	}
	now := time.Now().UTC()
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = now
	}

	var revision int
	err = s.db.QueryRowContext(ctx, sqliteUpsertSignal,
		sig.Fingerprint, sig.Title, sig.Description, sig.URL, sig.SourceID, string(sig.Channel),
		string(j.categories), string(j.tags), sig.Location, string(j.subScores), sig.CompositeScore,
		string(sig.Priority), sig.CollectionMode, string(j.enrichment),
		sqliteTime(sig.PublishedAt), sqliteTime(sig.CreatedAt), sqliteTime(sig.UpdatedAt),
	).Scan(&revision)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert signal %s", sig.Fingerprint)
	}
	return revision == 1, nil
}

func (s *SQLiteStore) QueryByTimeRange(ctx context.Context, from, to time.Time) ([]model.Signal, error) {
	return s.querySignals(ctx, SignalFilter{From: from, To: to})
}

func (s *SQLiteStore) ListSignals(ctx context.Context, filter SignalFilter) ([]model.Signal, error) {
	filter.Limit = int(limitOr(filter.Limit))
	return s.querySignals(ctx, filter)
}

func (s *SQLiteStore) querySignals(ctx context.Context, filter SignalFilter) ([]model.Signal, error) {
	query, args, err := signalsQuery(sq.Question, sqliteTime, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build signals query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list signals")
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		sig, err := scanSQLiteSignal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan signal")
		}
		out = append(out, *sig)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate signals")
}

func (s *SQLiteStore) LatestSignalCreatedAt(ctx context.Context) (*time.Time, error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM signals`).Scan(&latest); err != nil {
		return nil, eris.Wrap(err, "sqlite: latest signal")
	}
	if !latest.Valid {
		return nil, nil
	}
	t, err := parseSQLiteTime(latest.String)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse latest signal")
	}
	return &t, nil
}

func (s *SQLiteStore) GetMetrics(ctx context.Context) (*model.MetricsSnapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM metrics WHERE key = ?`, model.MetricsKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.MetricsSnapshot{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get metrics")
	}
	var m model.MetricsSnapshot
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
	}
	return &m, nil
}

func (s *SQLiteStore) SetMetrics(ctx context.Context, m model.MetricsSnapshot) error {
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO metrics (key, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		model.MetricsKey, string(data), sqliteTime(time.Now()),
	)
	return eris.Wrap(err, "sqlite: set metrics")
}

func (s *SQLiteStore) AppendAlert(ctx context.Context, a model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	details, err := json.Marshal(a.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal alert details")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), a.Severity, a.Message, string(details), sqliteTime(a.Timestamp),
	)
	return eris.Wrap(err, "sqlite: append alert")
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query, args, err := alertsQuery(sq.Question, sqliteTime, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build alerts query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var (
			a         model.Alert
			typ       string
			details   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&a.ID, &typ, &a.Severity, &a.Message, &details, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		a.Type = model.AlertType(typ)
		if err := unmarshalOptional([]byte(details.String), &a.Details); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal alert details")
		}
		if a.Timestamp, err = parseSQLiteTime(createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse alert time")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate alerts")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.CollectionRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collection_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		run.ID, run.Cadence, string(run.Status), sqliteTime(run.StartedAt), string(data),
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.CollectionRun, error) {
	filter.Limit = int(limitOr(filter.Limit))
	query, args, err := runsQuery(sq.Question, filter).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build runs query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.CollectionRun
	for rows.Next() {
		var id, cadence, status, startedAt, data string
		if err := rows.Scan(&id, &cadence, &status, &startedAt, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var run model.CollectionRun
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal run %s", id)
		}
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) SaveHealthStatus(ctx context.Context, hs model.HealthStatus) error {
	if hs.ID == "" {
		hs.ID = uuid.New().String()
	}
	checks, err := json.Marshal(hs.Checks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal health checks")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO health_status (`+healthColumns+`) VALUES (?, ?, ?, ?)`,
		hs.ID, sqliteTime(hs.CheckedAt), hs.Healthy, string(checks),
	)
	return eris.Wrap(err, "sqlite: save health status")
}

func (s *SQLiteStore) LatestHealthStatus(ctx context.Context) (*model.HealthStatus, error) {
	var (
		hs                model.HealthStatus
		checkedAt, checks string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT `+healthColumns+` FROM health_status ORDER BY checked_at DESC LIMIT 1`,
	).Scan(&hs.ID, &checkedAt, &hs.Healthy, &checks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest health status")
	}
	if hs.CheckedAt, err = parseSQLiteTime(checkedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse checked_at")
	}
	if err := json.Unmarshal([]byte(checks), &hs.Checks); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal health checks")
	}
	return &hs, nil
}
