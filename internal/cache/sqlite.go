package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite is a Cache backed by a local modernc.org/sqlite database. It also
// keeps a history of screening runs.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// OpenSQLite opens dsn, applies the migration and prunes expired entries.
// A failed prune is logged and does not prevent opening.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	s, err := NewSQLite(dsn)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	n, err := s.DeleteExpired(ctx)
	if err != nil {
		zap.L().Warn("sqlite: prune expired cache entries", zap.Error(err))
	} else if n > 0 {
		zap.L().Debug("sqlite: pruned expired cache entries", zap.Int64("removed", n))
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS screen_cache (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME
);

CREATE TABLE IF NOT EXISTS screen_runs (
	id          TEXT PRIMARY KEY,
	cache_key   TEXT NOT NULL,
	candidates  INTEGER NOT NULL,
	retained    INTEGER NOT NULL,
	cache_hit   INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_screen_cache_expires_at ON screen_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_screen_runs_cache_key ON screen_runs(cache_key);
`

// Migrate creates the cache tables.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get implements Cache. Expired entries are misses.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM screen_cache WHERE key = ?`, key,
	).Scan(&payload, &expiresAt)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: get cache %s", key)
	}
	if expiresAt.Valid && !expiresAt.Time.After(s.now().UTC()) {
		return nil, false, nil
	}
	return payload, true, nil
}

// Put implements Cache. A zero ttl stores the entry without expiry.
func (s *SQLite) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	now := s.now().UTC()
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO screen_cache (key, payload, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, payload, now, expiresAt,
	)
	return eris.Wrapf(err, "sqlite: put cache %s", key)
}

// DeleteExpired removes expired entries and returns how many were removed.
func (s *SQLite) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM screen_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

// RunRecord is one row of screening history.
type RunRecord struct {
	ID         string    `json:"id"`
	CacheKey   string    `json:"cache_key"`
	Candidates int       `json:"candidates"`
	Retained   int       `json:"retained"`
	CacheHit   bool      `json:"cache_hit"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordRun stores a run in the history table, assigning an ID if empty.
func (s *SQLite) RecordRun(ctx context.Context, r *RunRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO screen_runs (id, cache_key, candidates, retained, cache_hit, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.CacheKey, r.Candidates, r.Retained, r.CacheHit, r.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

// ListRuns returns the most recent runs first.
func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cache_key, candidates, retained, cache_hit, created_at FROM screen_runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.CacheKey, &r.Candidates, &r.Retained, &r.CacheHit, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}
