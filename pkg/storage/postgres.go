package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/nunatak-io/icewatch/pkg/archive"
	"github.com/nunatak-io/icewatch/pkg/timeseries"
)

// PostgresStore is a Store implementation backed by a PostgreSQL database,
// for deployments that want the archive queryable with plain SQL. It uses
// the following schema, created on open when missing:
//
//	CREATE TABLE IF NOT EXISTS series_points (
//	  kind  TEXT        NOT NULL,
//	  sub   TEXT        NOT NULL,
//	  ts    TIMESTAMPTZ NOT NULL,
//	  value JSONB       NOT NULL,
//	  PRIMARY KEY (kind, sub, ts)
//	);
//
//	CREATE TABLE IF NOT EXISTS cameras (
//	  name             TEXT   PRIMARY KEY,
//	  description      TEXT   NOT NULL DEFAULT '',
//	  interval_seconds BIGINT NOT NULL DEFAULT 0
//	);
//
//	CREATE TABLE IF NOT EXISTS images (
//	  camera      TEXT        NOT NULL,
//	  captured_at TIMESTAMPTZ NOT NULL,
//	  locator     TEXT        NOT NULL,
//	  PRIMARY KEY (camera, captured_at)
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB. The schema is assumed to
// already exist; use OpenPostgresStore to open a connection and create it.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore opens a connection pool for dsn, verifies connectivity,
// and creates the schema when missing.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn cannot be empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS series_points (
  kind  TEXT        NOT NULL,
  sub   TEXT        NOT NULL,
  ts    TIMESTAMPTZ NOT NULL,
  value JSONB       NOT NULL,
  PRIMARY KEY (kind, sub, ts)
)`,
		`CREATE TABLE IF NOT EXISTS cameras (
  name             TEXT   PRIMARY KEY,
  description      TEXT   NOT NULL DEFAULT '',
  interval_seconds BIGINT NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS images (
  camera      TEXT        NOT NULL,
  captured_at TIMESTAMPTZ NOT NULL,
  locator     TEXT        NOT NULL,
  PRIMARY KEY (camera, captured_at)
)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	return nil
}

// AppendPoint inserts one series point. The live store only appends points
// that passed its monotonic gate, so a primary-key conflict here indicates
// genuine corruption and is surfaced, not swallowed.
func (s *PostgresStore) AppendPoint(ctx context.Context, key timeseries.Key, pt timeseries.Point) error {
	const insertStmt = `
INSERT INTO series_points (kind, sub, ts, value) VALUES ($1,$2,$3,$4)
`
	if key.Kind == "" {
		return errors.New("series kind cannot be empty")
	}

	value, err := json.Marshal(pt.Value)
	if err != nil {
		return fmt.Errorf("postgres store: marshal point value: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, insertStmt, string(key.Kind), key.Sub, pt.Time.UTC(), value); err != nil {
		return fmt.Errorf("postgres store: insert point: %w", err)
	}
	return nil
}

// PutCamera upserts one camera row, keyed by name.
func (s *PostgresStore) PutCamera(ctx context.Context, cam archive.Camera) error {
	const upsertStmt = `
INSERT INTO cameras (name, description, interval_seconds) VALUES ($1,$2,$3)
ON CONFLICT (name) DO UPDATE
SET description = EXCLUDED.description, interval_seconds = EXCLUDED.interval_seconds
`
	if cam.Name == "" {
		return errors.New("camera name cannot be empty")
	}

	if _, err := s.db.ExecContext(ctx, upsertStmt, cam.Name, cam.Description, int64(cam.Interval/time.Second)); err != nil {
		return fmt.Errorf("postgres store: upsert camera: %w", err)
	}
	return nil
}

// PutImage upserts one image row; a retransmission of the same capture
// refreshes the locator.
func (s *PostgresStore) PutImage(ctx context.Context, rec archive.ImageRecord) error {
	const upsertStmt = `
INSERT INTO images (camera, captured_at, locator) VALUES ($1,$2,$3)
ON CONFLICT (camera, captured_at) DO UPDATE SET locator = EXCLUDED.locator
`
	if rec.Camera == "" {
		return errors.New("image camera cannot be empty")
	}
	if rec.CapturedAt.IsZero() {
		return errors.New("image capture time cannot be zero")
	}

	if _, err := s.db.ExecContext(ctx, upsertStmt, rec.Camera, rec.CapturedAt.UTC(), rec.Locator); err != nil {
		return fmt.Errorf("postgres store: upsert image: %w", err)
	}
	return nil
}

// LoadSeries returns every persisted point grouped by series key.
func (s *PostgresStore) LoadSeries(ctx context.Context) (map[timeseries.Key][]timeseries.Point, error) {
	const q = `
SELECT kind, sub, ts, value FROM series_points ORDER BY kind, sub, ts
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query points: %w", err)
	}
	defer rows.Close()

	out := make(map[timeseries.Key][]timeseries.Point)
	for rows.Next() {
		var (
			kind, sub string
			ts        time.Time
			raw       []byte
		)
		if err := rows.Scan(&kind, &sub, &ts, &raw); err != nil {
			return nil, fmt.Errorf("postgres store: scan point: %w", err)
		}
		var value timeseries.Value
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("postgres store: unmarshal point value: %w", err)
		}
		key := timeseries.Key{Kind: timeseries.Kind(kind), Sub: sub}
		out[key] = append(out[key], timeseries.Point{Time: ts.UTC(), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: rows error: %w", err)
	}
	return out, nil
}

// LoadCameras returns every persisted camera, ordered by name.
func (s *PostgresStore) LoadCameras(ctx context.Context) ([]archive.Camera, error) {
	const q = `
SELECT name, description, interval_seconds FROM cameras ORDER BY name
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query cameras: %w", err)
	}
	defer rows.Close()

	var out []archive.Camera
	for rows.Next() {
		var (
			cam     archive.Camera
			seconds int64
		)
		if err := rows.Scan(&cam.Name, &cam.Description, &seconds); err != nil {
			return nil, fmt.Errorf("postgres store: scan camera: %w", err)
		}
		cam.Interval = time.Duration(seconds) * time.Second
		out = append(out, cam)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: rows error: %w", err)
	}
	return out, nil
}

// LoadImages returns every persisted image record, ordered by camera and
// then capture time.
func (s *PostgresStore) LoadImages(ctx context.Context) ([]archive.ImageRecord, error) {
	const q = `
SELECT camera, captured_at, locator FROM images ORDER BY camera, captured_at
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query images: %w", err)
	}
	defer rows.Close()

	var out []archive.ImageRecord
	for rows.Next() {
		var rec archive.ImageRecord
		if err := rows.Scan(&rec.Camera, &rec.CapturedAt, &rec.Locator); err != nil {
			return nil, fmt.Errorf("postgres store: scan image: %w", err)
		}
		rec.CapturedAt = rec.CapturedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: rows error: %w", err)
	}
	return out, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection health.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
