// Package postgres mirrors extracted records into a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/hash/sha256"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the mirror.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordMirror upserts records keyed by URL, so repeated runs converge on one
// row per listing. Rows whose content hash is unchanged are left untouched.
type RecordMirror struct {
	pool   execCloser
	table  string
	hasher *sha256.Hasher
	logger *zap.Logger
}

// NewRecordMirror connects to Postgres using cfg.
func NewRecordMirror(ctx context.Context, cfg Config, logger *zap.Logger) (*RecordMirror, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	m, err := NewRecordMirrorWithPool(pool, cfg.Table, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return m, nil
}

// NewRecordMirrorWithPool constructs a mirror from an existing pool (primarily for testing).
func NewRecordMirrorWithPool(pool execCloser, table string, logger *zap.Logger) (*RecordMirror, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "listings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordMirror{pool: pool, table: table, hasher: sha256.New(), logger: logger}, nil
}

// Close releases the underlying pool resources.
func (m *RecordMirror) Close() {
	if m == nil || m.pool == nil {
		return
	}
	m.pool.Close()
}

// EnsureTable creates the mirror table when it does not exist.
func (m *RecordMirror) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url          text PRIMARY KEY,
	listing_id   text NOT NULL,
	run_id       text NOT NULL,
	content_hash text NOT NULL,
	data         jsonb NOT NULL,
	updated_at   timestamptz NOT NULL DEFAULT now()
)`, m.table)
	if _, err := m.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", m.table, err)
	}
	return nil
}

// Mirror upserts every record and returns how many rows were inserted or
// changed. It stops at the first failure.
func (m *RecordMirror) Mirror(ctx context.Context, runID string, records []crawler.Record) (int, error) {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (url, listing_id, run_id, content_hash, data, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (url) DO UPDATE
SET listing_id = EXCLUDED.listing_id,
	run_id = EXCLUDED.run_id,
	content_hash = EXCLUDED.content_hash,
	data = EXCLUDED.data,
	updated_at = EXCLUDED.updated_at
WHERE %[1]s.content_hash IS DISTINCT FROM EXCLUDED.content_hash`, m.table)

	written := 0
	for _, rec := range records {
		if rec.URL() == "" {
			continue
		}
		data, digest, err := m.hasher.Fingerprint(rec)
		if err != nil {
			return written, err
		}
		tag, err := m.pool.Exec(ctx, query, rec.URL(), rec.ID(), runID, digest, data)
		if err != nil {
			return written, fmt.Errorf("upsert record %s: %w", rec.URL(), err)
		}
		written += int(tag.RowsAffected())
	}
	m.logger.Info("mirrored records to postgres", zap.String("table", m.table), zap.Int("rows", written))
	return written, nil
}
