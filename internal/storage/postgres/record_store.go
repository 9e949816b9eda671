// Package postgres provides the Postgres-backed earthquake catalog.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds catalog rows when none is configured.
const DefaultTable = "earthquakes"

// RecordStoreConfig controls the Postgres connection pool used for catalog rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore writes earthquake records into Postgres.
type RecordStore struct {
	pool  txPool
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := resolveTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool txPool, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := resolveTable(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: table}, nil
}

func resolveTable(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the catalog table when it does not exist yet.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	period_key TEXT NOT NULL,
	date_time TEXT NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	depth INTEGER NOT NULL,
	magnitude DOUBLE PRECISION NOT NULL,
	location TEXT NOT NULL,
	UNIQUE (date_time, latitude, longitude, magnitude)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// InsertRecords writes all records of one period in a single transaction.
// Rows already present are skipped; the count of newly inserted rows is returned.
func (s *RecordStore) InsertRecords(ctx context.Context, period quake.Period, records []quake.Record) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("record store is not configured")
	}
	if len(records) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	period_key,
	date_time,
	latitude,
	longitude,
	depth,
	magnitude,
	location
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
) ON CONFLICT DO NOTHING`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var inserted int64
	for _, r := range records {
		tag, err := tx.Exec(ctx, query,
			period.Key(),
			r.Timestamp,
			r.Latitude,
			r.Longitude,
			r.Depth,
			r.Magnitude,
			r.Location,
		)
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return inserted, nil
}
