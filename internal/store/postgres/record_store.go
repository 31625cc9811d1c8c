// Package postgres provides Postgres-backed persistence for generation
// records.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelforge/imagesvc/internal/generation"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for generation
// rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore writes generation rows into Postgres.
type RecordStore struct {
	pool  execCloser
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided
// config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "generations"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &RecordStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewRecordStoreWithPool(pool execCloser, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "generations"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRecord inserts a generation row. Each submission inserts its own row;
// repeated request_ids are independent jobs, not updates.
func (s *RecordStore) CreateRecord(ctx context.Context, rec generation.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if rec.RequestID == "" {
		return fmt.Errorf("request id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	request_id,
	prompt,
	width,
	height,
	status,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6
)`, s.table)

	if _, err := s.pool.Exec(ctx, query,
		rec.RequestID,
		rec.Prompt,
		rec.Width,
		rec.Height,
		string(rec.Status),
		rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert generation record: %w", err)
	}
	return nil
}

// FinishRecord marks the most recent row for request_id with its terminal
// outcome.
func (s *RecordStore) FinishRecord(ctx context.Context, requestID string, status generation.JobStatus, imageURL, blobURL, errText string, finishedAt time.Time) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	image_url = $3,
	blob_url = $4,
	error_text = $5,
	finished_at = $6
WHERE request_id = $1 AND finished_at IS NULL`, s.table)

	if _, err := s.pool.Exec(ctx, query,
		requestID,
		string(status),
		imageURL,
		blobURL,
		errText,
		finishedAt,
	); err != nil {
		return fmt.Errorf("finish generation record: %w", err)
	}
	return nil
}
