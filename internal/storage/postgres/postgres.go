// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spiderctl/spiderctl/internal/spider"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// db is the pool surface the stores use. Satisfied by *pgxpool.Pool and
// by pgxmock pools in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Connect opens a connection pool from config and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the control plane tables when they do not exist yet.
func Migrate(ctx context.Context, pool db) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL UNIQUE,
			category        TEXT NOT NULL,
			content         JSONB NOT NULL,
			schedule        JSONB NOT NULL DEFAULT '{}'::jsonb,
			crawler_count   INT NOT NULL,
			enabled         BOOLEAN NOT NULL DEFAULT TRUE,
			create_time     TIMESTAMPTZ NOT NULL,
			last_start_time TIMESTAMPTZ,
			last_done_time  TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS services (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL UNIQUE,
			spec            JSONB NOT NULL,
			params          JSONB NOT NULL DEFAULT '[]'::jsonb,
			crawler_count   INT NOT NULL,
			enabled         BOOLEAN NOT NULL DEFAULT TRUE,
			create_time     TIMESTAMPTZ NOT NULL,
			last_start_time TIMESTAMPTZ,
			last_done_time  TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL,
			category      TEXT NOT NULL,
			job_id        TEXT NOT NULL DEFAULT '',
			service_id    TEXT NOT NULL DEFAULT '',
			spec          JSONB NOT NULL,
			crawler_count INT NOT NULL,
			invoke_time   TIMESTAMPTZ NOT NULL,
			end_time      TIMESTAMPTZ,
			status        TEXT NOT NULL,
			result        TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS run_logs_invoke_time_idx ON run_logs (invoke_time DESC)`,
		`CREATE INDEX IF NOT EXISTS run_logs_job_id_idx ON run_logs (job_id)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// insertErr maps unique violations onto the shared duplicate sentinel.
func insertErr(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("insert %s: %w", what, spider.ErrAlreadyExists)
	}
	return fmt.Errorf("insert %s: %w", what, err)
}

// setClause accumulates a dynamic UPDATE ... SET fragment with numbered
// placeholders.
type setClause struct {
	cols []string
	args []any
}

func (c *setClause) add(col string, val any) {
	c.args = append(c.args, val)
	c.cols = append(c.cols, fmt.Sprintf("%s = $%d", col, len(c.args)))
}

func (c *setClause) empty() bool { return len(c.cols) == 0 }

// whereClause accumulates dynamic AND conditions with numbered
// placeholders.
type whereClause struct {
	conds []string
	args  []any
}

// add appends one condition; format must contain a single $%d placeholder.
func (c *whereClause) add(format string, val any) {
	c.args = append(c.args, val)
	c.conds = append(c.conds, fmt.Sprintf(format, len(c.args)))
}

func (c *whereClause) sql() string {
	if len(c.conds) == 0 {
		return ""
	}
	out := " WHERE " + c.conds[0]
	for _, cond := range c.conds[1:] {
		out += " AND " + cond
	}
	return out
}
