// Package postgres persists result tables to Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/urlscraper/internal/scrape"
)

const defaultTable = "scrape_results"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// TextHasher fingerprints row text.
type TextHasher interface {
	HashText(text string) string
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// ResultStore writes one Postgres row per table row:
//
//	run_id, row_index, url, date, status, html, html_sha256
type ResultStore struct {
	pool   txPool
	table  string
	hasher TextHasher
}

// NewResultStore connects a pool using cfg.
func NewResultStore(ctx context.Context, cfg Config, hasher TextHasher) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
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
	if err := checkTable(tableOrDefault(cfg.Table)); err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewResultStoreWithPool(pool, cfg.Table, hasher)
}

// NewResultStoreWithPool builds a store from an existing pool.
func NewResultStoreWithPool(pool txPool, table string, hasher TextHasher) (*ResultStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	table = tableOrDefault(table)
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &ResultStore{pool: pool, table: table, hasher: hasher}, nil
}

func tableOrDefault(table string) string {
	if table == "" {
		return defaultTable
	}
	return table
}

func checkTable(table string) error {
	if !validTableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *ResultStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreResults inserts every row of table in one transaction. Rows already
// stored for (run_id, row_index) are replaced.
func (s *ResultStore) StoreResults(ctx context.Context, runID string, table *scrape.Table) error {
	if s == nil || s.pool == nil {
		return errors.New("result store is not configured")
	}
	if runID == "" {
		return errors.New("run id is required")
	}
	if table.Len() == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := s.insertQuery()
	for i, row := range table.Rows {
		var digest *string
		if s.hasher != nil {
			if d := s.hasher.HashText(row.HTML); d != "" {
				digest = &d
			}
		}
		if _, err := tx.Exec(ctx, query, runID, i, row.URL, table.Date, row.Status, row.HTML, digest); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}

func (s *ResultStore) insertQuery() string {
	return fmt.Sprintf(`
INSERT INTO %s (run_id, row_index, url, date, status, html, html_sha256)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (run_id, row_index) DO UPDATE SET
	url = EXCLUDED.url,
	date = EXCLUDED.date,
	status = EXCLUDED.status,
	html = EXCLUDED.html,
	html_sha256 = EXCLUDED.html_sha256`, s.table)
}
