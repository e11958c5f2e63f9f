// Package db opens the Postgres connections used to read the coverage table.
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the coverage readers need. pgxmock pools satisfy it.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Opener acquires a pool. Callers own the returned pool and must Close it.
type Opener func(ctx context.Context) (Pool, error)

// NewOpener returns an Opener that connects to dsn and pings before handing the pool out.
func NewOpener(dsn string) Opener {
	return func(ctx context.Context) (Pool, error) {
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, eris.Wrap(err, "db: parse dsn")
		}
		poolCfg.MaxConns = 2

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, eris.Wrap(err, "db: create connection pool")
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "db: ping database")
		}
		return pool, nil
	}
}

// QuoteTable quotes a possibly schema-qualified table name such as
// "reseau.techno_internet_com_2024_clean".
func QuoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}
