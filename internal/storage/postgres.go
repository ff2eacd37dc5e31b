package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresTimeout bounds each statement issued by PostgresBackend.
const postgresTimeout = 30 * time.Second

// PostgresBackend implements Backend on a single PostgreSQL table:
//
//	monterrey_kv(key TEXT PRIMARY KEY, value TEXT NOT NULL)
//
// Every statement auto-commits, so Set is durable on return and Flush is a
// no-op. Commit applies its writes inside one transaction.
type PostgresBackend struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres connects to the database described by dsn.
func NewPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresBackend{pool: pool, table: "monterrey_kv"}, nil
}

func (p *PostgresBackend) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), postgresTimeout)
}

// Initialize creates the key-value table if it does not exist.
func (p *PostgresBackend) Initialize() error {
	ctx, cancel := p.ctx()
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+p.table+` (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create %s: %w", p.table, err)
	}
	return nil
}

// Get retrieves a value by key.
func (p *PostgresBackend) Get(key string) (string, bool, error) {
	ctx, cancel := p.ctx()
	defer cancel()

	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM `+p.table+` WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres get: %w", err)
	}
	return value, true, nil
}

// Set upserts a key-value pair.
func (p *PostgresBackend) Set(key, value string) error {
	ctx, cancel := p.ctx()
	defer cancel()

	if _, err := p.pool.Exec(ctx, p.upsertSQL(), key, value); err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

// Keys returns all keys.
func (p *PostgresBackend) Keys() ([]string, error) {
	ctx, cancel := p.ctx()
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT key FROM `+p.table)
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	return keys, nil
}

// Commit upserts all pairs in one transaction.
func (p *PostgresBackend) Commit(writes map[string]string) error {
	ctx, cancel := p.ctx()
	defer cancel()

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for k, v := range writes {
			batch.Queue(p.upsertSQL(), k, v)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres commit: %w", err)
	}
	return nil
}

// Flush is a no-op; committed statements are already durable.
func (p *PostgresBackend) Flush() error {
	return nil
}

// Close closes the connection pool.
func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresBackend) upsertSQL() string {
	return `INSERT INTO ` + p.table + ` (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
}
