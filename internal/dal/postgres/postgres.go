package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/platonv/delayq/internal/dal/migrations"
)

// uniqueViolation is the SQLSTATE of unique_violation.
const uniqueViolation = "23505"

// Client represents a Postgres client.
type Client struct {
	pool *pgxpool.Pool
	db   *sqlx.DB
}

// Pool returns the underlying connection pool.
func (p *Client) Pool() *pgxpool.Pool {
	return p.pool
}

// DB returns the pool wrapped as a database/sql handle.
func (p *Client) DB() *sqlx.DB {
	return p.db
}

// Placeholder returns the bind variable format understood by Postgres.
func (p *Client) Placeholder() sq.PlaceholderFormat {
	return sq.Dollar
}

// IsUniqueViolation reports whether err was caused by a unique constraint.
func (p *Client) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Ping checks that the database is reachable.
func (p *Client) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the database connection for graceful shutdown.
func (p *Client) Close() error {
	if err := p.db.Close(); err != nil {
		return err
	}
	p.pool.Close()

	return nil
}

// NewClient creates a new Postgres client and applies pending migrations.
func NewClient(ctx context.Context, url string, maxConns int32) (*Client, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres url: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	// Run migrations using goose with stdlib adapter
	db := stdlib.OpenDBFromPool(pool)
	if err := migrations.Up(db, migrations.DialectPostgres); err != nil {
		_ = db.Close()
		pool.Close()

		return nil, err
	}

	return &Client{
		pool: pool,
		db:   sqlx.NewDb(db, "pgx"),
	}, nil
}

// MustNewClient creates a new Postgres client.
func MustNewClient(url string, maxConns int32) *Client {
	client, err := NewClient(context.Background(), url, maxConns)
	if err != nil {
		panic(err)
	}

	return client
}
