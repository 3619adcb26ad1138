package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/platonv/delayq/internal/dal/migrations"
)

// Client represents a SQLite client.
type Client struct {
	db *sqlx.DB
}

// DB returns the underlying database handle.
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Placeholder returns the bind variable format understood by SQLite.
func (c *Client) Placeholder() sq.PlaceholderFormat {
	return sq.Question
}

// IsUniqueViolation reports whether err was caused by a unique or primary key constraint.
func (c *Client) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// Ping checks that the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database.
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClient opens the database at dsn and applies pending migrations.
// SQLite allows a single writer, so the pool is limited to one connection.
func NewClient(dsn string) (*Client, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := migrations.Up(db.DB, migrations.DialectSQLite); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Client{db: db}, nil
}

// MustNewClient creates a new SQLite client for the database file at path.
func MustNewClient(path string) *Client {
	client, err := NewClient(FileDSN(path))
	if err != nil {
		panic(err)
	}

	return client
}

// FileDSN returns a dsn for a database file.
func FileDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
}

// MemoryDSN returns a dsn for a named in-memory database.
// Connections opened with the same name share the database.
func MemoryDSN(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)

	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
}
