// Package db provides PostgreSQL access for records, consortium topology, job state and
// error logs.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool         *pgxpool.Pool
	fetchTimeout time.Duration
}

// Option configures a DB
type Option func(*DB)

// WithFetchTimeout bounds every record and directory read. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(db *DB) {
		db.fetchTimeout = d
	}
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{pool: pool}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate applies the embedded schema
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// fetchContext applies the configured fetch timeout
func (db *DB) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.fetchTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.fetchTimeout)
}
