// Package store is the durable coordination substrate: the relational store
// and its atomic RPCs (spec §4.1). It is the system's lock manager — the only
// place fine-grained cross-worker coordination happens.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps a *sql.DB configured per the teacher's cmd/server/main.go
// initDatabase pattern (bounded pool, ping-with-timeout at startup).
type Store struct {
	db *sql.DB
}

// Config configures the underlying connection pool.
type Config struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxLife  time.Duration
}

// Open connects to Postgres and verifies connectivity with a bounded ping,
// mirroring the teacher's initDatabase helper.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	connLife := cfg.ConnMaxLife
	if connLife <= 0 {
		connLife = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connLife)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Healthy runs a no-op round trip, used by the health surface's readiness probe.
func (s *Store) Healthy(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying *sql.DB for packages that need raw access
// (migrations, health checks). Business logic should prefer the typed methods.
func (s *Store) DB() *sql.DB {
	return s.db
}
