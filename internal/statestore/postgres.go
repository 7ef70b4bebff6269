package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Schema creates the widget state table. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS widget_states (
    subject    TEXT        NOT NULL,
    widget_id  TEXT        NOT NULL,
    state      JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (subject, widget_id)
);
`

// DB is the subset of [pgxpool.Pool] the store uses, split out so tests can
// substitute a recorder.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a [Store] backed by PostgreSQL. All methods are safe for
// concurrent use; the primary-key upsert makes concurrent writes to one key
// last-write-wins at the database.
type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database at dsn, registers pgvector types
// on every connection so the pool can be shared with the semantic product
// index, and runs [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("statestore: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("statestore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("statestore: ping: %w", err)
	}

	s := &PostgresStore{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithDB wraps an existing DB without connecting or
// migrating. Used by tests.
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Pool exposes the underlying pool for components that share the database,
// such as the semantic product index. Nil when built via
// [NewPostgresStoreWithDB].
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

// Ping reports whether the database is reachable. Used by readiness probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Migrate ensures the widget state table exists.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("statestore: migrate: %w", err)
	}
	return nil
}

// Write implements [Store] as a full-document upsert.
func (s *PostgresStore) Write(ctx context.Context, key Key, state json.RawMessage) error {
	const q = `
		INSERT INTO widget_states (subject, widget_id, state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (subject, widget_id) DO UPDATE SET
		    state      = EXCLUDED.state,
		    updated_at = EXCLUDED.updated_at`
	if _, err := s.db.Exec(ctx, q, key.Subject, key.WidgetID, state); err != nil {
		return fmt.Errorf("statestore: write %s/%s: %w", key.Subject, key.WidgetID, err)
	}
	return nil
}

// Read implements [Store].
func (s *PostgresStore) Read(ctx context.Context, key Key) (json.RawMessage, error) {
	const q = `SELECT state FROM widget_states WHERE subject = $1 AND widget_id = $2`
	var state json.RawMessage
	err := s.db.QueryRow(ctx, q, key.Subject, key.WidgetID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: read %s/%s: %w", key.Subject, key.WidgetID, err)
	}
	return state, nil
}

// Delete implements [Store]. Deleting an absent key is not an error.
func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	const q = `DELETE FROM widget_states WHERE subject = $1 AND widget_id = $2`
	if _, err := s.db.Exec(ctx, q, key.Subject, key.WidgetID); err != nil {
		return fmt.Errorf("statestore: delete %s/%s: %w", key.Subject, key.WidgetID, err)
	}
	return nil
}

// Close releases the connection pool, if this store owns one.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
