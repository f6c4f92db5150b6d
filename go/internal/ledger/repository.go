package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS demo_sessions (
	session_id  TEXT        NOT NULL,
	role        TEXT        NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ,
	end_reason  TEXT,
	PRIMARY KEY (session_id, started_at)
)`

const insertStarted = `
INSERT INTO demo_sessions (session_id, role, started_at)
VALUES ($1, $2, $3)
ON CONFLICT (session_id, started_at) DO NOTHING`

const updateEnded = `
UPDATE demo_sessions
SET ended_at = $2, end_reason = $3
WHERE session_id = $1 AND ended_at IS NULL`

// Querier defines what the repository needs from the database layer
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository records demo session lifecycles in Postgres
type Repository struct {
	queries Querier
}

// NewRepository creates a new ledger repository
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

// Connect opens a pgx pool and verifies it
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the demo_sessions table if it is missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.queries.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return nil
}

// RecordStarted inserts a row for a new countdown
func (r *Repository) RecordStarted(ctx context.Context, sessionID, role string, startedAt time.Time) error {
	if _, err := r.queries.Exec(ctx, insertStarted, sessionID, role, startedAt); err != nil {
		return fmt.Errorf("failed to record demo start: %w", err)
	}
	return nil
}

// RecordEnded closes the open row for a session
func (r *Repository) RecordEnded(ctx context.Context, sessionID, reason string, endedAt time.Time) error {
	tag, err := r.queries.Exec(ctx, updateEnded, sessionID, endedAt, reason)
	if err != nil {
		return fmt.Errorf("failed to record demo end: %w", err)
	}
	if tag.RowsAffected() == 0 {
		log.Warn().Str("session_id", sessionID).Msg("no open demo session row to close")
	}
	return nil
}
