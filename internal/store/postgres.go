package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is the slice of pgxpool.Pool the postgres store uses, so it can be
// mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id       TEXT PRIMARY KEY,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL,
    total        INTEGER NOT NULL,
    sent         INTEGER NOT NULL,
    skipped      INTEGER NOT NULL,
    failed       INTEGER NOT NULL,
    failed_stage TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS greetings (
    run_id       TEXT NOT NULL REFERENCES runs(run_id),
    position     INTEGER NOT NULL,
    day          TEXT NOT NULL,
    profile_ref  TEXT NOT NULL,
    display_name TEXT NOT NULL,
    status       TEXT NOT NULL,
    reason       TEXT NOT NULL DEFAULT '',
    kind         TEXT NOT NULL DEFAULT '',
    detail       TEXT NOT NULL DEFAULT '',
    message      TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS greetings_by_profile_day ON greetings (profile_ref, day, status);
`

var greetingColumns = []string{
	"run_id", "position", "day", "profile_ref", "display_name",
	"status", "reason", "kind", "detail", "message",
}

// PostgresStore is a Repository on a shared PostgreSQL server.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres creates a store and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("store")}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun inserts the run row, then copies its greetings in bulk.
func (s *PostgresStore) SaveRun(ctx context.Context, rec RunRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	r := rec.Report
	_, err = tx.Exec(ctx, `
        INSERT INTO runs (run_id, started_at, finished_at, total, sent, skipped, failed, failed_stage, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.RunID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Total, r.Sent, r.Skipped, r.Failed, rec.FailedStage, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(r.Entries) > 0 {
		day := DayKey(r.StartedAt)
		rows := make([][]any, len(r.Entries))
		for i, e := range r.Entries {
			rows[i] = []any{
				r.RunID, i, day, e.Entry.ProfileRef, e.Entry.DisplayName,
				string(e.Outcome.Status), e.Outcome.Reason, string(e.Outcome.Kind), e.Outcome.Detail, e.Message,
			}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"greetings"}, greetingColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy greetings: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("mismatch in copied greetings count: expected %d, got %d", len(rows), n)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT run_id, started_at, finished_at, total, sent, skipped, failed, failed_stage, error
        FROM runs
        ORDER BY started_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.RunID, &rs.StartedAt, &rs.FinishedAt, &rs.Total, &rs.Sent, &rs.Skipped, &rs.Failed, &rs.FailedStage, &rs.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		rs.Duration = rs.FinishedAt.Sub(rs.StartedAt)
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// Greeted reports whether a greeting to profileRef was sent on day.
func (s *PostgresStore) Greeted(ctx context.Context, profileRef string, day time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM greetings WHERE profile_ref = $1 AND day = $2 AND status = 'sent'
        )`, profileRef, DayKey(day)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query greetings: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
