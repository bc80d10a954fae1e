package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
        run_id       TEXT PRIMARY KEY,
        started_at   TEXT NOT NULL,
        finished_at  TEXT NOT NULL,
        total        INTEGER NOT NULL,
        sent         INTEGER NOT NULL,
        skipped      INTEGER NOT NULL,
        failed       INTEGER NOT NULL,
        failed_stage TEXT NOT NULL DEFAULT '',
        error        TEXT NOT NULL DEFAULT ''
    )`,
	`CREATE TABLE IF NOT EXISTS greetings (
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
    )`,
	`CREATE INDEX IF NOT EXISTS greetings_by_profile_day ON greetings (profile_ref, day, status)`,
}

// SQLiteStore is the default, file-backed Repository.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, log: logger.Named("store")}, nil
}

// SaveRun writes the run and its greetings in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	r := rec.Report
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, finished_at, total, sent, skipped, failed, failed_stage, error)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Total, r.Sent, r.Skipped, r.Failed, rec.FailedStage, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	day := DayKey(r.StartedAt)
	for i, e := range r.Entries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO greetings (run_id, position, day, profile_ref, display_name, status, reason, kind, detail, message)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, i, day, e.Entry.ProfileRef, e.Entry.DisplayName,
			string(e.Outcome.Status), e.Outcome.Reason, string(e.Outcome.Kind), e.Outcome.Detail, e.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to insert greeting %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run saved", zap.String("run_id", r.RunID), zap.Int("entries", len(r.Entries)))
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, total, sent, skipped, failed, failed_stage, error
         FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			rs                RunSummary
			started, finished string
		)
		if err := rows.Scan(&rs.RunID, &started, &finished, &rs.Total, &rs.Sent, &rs.Skipped, &rs.Failed, &rs.FailedStage, &rs.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if rs.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at: %w", rs.RunID, err)
		}
		if rs.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("run %s: bad finished_at: %w", rs.RunID, err)
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
func (s *SQLiteStore) Greeted(ctx context.Context, profileRef string, day time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM greetings WHERE profile_ref = ? AND day = ? AND status = 'sent'`,
		profileRef, DayKey(day),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query greetings: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
