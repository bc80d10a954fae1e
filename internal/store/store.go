// Package store keeps a history of runs and the greetings they sent.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/config"
)

// Repository persists run reports and answers whether someone was already
// greeted on a given day.
type Repository interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
	Greeted(ctx context.Context, profileRef string, day time.Time) (bool, error)
	Close() error
}

// RunRecord is one finished run. A run that failed before producing a
// report carries the failing stage and the error text; its Report then has
// no entries.
type RunRecord struct {
	Report      schemas.RunReport
	FailedStage string
	Error       string
}

// RunSummary is a row of the run history.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Total       int           `json:"total"`
	Sent        int           `json:"sent"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"-"`
}

// ErrDisabled is returned by Open when the store is switched off.
var ErrDisabled = errors.New("store: history is disabled")

// Open connects the configured backend and makes sure its schema exists.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Repository, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		s, err := NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// DayKey is the calendar day a greeting counts against, in the local zone of t.
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

func summaryOf(rec RunRecord) RunSummary {
	r := rec.Report
	return RunSummary{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Total:       r.Total,
		Sent:        r.Sent,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		FailedStage: rec.FailedStage,
		Error:       rec.Error,
	}
}
