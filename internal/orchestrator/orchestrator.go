// Package orchestrator runs one greeting pass end to end: open a session,
// log in, scrape, dispatch, close.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/auth"
	"github.com/xkilldash9x/salvator/internal/browser"
	"github.com/xkilldash9x/salvator/internal/config"
	"github.com/xkilldash9x/salvator/internal/greeting"
)

// State of a run.
type State int

const (
	StateIdle State = iota
	StateSessionOpen
	StateAuthenticated
	StateScraped
	StateDispatched
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSessionOpen:
		return "session_open"
	case StateAuthenticated:
		return "authenticated"
	case StateScraped:
		return "scraped"
	case StateDispatched:
		return "dispatched"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the browser a run drives. Only the orchestrator closes it.
type Session interface {
	schemas.Page
	SaveCookies(ctx context.Context, path string) (int, error)
	LoadCookies(ctx context.Context, path string) (int, error)
	Close() error
}

// SessionOpener launches a session for the effective run config.
type SessionOpener func(ctx context.Context, cfg *config.Config) (Session, error)

type Authenticator interface {
	Resume(ctx context.Context, page schemas.Page) (bool, error)
	Login(ctx context.Context, page schemas.Page, creds schemas.Credentials) (schemas.AuthResult, error)
}

type Scraper interface {
	Scrape(ctx context.Context, page schemas.Page) ([]schemas.BirthdayEntry, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, page schemas.Page, entries []schemas.BirthdayEntry) []schemas.EntryOutcome
}

// Components are the per-run workers, built from the effective config so
// selector overrides reach them.
type Components struct {
	Auth       Authenticator
	Scraper    Scraper
	Dispatcher Dispatcher
}

// ComponentFactory builds Components for a run.
type ComponentFactory func(cfg *config.Config) (Components, error)

// Orchestrator composes the stages. It holds no state between runs beyond
// the last observed State.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger
	open   SessionOpener
	build  ComponentFactory

	newID func() string
	now   func() time.Time

	mu    sync.Mutex
	state State
}

// New creates an Orchestrator.
func New(cfg *config.Config, logger *zap.Logger, open SessionOpener, build ComponentFactory) (*Orchestrator, error) {
	if cfg == nil || logger == nil || open == nil || build == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: logger.Named("orchestrator"),
		open:   open,
		build:  build,
		newID:  uuid.NewString,
		now:    time.Now,
	}, nil
}

// State returns the state the latest run reached.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.logger.Debug("Run state", zap.Stringer("state", s))
}

// run is the shared skeleton of Run and Birthdays. It owns the session for
// the duration of body and closes it exactly once on every path, panics
// included.
func (o *Orchestrator) run(ctx context.Context, creds schemas.Credentials, rc RunConfig, log *zap.Logger,
	body func(ctx context.Context, sess Session, comps Components, stage *Stage) error) (err error) {

	o.setState(StateIdle)
	if !creds.Valid() {
		o.setState(StateFailed)
		return &RunError{Stage: StageLogin, Cause: auth.ErrMissingCredentials}
	}
	cfg, err := rc.apply(o.cfg)
	if err != nil {
		o.setState(StateFailed)
		return &RunError{Stage: StageConfig, Cause: err}
	}
	comps, err := o.build(cfg)
	if err != nil {
		o.setState(StateFailed)
		return &RunError{Stage: StageConfig, Cause: err}
	}

	sess, err := o.open(ctx, cfg)
	if err != nil {
		o.setState(StateFailed)
		return &RunError{Stage: StageLaunch, Cause: err}
	}
	o.setState(StateSessionOpen)

	stage := StageLogin
	defer func() {
		if r := recover(); r != nil {
			var partial []schemas.EntryOutcome
			if pe, ok := r.(*greeting.PanicError); ok {
				r, partial = pe.Value, pe.Outcomes
			}
			log.Error("Run panicked", zap.String("stage", string(stage)), zap.Any("panic", r), zap.Stack("stack"))
			err = &RunError{Stage: stage, Cause: fmt.Errorf("panic: %v", r), Outcomes: partial}
		}
		if cerr := sess.Close(); cerr != nil {
			log.Warn("Failed to close browser session", zap.Error(cerr))
		}
		if err != nil {
			o.setState(StateFailed)
			return
		}
		o.setState(StateClosed)
	}()

	if err := o.authenticate(ctx, cfg, sess, comps.Auth, creds, log); err != nil {
		return &RunError{Stage: StageLogin, Cause: err}
	}
	o.setState(StateAuthenticated)

	stage = StageScrape
	return body(ctx, sess, comps, &stage)
}

// Run executes a full pass. A RunReport is returned only when every stage
// completed; otherwise the error is a *RunError.
func (o *Orchestrator) Run(ctx context.Context, creds schemas.Credentials, rc RunConfig) (schemas.RunReport, error) {
	runID := o.newID()
	started := o.now()
	log := o.logger.With(zap.String("run_id", runID))
	log.Info("Run starting", zap.Bool("dry_run", rc.DryRun), zap.Bool("headless", rc.Headless))

	var outcomes []schemas.EntryOutcome
	err := o.run(ctx, creds, rc, log, func(ctx context.Context, sess Session, comps Components, stage *Stage) error {
		entries, err := comps.Scraper.Scrape(ctx, sess)
		if err != nil {
			return &RunError{Stage: StageScrape, Cause: err}
		}
		o.setState(StateScraped)
		log.Info("Birthdays found", zap.Int("count", len(entries)))

		*stage = StageDispatch
		if len(entries) > 0 {
			outcomes = comps.Dispatcher.Dispatch(ctx, sess, entries)
		}
		if len(outcomes) != len(entries) {
			return &RunError{Stage: StageDispatch,
				Cause:    fmt.Errorf("dispatcher returned %d outcomes for %d entries", len(outcomes), len(entries)),
				Outcomes: outcomes}
		}
		o.setState(StateDispatched)
		return nil
	})
	if err != nil {
		var re *RunError
		if errors.As(err, &re) {
			re.RunID = runID
			log.Error("Run failed", zap.String("stage", string(re.Stage)), zap.Error(re.Cause))
		}
		return schemas.RunReport{}, err
	}

	report := schemas.NewRunReport(runID, started, o.now(), outcomes)
	log.Info("Run finished",
		zap.Int("total", report.Total), zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped), zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration()))
	return report, nil
}

// Birthdays logs in and returns today's entries without greeting anyone.
func (o *Orchestrator) Birthdays(ctx context.Context, creds schemas.Credentials, rc RunConfig) ([]schemas.BirthdayEntry, error) {
	log := o.logger.With(zap.String("run_id", o.newID()))
	var entries []schemas.BirthdayEntry
	err := o.run(ctx, creds, rc, log, func(ctx context.Context, sess Session, comps Components, _ *Stage) error {
		var err error
		entries, err = comps.Scraper.Scrape(ctx, sess)
		if err != nil {
			return &RunError{Stage: StageScrape, Cause: err}
		}
		o.setState(StateScraped)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// authenticate tries stored cookies first and falls back to the login form.
// Stale cookies are discarded so the next run does not retry them.
func (o *Orchestrator) authenticate(ctx context.Context, cfg *config.Config, sess Session, a Authenticator, creds schemas.Credentials, log *zap.Logger) error {
	jar := cfg.Browser.CookieJar
	if cfg.Auth.ReuseCookies && jar != "" {
		n, err := sess.LoadCookies(ctx, jar)
		if err != nil {
			log.Warn("Could not restore cookies", zap.Error(err))
		}
		if n > 0 {
			resumed, err := a.Resume(ctx, sess)
			if err != nil && ctx.Err() != nil {
				return err
			}
			if resumed {
				log.Info("Session resumed from stored cookies")
				o.saveCookies(ctx, sess, jar, log)
				return nil
			}
			log.Info("Stored cookies no longer authenticate, logging in")
			if err := browser.ClearCookieJar(jar); err != nil {
				log.Warn("Could not discard stale cookies", zap.Error(err))
			}
		}
	}

	result, err := a.Login(ctx, sess, creds)
	if err != nil {
		return err
	}
	if result != schemas.AuthAuthenticated {
		return &auth.Error{Result: result}
	}
	if cfg.Auth.ReuseCookies && jar != "" {
		o.saveCookies(ctx, sess, jar, log)
	}
	return nil
}

func (o *Orchestrator) saveCookies(ctx context.Context, sess Session, jar string, log *zap.Logger) {
	if _, err := sess.SaveCookies(ctx, jar); err != nil {
		log.Warn("Could not store cookies", zap.Error(err))
	}
}
