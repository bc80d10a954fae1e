// Package greeting posts one greeting per birthday entry and records what
// happened to each.
package greeting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/browser"
	"github.com/xkilldash9x/salvator/internal/config"
	"github.com/xkilldash9x/salvator/internal/detect"
)

// Ledger answers whether a profile was already greeted on a given day.
type Ledger interface {
	Greeted(ctx context.Context, profileRef string, day time.Time) (bool, error)
}

// Selectors locate the controls on a profile's interaction surface.
type Selectors struct {
	Composer     schemas.Locator
	PostButton   schemas.Locator
	Confirmation schemas.Locator
}

// SelectorsFromConfig builds the dispatch selectors from config.
func SelectorsFromConfig(sel config.SelectorsConfig) Selectors {
	return Selectors{
		Composer:     schemas.LocatorFromSpecs(sel.Composer),
		PostButton:   schemas.LocatorFromSpecs(sel.PostButton),
		Confirmation: schemas.LocatorFromSpecs(sel.PostConfirmation),
	}
}

// Options controls pacing and per-entry time bounds.
type Options struct {
	CourtesyDelay   time.Duration
	ComposerTimeout time.Duration
	VerifyTimeout   time.Duration
	PollInterval    time.Duration
	DryRun          bool
	Exclude         []string
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLedger makes the dispatcher skip profiles the ledger reports as greeted today.
func WithLedger(l Ledger) Option {
	return func(d *Dispatcher) { d.ledger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher sends greetings sequentially over one page.
type Dispatcher struct {
	sel      Selectors
	opts     Options
	composer *Composer
	ledger   Ledger
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(sel Selectors, opts Options, composer *Composer, logger *zap.Logger, options ...Option) *Dispatcher {
	d := &Dispatcher{
		sel:      sel,
		opts:     opts,
		composer: composer,
		now:      time.Now,
		logger:   logger.Named("greeting"),
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// NewFromConfig wires a Dispatcher from the application config.
func NewFromConfig(cfg *config.Config, logger *zap.Logger, options ...Option) (*Dispatcher, error) {
	composer, err := NewComposer(cfg.Greeting.Templates)
	if err != nil {
		return nil, err
	}
	return New(SelectorsFromConfig(cfg.Site.Selectors), Options{
		CourtesyDelay:   cfg.Greeting.CourtesyDelay,
		ComposerTimeout: cfg.Greeting.ComposerTimeout,
		VerifyTimeout:   cfg.Greeting.VerifyTimeout,
		PollInterval:    cfg.Browser.PollInterval,
		DryRun:          cfg.Greeting.DryRun,
		Exclude:         cfg.Greeting.Exclude,
	}, composer, logger, options...), nil
}

func (d *Dispatcher) limiter() *rate.Limiter {
	if d.opts.CourtesyDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d.opts.CourtesyDelay), 1)
}

// PanicError carries a panic out of Dispatch together with the outcomes of
// the entries handled before it.
type PanicError struct {
	Value    any
	Outcomes []schemas.EntryOutcome
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("greeting panicked after %d entries: %v", len(e.Outcomes), e.Value)
}

// Dispatch processes entries in order and returns exactly one outcome per
// entry, in the same order. A failing entry never stops the batch; once ctx
// is done the remaining entries are recorded as skipped. A panic is re-raised
// as a *PanicError.
func (d *Dispatcher) Dispatch(ctx context.Context, page schemas.Page, entries []schemas.BirthdayEntry) []schemas.EntryOutcome {
	outcomes := make([]schemas.EntryOutcome, 0, len(entries))
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*PanicError); ok {
				panic(r)
			}
			panic(&PanicError{Value: r, Outcomes: outcomes})
		}
	}()
	pace := d.limiter()
	day := d.now()

	for i, entry := range entries {
		log := d.logger.With(zap.Int("index", i), zap.String("profile", entry.ProfileRef))
		msg, outcome := d.one(ctx, page, pace, entry, day, log)
		outcomes = append(outcomes, schemas.EntryOutcome{Entry: entry, Outcome: outcome, Message: msg})

		switch outcome.Status {
		case schemas.StatusFailed:
			log.Warn("Greeting failed", zap.String("kind", string(outcome.Kind)), zap.String("detail", outcome.Detail))
		case schemas.StatusSkipped:
			log.Info("Greeting skipped", zap.String("reason", outcome.Reason))
		default:
			log.Info("Greeting sent", zap.String("name", entry.DisplayName))
		}
	}
	return outcomes
}

func (d *Dispatcher) one(ctx context.Context, page schemas.Page, pace *rate.Limiter, entry schemas.BirthdayEntry, day time.Time, log *zap.Logger) (string, schemas.DispatchOutcome) {
	if ctx.Err() != nil {
		return "", schemas.Skipped(schemas.SkipCancelled)
	}
	if d.excluded(entry) {
		return "", schemas.Skipped(schemas.SkipExcluded)
	}
	if d.ledger != nil {
		greeted, err := d.ledger.Greeted(ctx, entry.ProfileRef, day)
		if err != nil {
			log.Warn("History lookup failed, greeting anyway", zap.Error(err))
		} else if greeted {
			return "", schemas.Skipped(schemas.SkipAlreadyGreeted)
		}
	}

	msg, err := d.composer.Compose(entry, day)
	if err != nil {
		return "", schemas.Failed(schemas.KindTemplate, err)
	}
	if d.opts.DryRun {
		return msg, schemas.Skipped(schemas.SkipDryRun)
	}

	if err := pace.Wait(ctx); err != nil {
		return msg, schemas.Skipped(schemas.SkipCancelled)
	}

	return msg, d.send(ctx, page, entry, msg)
}

func (d *Dispatcher) send(ctx context.Context, page schemas.Page, entry schemas.BirthdayEntry, msg string) schemas.DispatchOutcome {
	if err := page.Navigate(ctx, entry.ProfileRef); err != nil {
		if ctx.Err() != nil {
			return schemas.Skipped(schemas.SkipCancelled)
		}
		return schemas.Failed(schemas.KindNavigation, err)
	}

	composer, err := page.WaitFor(ctx, d.sel.Composer, d.opts.ComposerTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return schemas.Skipped(schemas.SkipCancelled)
		}
		return schemas.Failed(schemas.KindComposerNotFound, err)
	}

	if err := page.Type(ctx, composer, msg); err != nil {
		return schemas.Failed(schemas.KindInteraction, fmt.Errorf("type greeting: %w", err))
	}
	if err := d.submit(ctx, page, composer); err != nil {
		return schemas.Failed(schemas.KindInteraction, err)
	}

	ok, err := d.verify(ctx, page)
	if err != nil {
		return schemas.Failed(schemas.KindPostVerificationTimeout, err)
	}
	if !ok {
		return schemas.Failed(schemas.KindPostVerificationTimeout,
			&browser.TimeoutError{What: "post confirmation", After: d.opts.VerifyTimeout})
	}
	return schemas.Sent()
}

func (d *Dispatcher) submit(ctx context.Context, page schemas.Page, composer schemas.ElementRef) error {
	if d.sel.PostButton != nil && len(d.sel.PostButton.Candidates()) > 0 {
		if btn, err := page.WaitFor(ctx, d.sel.PostButton, d.opts.PollInterval*4); err == nil {
			if err := page.Click(ctx, btn); err == nil {
				return nil
			}
		}
		d.logger.Debug("Post button unusable, submitting with Enter")
	}
	if err := page.PressEnter(ctx, composer); err != nil {
		return fmt.Errorf("submit greeting: %w", err)
	}
	return nil
}

// verify waits for either the composer to empty out or a confirmation to
// appear. A composer that disappears entirely proves nothing and is not
// treated as success.
func (d *Dispatcher) verify(ctx context.Context, page schemas.Page) (bool, error) {
	detectors := []detect.Detector[bool]{{
		Name:    "composer_cleared",
		Outcome: true,
		Probe: func(ctx context.Context) (bool, error) {
			el, err := page.WaitFor(ctx, d.sel.Composer, d.opts.PollInterval)
			if err != nil {
				return false, err
			}
			text, err := page.ReadValue(ctx, el)
			if err != nil {
				return false, err
			}
			return strings.TrimSpace(text) == "", nil
		},
	}}
	if d.sel.Confirmation != nil && len(d.sel.Confirmation.Candidates()) > 0 {
		detectors = append(detectors, detect.Detector[bool]{
			Name:    "confirmation",
			Outcome: true,
			Probe: func(ctx context.Context) (bool, error) {
				return page.Present(ctx, d.sel.Confirmation)
			},
		})
	}
	res, err := detect.Race(ctx, d.opts.VerifyTimeout, d.opts.PollInterval, detectors...)
	if err != nil {
		return false, err
	}
	if res.Matched {
		d.logger.Debug("Post verified", zap.String("signal", res.Detector))
	}
	return res.Matched, nil
}

// excluded matches the exclude list against the profile reference (whole or
// by its last path segment) and the display name, case-insensitively.
func (d *Dispatcher) excluded(entry schemas.BirthdayEntry) bool {
	ref := strings.ToLower(strings.TrimRight(entry.ProfileRef, "/"))
	name := strings.ToLower(entry.DisplayName)
	for _, ex := range d.opts.Exclude {
		ex = strings.ToLower(strings.TrimSpace(ex))
		if ex == "" {
			continue
		}
		if ex == ref || ex == name || strings.HasSuffix(ref, "/"+ex) {
			return true
		}
	}
	return false
}
