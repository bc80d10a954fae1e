// Package browser owns the Chrome process for a run and exposes the page
// operations the automation components need.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/browser/humanoid"
	"github.com/xkilldash9x/salvator/internal/browser/stealth"
	"github.com/xkilldash9x/salvator/internal/config"
)

// State is the lifecycle of a Session.
type State int

const (
	StateLaunching State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// closeTimeout caps how long Close waits for Chrome to exit.
const closeTimeout = 10 * time.Second

// Session is one browser process with one tab.
type Session struct {
	cfg     config.BrowserConfig
	logger  *zap.Logger
	cadence *humanoid.Cadence

	// ctx is the chromedp tab context every action runs against.
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	// navigate runs one navigation attempt. Nil means s.run.
	navigate func(ctx context.Context, actions ...chromedp.Action) error

	mu    sync.Mutex
	state State
}

var _ schemas.Page = (*Session)(nil)

// Open launches Chrome with the anti-automation flags, installs the stealth
// persona and returns a Ready session. The process lives until Close or until
// ctx is cancelled.
func Open(ctx context.Context, cfg config.BrowserConfig, cadence *humanoid.Cadence, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("browser")
	persona := PersonaFromConfig(cfg)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg, persona)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	s := &Session{
		cfg:         cfg,
		logger:      logger,
		cadence:     cadence,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		state:       StateLaunching,
	}

	logger.Info("Launching browser", zap.Bool("headless", cfg.Headless))

	// The first Run allocates the browser and binds its lifetime to tabCtx, so
	// it must not carry the launch deadline itself.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(tabCtx, stealth.Apply(persona, logger))
	}()

	select {
	case err := <-started:
		if err != nil {
			s.teardown()
			return nil, &LaunchError{Err: err}
		}
	case <-time.After(cfg.LaunchTimeout):
		s.teardown()
		return nil, &LaunchError{Err: fmt.Errorf("browser did not respond within %s", cfg.LaunchTimeout)}
	case <-ctx.Done():
		s.teardown()
		return nil, &LaunchError{Err: ctx.Err()}
	}

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()
	logger.Info("Browser ready")
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// mustBeOpen enforces that a closed session is never navigated. Reaching this
// panic means a caller kept using a session after its owner closed it.
func (s *Session) mustBeOpen(op string) {
	if s.State() == StateClosed {
		panic(fmt.Sprintf("browser: %s called on a closed session", op))
	}
}

func (s *Session) checkOpen() error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	return nil
}

// run executes actions on the tab, bounded by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads url, retrying once after the configured backoff.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mustBeOpen("Navigate")
	return s.withRetry(ctx, url, chromedp.Navigate(url))
}

// Reload reloads the current page under the same retry policy as Navigate.
func (s *Session) Reload(ctx context.Context) error {
	s.mustBeOpen("Reload")
	var current string
	_ = s.run(ctx, chromedp.Location(&current))
	return s.withRetry(ctx, current, chromedp.Reload())
}

func (s *Session) withRetry(ctx context.Context, url string, action chromedp.Action) error {
	const attempts = 2
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			s.logger.Warn("Navigation failed, retrying",
				zap.String("url", url),
				zap.Duration("backoff", s.cfg.NavigationBackoff),
				zap.Error(lastErr),
			)
			if err := humanoid.Sleep(ctx, s.cfg.NavigationBackoff); err != nil {
				return &NavigationError{URL: url, Attempts: attempt - 1, Err: err}
			}
		}

		navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		lastErr = s.attempt(navCtx, action)
		cancel()
		if lastErr == nil {
			s.logger.Debug("Navigated", zap.String("url", url), zap.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return &NavigationError{URL: url, Attempts: attempt, Err: ctx.Err()}
		}
	}
	return &NavigationError{URL: url, Attempts: attempts, Err: lastErr}
}

func (s *Session) attempt(ctx context.Context, action chromedp.Action) error {
	if s.navigate != nil {
		return s.navigate(ctx, action)
	}
	return s.run(ctx, action)
}

// CurrentURL returns the tab's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.logger.Info("Closing browser")
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(closeTimeout):
		err = fmt.Errorf("browser did not exit within %s", closeTimeout)
	}
	s.teardown()

	if err != nil {
		s.logger.Warn("Browser did not shut down cleanly", zap.Error(err))
		return err
	}
	return nil
}

func (s *Session) teardown() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}
