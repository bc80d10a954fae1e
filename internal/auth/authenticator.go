// Package auth drives the site's login form and decides what happened after submit.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/salvator/api/schemas"
	"github.com/xkilldash9x/salvator/internal/browser"
	"github.com/xkilldash9x/salvator/internal/config"
	"github.com/xkilldash9x/salvator/internal/detect"
)

// challengeURLMarkers identify verification interstitials by address when the
// page markup gives nothing stable to match.
var challengeURLMarkers = []string{"/checkpoint", "two_step_verification", "/captcha"}

// Selectors are the locators for every element the login flow touches.
type Selectors struct {
	Identifier  schemas.Locator
	Secret      schemas.Locator
	Submit      schemas.Locator
	Landmark    schemas.Locator
	ErrorBanner schemas.Locator
	Challenge   schemas.Locator
}

// SelectorsFromConfig builds locators from the configured candidate lists.
func SelectorsFromConfig(sel config.SelectorsConfig) Selectors {
	return Selectors{
		Identifier:  schemas.LocatorFromSpecs(sel.Identifier),
		Secret:      schemas.LocatorFromSpecs(sel.Secret),
		Submit:      schemas.LocatorFromSpecs(sel.Submit),
		Landmark:    schemas.LocatorFromSpecs(sel.Landmark),
		ErrorBanner: schemas.LocatorFromSpecs(sel.ErrorBanner),
		Challenge:   schemas.LocatorFromSpecs(sel.Challenge),
	}
}

// Options holds the surfaces and time bounds for a login.
type Options struct {
	LoginURL      string
	HomeURL       string
	FieldTimeout  time.Duration
	DetectTimeout time.Duration
	PollInterval  time.Duration
}

// Authenticator logs the session in.
type Authenticator struct {
	sel    Selectors
	opts   Options
	logger *zap.Logger
}

// New creates an Authenticator.
func New(sel Selectors, opts Options, logger *zap.Logger) *Authenticator {
	return &Authenticator{sel: sel, opts: opts, logger: logger.Named("auth")}
}

// NewFromConfig wires an Authenticator from the application config.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) *Authenticator {
	return New(SelectorsFromConfig(cfg.Site.Selectors), Options{
		LoginURL:      cfg.Site.LoginURL,
		HomeURL:       cfg.Site.HomeURL,
		FieldTimeout:  cfg.Auth.FieldTimeout,
		DetectTimeout: cfg.Auth.DetectTimeout,
		PollInterval:  cfg.Browser.PollInterval,
	}, logger)
}

// Resume checks whether restored cookies already give an authenticated
// session: it opens the home surface and races the landmark against the login
// form. It never types anything.
func (a *Authenticator) Resume(ctx context.Context, page schemas.Page) (bool, error) {
	if err := page.Navigate(ctx, a.opts.HomeURL); err != nil {
		return false, err
	}
	res, err := detect.Race(ctx, a.opts.DetectTimeout, a.opts.PollInterval,
		detect.Detector[bool]{Name: "landmark", Outcome: true, Probe: presence(page, a.sel.Landmark)},
		detect.Detector[bool]{Name: "login_form", Outcome: false, Probe: presence(page, a.sel.Identifier)},
	)
	if err != nil {
		return false, err
	}
	resumed := res.Matched && res.Outcome
	a.logger.Info("Checked stored session", zap.Bool("resumed", resumed), zap.String("signal", res.Detector))
	return resumed, nil
}

// Login fills and submits the login form, then resolves the outcome. An
// UnknownFailure is retried once after reloading the page; InvalidCredentials
// and ChallengeRequired are returned as-is. The returned error covers
// failures to drive the page at all.
func (a *Authenticator) Login(ctx context.Context, page schemas.Page, creds schemas.Credentials) (schemas.AuthResult, error) {
	if !creds.Valid() {
		return schemas.AuthUnknownFailure, ErrMissingCredentials
	}
	a.logger.Info("Logging in", zap.Object("credentials", creds))

	result, err := a.attempt(ctx, page, creds, false)
	if err != nil || result != schemas.AuthUnknownFailure {
		return result, err
	}

	a.logger.Warn("Login outcome unclear, reloading and trying once more")
	return a.attempt(ctx, page, creds, true)
}

func (a *Authenticator) attempt(ctx context.Context, page schemas.Page, creds schemas.Credentials, reload bool) (schemas.AuthResult, error) {
	var err error
	if reload {
		err = page.Reload(ctx)
	} else {
		err = page.Navigate(ctx, a.opts.LoginURL)
	}
	if err != nil {
		return schemas.AuthUnknownFailure, err
	}

	submitted, err := a.fillForm(ctx, page, creds)
	if err != nil {
		return schemas.AuthUnknownFailure, err
	}
	if !submitted {
		// No form: the page may already show a landmark or a challenge.
		a.logger.Debug("Login form not found, checking page state directly")
	}

	result := a.resolve(ctx, page)
	a.logger.Info("Login attempt resolved", zap.String("result", string(result)), zap.Bool("reload", reload))
	return result, ctx.Err()
}

// fillForm types both credentials and submits. It reports false, with no
// error, when the identifier field never appears or the secret field does not
// follow it, leaving the page state to decide the attempt.
func (a *Authenticator) fillForm(ctx context.Context, page schemas.Page, creds schemas.Credentials) (bool, error) {
	idField, err := page.WaitFor(ctx, a.sel.Identifier, a.opts.FieldTimeout)
	if err != nil {
		if browser.IsTimeout(err) {
			return false, nil
		}
		return false, fmt.Errorf("locate identifier field: %w", err)
	}
	if err := page.Type(ctx, idField, creds.Identifier); err != nil {
		return false, fmt.Errorf("type identifier: %w", err)
	}

	secretField, err := page.WaitFor(ctx, a.sel.Secret, a.opts.FieldTimeout)
	if err != nil {
		if browser.IsTimeout(err) {
			a.logger.Warn("Secret field did not appear after the identifier", zap.Stringer("locator", a.sel.Secret))
			return false, nil
		}
		return false, fmt.Errorf("locate secret field: %w", err)
	}
	if err := page.Type(ctx, secretField, creds.Secret); err != nil {
		return false, fmt.Errorf("type secret: %w", err)
	}

	if a.sel.Submit != nil && len(a.sel.Submit.Candidates()) > 0 {
		if btn, err := page.WaitFor(ctx, a.sel.Submit, a.opts.PollInterval*4); err == nil {
			if err := page.Click(ctx, btn); err == nil {
				return true, nil
			}
		}
		a.logger.Debug("Submit control unusable, falling back to Enter")
	}
	if err := page.PressEnter(ctx, secretField); err != nil {
		return false, fmt.Errorf("submit login form: %w", err)
	}
	return true, nil
}

// resolve races the three post-submit signals.
func (a *Authenticator) resolve(ctx context.Context, page schemas.Page) schemas.AuthResult {
	res, err := detect.Race(ctx, a.opts.DetectTimeout, a.opts.PollInterval,
		detect.Detector[schemas.AuthResult]{
			Name: "landmark", Outcome: schemas.AuthAuthenticated, Probe: presence(page, a.sel.Landmark),
		},
		detect.Detector[schemas.AuthResult]{
			Name: "error_banner", Outcome: schemas.AuthInvalidCredentials, Probe: presence(page, a.sel.ErrorBanner),
		},
		detect.Detector[schemas.AuthResult]{
			Name: "challenge", Outcome: schemas.AuthChallengeRequired, Probe: a.challengeProbe(page),
		},
	)
	if err != nil || !res.Matched {
		return schemas.AuthUnknownFailure
	}
	a.logger.Debug("Login signal observed", zap.String("detector", res.Detector))
	return res.Outcome
}

func (a *Authenticator) challengeProbe(page schemas.Page) detect.Probe {
	byMarkup := presence(page, a.sel.Challenge)
	return func(ctx context.Context) (bool, error) {
		if ok, err := byMarkup(ctx); err == nil && ok {
			return true, nil
		}
		url, err := page.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		for _, marker := range challengeURLMarkers {
			if strings.Contains(url, marker) {
				return true, nil
			}
		}
		return false, nil
	}
}

func presence(page schemas.Page, loc schemas.Locator) detect.Probe {
	return func(ctx context.Context) (bool, error) {
		if loc == nil {
			return false, nil
		}
		return page.Present(ctx, loc)
	}
}
