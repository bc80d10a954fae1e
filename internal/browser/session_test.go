package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/salvator/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newDetachedSession builds a Session without a browser so lifecycle rules
// can be checked in isolation.
func newDetachedSession(t *testing.T) (*Session, *int, *int) {
	t.Helper()
	var tabCancels, allocCancels int
	s := &Session{
		cfg:         defaultBrowserConfig(),
		logger:      zaptest.NewLogger(t),
		ctx:         context.Background(),
		cancel:      func() { tabCancels++ },
		allocCancel: func() { allocCancels++ },
		state:       StateReady,
	}
	return s, &tabCancels, &allocCancels
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s, tabCancels, allocCancels := newDetachedSession(t)

	// chromedp.Cancel rejects a non-chromedp context; Close still tears down.
	_ = s.Close()
	assert.Equal(t, StateClosed, s.State())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, *tabCancels)
	assert.Equal(t, 1, *allocCancels)
}

func TestSession_NavigateAfterClosePanics(t *testing.T) {
	s, _, _ := newDetachedSession(t)
	_ = s.Close()

	assert.PanicsWithValue(t, "browser: Navigate called on a closed session", func() {
		_ = s.Navigate(context.Background(), "https://example.com")
	})
	assert.Panics(t, func() { _ = s.Reload(context.Background()) })
}

func TestSession_ElementOpsAfterCloseReturnError(t *testing.T) {
	s, _, _ := newDetachedSession(t)
	_ = s.Close()
	ctx := context.Background()
	el := schemas.ElementRef{NodeID: 1}

	_, err := s.WaitFor(ctx, schemas.CSS("#x"), time.Second)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Present(ctx, schemas.CSS("#x"))
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.ReadText(ctx, el)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.ReadValue(ctx, el)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.OuterHTML(ctx, el)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Type(ctx, el, "x"), ErrSessionClosed)
	assert.ErrorIs(t, s.Click(ctx, el), ErrSessionClosed)
	assert.ErrorIs(t, s.PressEnter(ctx, el), ErrSessionClosed)
	_, err = s.ScrollToBottom(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.CurrentURL(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.SaveCookies(ctx, t.TempDir()+"/jar.json")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "launching", StateLaunching.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestErrors(t *testing.T) {
	cause := errors.New("net::ERR_NAME_NOT_RESOLVED")

	nav := &NavigationError{URL: "https://x.test", Attempts: 2, Err: cause}
	assert.ErrorIs(t, nav, cause)
	assert.Contains(t, nav.Error(), "after 2 attempt(s)")

	launch := &LaunchError{Err: cause}
	assert.ErrorIs(t, launch, cause)

	wrapped := fmt.Errorf("login: %w", &TimeoutError{What: "#email", After: time.Second})
	assert.True(t, IsTimeout(wrapped))
	assert.False(t, IsTimeout(nav))
	assert.Contains(t, wrapped.Error(), "timed out after 1s waiting for #email")
}

func TestCombineContext(t *testing.T) {
	type key struct{}

	t.Run("inherits values and is cancelled by the operation context", func(t *testing.T) {
		session := context.WithValue(context.Background(), key{}, "tab")
		op, cancelOp := context.WithCancel(context.Background())

		combined, cancel := CombineContext(session, op)
		defer cancel()
		assert.Equal(t, "tab", combined.Value(key{}))

		cancelOp()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context not cancelled by op context")
		}
	})

	t.Run("is cancelled by the session context", func(t *testing.T) {
		session, cancelSession := context.WithCancel(context.Background())
		combined, cancel := CombineContext(session, context.Background())
		defer cancel()

		cancelSession()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context not cancelled by session context")
		}
	})

	t.Run("cancel releases without touching the parents", func(t *testing.T) {
		op, cancelOp := context.WithCancel(context.Background())
		defer cancelOp()
		combined, cancel := CombineContext(context.Background(), op)
		cancel()
		assert.Error(t, combined.Err())
		assert.NoError(t, op.Err())
	})
}

func TestSession_NavigateRetry(t *testing.T) {
	loadErr := errors.New("net::ERR_CONNECTION_RESET")

	tests := []struct {
		name         string
		failures     int
		cancelAfter  time.Duration
		wantAttempts int
		wantErr      error
		wantNavErr   int
	}{
		{name: "first attempt succeeds", failures: 0, wantAttempts: 1},
		{name: "fails once then succeeds", failures: 1, wantAttempts: 2},
		{name: "fails twice", failures: 2, wantAttempts: 2, wantErr: loadErr, wantNavErr: 2},
		{name: "cancelled during backoff", failures: 2, cancelAfter: 20 * time.Millisecond, wantAttempts: 1, wantErr: context.Canceled, wantNavErr: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newDetachedSession(t)
			s.cfg.NavigationBackoff = 30 * time.Millisecond
			s.cfg.NavigationTimeout = time.Second
			if tt.cancelAfter > 0 {
				s.cfg.NavigationBackoff = time.Minute
			}

			var attempts int
			s.navigate = func(ctx context.Context, actions ...chromedp.Action) error {
				attempts++
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline, "each attempt is bounded by the navigation timeout")
				if attempts <= tt.failures {
					return loadErr
				}
				return nil
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelAfter > 0 {
				timer := time.AfterFunc(tt.cancelAfter, cancel)
				defer timer.Stop()
			}

			started := time.Now()
			err := s.Navigate(ctx, "https://site.test/jane")
			elapsed := time.Since(started)

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr == nil {
				require.NoError(t, err)
				if tt.failures > 0 {
					assert.GreaterOrEqual(t, elapsed, s.cfg.NavigationBackoff, "the retry waits out the backoff")
				}
				return
			}

			var navErr *NavigationError
			require.ErrorAs(t, err, &navErr)
			assert.Equal(t, "https://site.test/jane", navErr.URL)
			assert.Equal(t, tt.wantNavErr, navErr.Attempts)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Less(t, elapsed, 10*time.Second, "cancellation cuts the backoff short")
		})
	}
}

func TestSession_NavigateStopsWhenCancelledMidAttempt(t *testing.T) {
	s, _, _ := newDetachedSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int
	s.navigate = func(context.Context, ...chromedp.Action) error {
		attempts++
		cancel()
		return errors.New("net::ERR_ABORTED")
	}

	err := s.Navigate(ctx, "https://site.test/ann")
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, 1, attempts, "no retry once the run is cancelled")
	assert.Equal(t, 1, navErr.Attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsFormControl(t *testing.T) {
	for _, name := range []string{"TEXTAREA", "INPUT", "select", "textarea"} {
		assert.True(t, isFormControl(name), name)
	}
	for _, name := range []string{"DIV", "SPAN", "P", ""} {
		assert.False(t, isFormControl(name), name)
	}
}
