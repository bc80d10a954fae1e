package browser

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionClosed is returned by element operations on a closed session.
var ErrSessionClosed = errors.New("browser: session is closed")

// LaunchError means the browser process never became responsive. Not retried.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("browser launch failed: %v", e.Err) }
func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError means a URL could not be loaded after the retry budget.
type NavigationError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}
func (e *NavigationError) Unwrap() error { return e.Err }

// TimeoutError means an element or condition was not observed in time.
type TimeoutError struct {
	What  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.After, e.What)
}

// Timeout lets callers detect the error through the net.Error-style interface.
func (e *TimeoutError) Timeout() bool { return true }

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
