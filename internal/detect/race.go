// Package detect resolves "which of these page states showed up first" questions
// for a UI that offers no single deterministic signal.
package detect

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe checks a condition once. Errors are treated as "not yet" since DOM
// queries routinely fail while a page is mid-navigation.
type Probe func(ctx context.Context) (bool, error)

// Detector maps a probe to the outcome it signals.
type Detector[T any] struct {
	Name    string
	Outcome T
	Probe   Probe
}

// Result of a race. Matched is false when no detector fired before the timeout.
type Result[T any] struct {
	Outcome  T
	Detector string
	Matched  bool
}

var ErrNoDetectors = errors.New("detect: race needs at least one detector")

// Race polls every detector concurrently at interval and returns the first to
// fire. If none fires within timeout it returns an unmatched Result and a nil
// error. Cancellation of ctx is returned as an error.
func Race[T any](ctx context.Context, timeout, interval time.Duration, detectors ...Detector[T]) (Result[T], error) {
	if len(detectors) == 0 {
		return Result[T]{}, ErrNoDetectors
	}

	raceCtx, stop := context.WithTimeout(ctx, timeout)
	defer stop()

	won := make(chan Result[T], 1)
	g, gctx := errgroup.WithContext(raceCtx)
	for _, d := range detectors {
		g.Go(func() error {
			poll(gctx, d, interval, won, stop)
			return nil
		})
	}
	_ = g.Wait()

	select {
	case r := <-won:
		return r, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return Result[T]{}, err
	}
	return Result[T]{}, nil
}

func poll[T any](ctx context.Context, d Detector[T], interval time.Duration, won chan<- Result[T], stop context.CancelFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ok, err := d.Probe(ctx); err == nil && ok {
			select {
			case won <- Result[T]{Outcome: d.Outcome, Detector: d.Name, Matched: true}:
				stop()
			default:
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Until polls a single probe until it fires or timeout elapses.
func Until(ctx context.Context, timeout, interval time.Duration, probe Probe) (bool, error) {
	r, err := Race(ctx, timeout, interval, Detector[bool]{Name: "until", Outcome: true, Probe: probe})
	return r.Matched, err
}
