// Package clock provides the time source used by the retry executor.
//
// Injecting a Clock keeps backoff timing deterministic in tests: the
// executor never calls time.Now or time.Sleep directly.
package clock

import (
	"context"
	"time"
)

// Clock supplies the current time and a cancellable sleep.
type Clock interface {
	Now() time.Time

	// Sleep blocks for at least d, or until ctx is done. A cancelled
	// sleep returns ctx.Err() so callers can tell "timer fired" apart
	// from "caller aborted".
	Sleep(ctx context.Context, d time.Duration) error
}

// System returns a Clock backed by real wall-clock time.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C: // drain a pending tick so the channel doesn't retain it
			default:
			}
		}
	}()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
