// Package backoff computes the delay before a retry attempt.
//
// The schedule is capped exponential: initial * multiplier^attempt,
// never exceeding the configured maximum. A server-supplied Retry-After
// hint takes precedence over the computed delay (still capped), and
// jitter desynchronizes fleets of clients retrying the same upstream —
// without it, every client that failed together retries together.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/richesreach/recall/policy"
)

// Delay returns the wait before attempt+1, where attempt is the
// zero-based index of the attempt that just failed. hint is the
// server-supplied retry delay (0 when absent); hints are honored
// verbatim up to cfg.MaxDelay and are not jittered, since the server
// already picked the moment it wants.
func Delay(cfg policy.RetryConfig, attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return capped(hint, cfg.MaxDelay)
	}

	d := exponential(cfg, attempt)
	switch cfg.Jitter {
	case policy.JitterFull:
		d = time.Duration(rand.Float64() * float64(d))
	case policy.JitterEqual:
		half := float64(d) / 2
		d = time.Duration(half + rand.Float64()*half)
	}
	return capped(d, cfg.MaxDelay)
}

func exponential(cfg policy.RetryConfig, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}

	scaled := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt))
	// Overflow or absurd growth saturates at the cap.
	if cfg.MaxDelay > 0 && (scaled >= float64(cfg.MaxDelay) || math.IsInf(scaled, 1)) {
		return cfg.MaxDelay
	}
	if scaled > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(scaled)
}

func capped(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
