// Package observe exposes the call lifecycle for logging, metrics, and
// tests: every executed call produces a Timeline of AttemptRecords.
package observe

import (
	"context"
	"time"

	"github.com/richesreach/recall/classify"
	"github.com/richesreach/recall/policy"
)

// AttemptRecord describes a single attempt.
type AttemptRecord struct {
	// Attempt is the zero-based attempt index.
	Attempt   int
	StartTime time.Time
	EndTime   time.Time

	// Err is the attempt's failure, nil on success.
	Err error

	// Outcome is the classifier's decision for this attempt.
	Outcome classify.Outcome

	// Backoff is the delay that was waited before this attempt
	// started (zero for the first attempt).
	Backoff time.Duration
}

// Timeline is the structured record of one call and all of its
// attempts. It is owned by the executor for the duration of the call
// and handed out by value; nothing is persisted.
type Timeline struct {
	// CallID correlates observer events and log lines for one call.
	CallID   string
	Key      policy.Key
	PolicyID string
	Start    time.Time
	End      time.Time

	// Attributes holds call-level metadata (policy fallbacks,
	// normalization notes).
	Attributes map[string]string

	Attempts []AttemptRecord
	FinalErr error
}

// Duration is the wall-clock span of the call, backoff waits included.
func (tl Timeline) Duration() time.Duration {
	return tl.End.Sub(tl.Start)
}

// Observer receives lifecycle callbacks for a single call. Callbacks
// run inline on the calling goroutine; implementations must be cheap
// and must not block.
type Observer interface {
	OnStart(ctx context.Context, key policy.Key, pol policy.Policy)
	OnAttempt(ctx context.Context, key policy.Key, rec AttemptRecord)
	OnSuccess(ctx context.Context, key policy.Key, tl Timeline)
	OnFailure(ctx context.Context, key policy.Key, tl Timeline)
}
