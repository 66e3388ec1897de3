package observe

import (
	"context"
	"log/slog"

	"github.com/richesreach/recall/policy"
)

// SlogObserver emits structured log lines for call lifecycles. Attempt
// events log at Debug, terminal failures at Warn, so routine retries
// don't flood application logs.
type SlogObserver struct {
	Logger *slog.Logger
}

func (s SlogObserver) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s SlogObserver) OnStart(ctx context.Context, key policy.Key, pol policy.Policy) {
	s.logger().DebugContext(ctx, "call start",
		"key", key.String(),
		"max_retries", pol.Retry.MaxRetries,
		"attempt_timeout", pol.Retry.AttemptTimeout,
	)
}

func (s SlogObserver) OnAttempt(ctx context.Context, key policy.Key, rec AttemptRecord) {
	s.logger().DebugContext(ctx, "call attempt",
		"key", key.String(),
		"attempt", rec.Attempt,
		"outcome", rec.Outcome.Kind.String(),
		"reason", rec.Outcome.Reason,
		"backoff", rec.Backoff,
		"err", rec.Err,
	)
}

func (s SlogObserver) OnSuccess(ctx context.Context, key policy.Key, tl Timeline) {
	s.logger().DebugContext(ctx, "call succeeded",
		"key", key.String(),
		"call_id", tl.CallID,
		"attempts", len(tl.Attempts),
		"duration", tl.Duration(),
	)
}

func (s SlogObserver) OnFailure(ctx context.Context, key policy.Key, tl Timeline) {
	s.logger().WarnContext(ctx, "call failed",
		"key", key.String(),
		"call_id", tl.CallID,
		"attempts", len(tl.Attempts),
		"duration", tl.Duration(),
		"err", tl.FinalErr,
	)
}
