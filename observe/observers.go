package observe

import (
	"context"

	"github.com/richesreach/recall/policy"
)

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) OnStart(context.Context, policy.Key, policy.Policy)   {}
func (NoopObserver) OnAttempt(context.Context, policy.Key, AttemptRecord) {}
func (NoopObserver) OnSuccess(context.Context, policy.Key, Timeline)      {}
func (NoopObserver) OnFailure(context.Context, policy.Key, Timeline)      {}

// MultiObserver fans events out to multiple observers in order.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnStart(ctx context.Context, key policy.Key, pol policy.Policy) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnStart(ctx, key, pol)
		}
	}
}

func (m MultiObserver) OnAttempt(ctx context.Context, key policy.Key, rec AttemptRecord) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnAttempt(ctx, key, rec)
		}
	}
}

func (m MultiObserver) OnSuccess(ctx context.Context, key policy.Key, tl Timeline) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnSuccess(ctx, key, tl)
		}
	}
}

func (m MultiObserver) OnFailure(ctx context.Context, key policy.Key, tl Timeline) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnFailure(ctx, key, tl)
		}
	}
}
