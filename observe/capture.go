package observe

import (
	"context"
	"sync/atomic"
)

// TimelineCapture receives the finished timeline of one call requested
// via RecordTimeline. Timeline() returns nil until the call completes.
type TimelineCapture struct {
	tl atomic.Pointer[Timeline]
}

// Timeline returns the captured timeline, or nil if the call has not
// finished (or capture was never requested). Safe for concurrent use.
func (c *TimelineCapture) Timeline() *Timeline {
	if c == nil {
		return nil
	}
	return c.tl.Load()
}

type timelineCaptureKey struct{}

// RecordTimeline derives a context that asks the executor to publish
// the finished timeline of the next call into the returned capture.
// Wrappers use it to return the timeline alongside the value.
func RecordTimeline(ctx context.Context) (context.Context, *TimelineCapture) {
	if ctx == nil {
		ctx = context.Background()
	}
	capture := &TimelineCapture{}
	return context.WithValue(ctx, timelineCaptureKey{}, capture), capture
}

// CaptureFromContext returns the requested capture, if any. Used by
// the executor.
func CaptureFromContext(ctx context.Context) (*TimelineCapture, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(timelineCaptureKey{}).(*TimelineCapture)
	return c, ok && c != nil
}

// WithoutCapture disables capture in derived contexts. The executor
// applies it to the per-attempt context handed to the operation, so a
// nested call cannot clobber the outer call's capture.
func WithoutCapture(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, timelineCaptureKey{}, (*TimelineCapture)(nil))
}

// StoreCapture publishes the finished timeline. Used by the executor.
func StoreCapture(capture *TimelineCapture, tl *Timeline) {
	if capture == nil || tl == nil {
		return
	}
	capture.tl.Store(tl)
}
