// Package idempotency guards logically single-shot operations, such as
// "mark this brief complete", so the side effect executes at most once
// per key even under concurrent or retried invocation. De-duplication
// stores the in-flight call itself as the guarded resource; there is no
// lock held across the operation.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/richesreach/recall/classify"
	"github.com/richesreach/recall/clock"
)

// State is the lifecycle of a keyed operation.
type State int

const (
	// StateUnknown means no invocation has been recorded for the key.
	StateUnknown State = iota
	// StatePending means an invocation is in flight.
	StatePending
	// StateCompleted means the operation settled successfully; its
	// value is cached.
	StateCompleted
	// StateFailed means the operation settled with an error; the error
	// is cached until Invalidate.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record is the per-key completion record. It is the extension point
// for cross-restart idempotency: a caller can snapshot settled Records
// via Lookup, persist them, and seed a fresh Guard with Prime at
// startup.
type Record struct {
	Key       string
	State     State
	Value     any
	Err       error
	StartedAt time.Time
	SettledAt time.Time
}

func (r Record) settled() bool {
	return r.State == StateCompleted || r.State == StateFailed
}

// Guard de-duplicates in-flight calls per key and caches settlements.
// The zero value is not usable; construct with NewGuard. A Guard is
// safe for concurrent use from multiple call sites racing on the same
// key.
type Guard struct {
	group   singleflight.Group
	clk     clock.Clock
	mu      sync.Mutex
	records map[string]Record
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithClock sets the time source used to stamp records.
func WithClock(clk clock.Clock) GuardOption {
	return func(g *Guard) { g.clk = clk }
}

// NewGuard creates an empty Guard.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{records: make(map[string]Record)}
	for _, opt := range opts {
		opt(g)
	}
	if g.clk == nil {
		g.clk = clock.System()
	}
	return g
}

// Do runs op at most once for key. The first caller starts op; callers
// arriving while it is pending await the same invocation rather than
// starting a duplicate. Callers arriving after settlement receive the
// cached value or error without re-invoking op, until Invalidate.
//
// An op reporting *classify.AlreadyCompletedError is recorded as
// completed, not failed: the upstream says the side effect already
// happened, which is exactly the outcome the caller wanted.
//
// op runs detached from the first caller's cancellation, because other
// callers may be awaiting the same side effect. A caller whose own ctx
// is done stops waiting and receives *classify.CancelledError; the
// shared invocation still runs to settlement.
func (g *Guard) Do(ctx context.Context, key string, op func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &classify.CancelledError{Err: err}
	}

	if rec, ok := g.settledRecord(key); ok {
		return rec.Value, rec.Err
	}
	g.markPending(key)

	opCtx := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (any, error) {
		// A settlement may have landed between the caller's cache
		// check and this flight starting.
		if rec, ok := g.settledRecord(key); ok {
			return rec.Value, rec.Err
		}
		val, err := op(opCtx)
		var done *classify.AlreadyCompletedError
		if errors.As(err, &done) {
			err = nil
		}
		g.settle(key, val, err)
		return val, err
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, &classify.CancelledError{Err: ctx.Err()}
	}
}

// RunOnce is the typed form of Guard.Do.
func RunOnce[T any](ctx context.Context, g *Guard, key string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if g == nil {
		return zero, errors.New("idempotency: nil guard")
	}
	val, err := g.Do(ctx, key, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		return zero, err
	}
	if val == nil {
		return zero, nil
	}
	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("idempotency: key %q cached a %T, caller expects %T", key, val, zero)
	}
	return typed, nil
}

// Invalidate discards the record for key, allowing the next caller to
// re-invoke the operation. An in-flight invocation is not interrupted,
// but its settlement will not be recorded over the invalidation.
func (g *Guard) Invalidate(key string) {
	g.mu.Lock()
	delete(g.records, key)
	g.mu.Unlock()
	g.group.Forget(key)
}

// Prime seeds a completed record, e.g. restored from persistence.
func (g *Guard) Prime(key string, value any) {
	now := g.clk.Now()
	g.mu.Lock()
	g.records[key] = Record{
		Key:       key,
		State:     StateCompleted,
		Value:     value,
		StartedAt: now,
		SettledAt: now,
	}
	g.mu.Unlock()
}

// State reports the lifecycle state recorded for key.
func (g *Guard) State(key string) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.records[key].State
}

// Lookup returns the record for key, if any.
func (g *Guard) Lookup(key string) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[key]
	return rec, ok
}

func (g *Guard) settledRecord(key string) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[key]
	if !ok || !rec.settled() {
		return Record{}, false
	}
	return rec, true
}

func (g *Guard) markPending(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.records[key]; ok {
		return
	}
	g.records[key] = Record{Key: key, State: StatePending, StartedAt: g.clk.Now()}
}

func (g *Guard) settle(key string, val any, err error) {
	state := StateCompleted
	if err != nil {
		state = StateFailed
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[key]
	if !ok {
		// Invalidated mid-flight; the settlement is not recorded.
		return
	}
	rec.State = state
	rec.Value = val
	rec.Err = err
	rec.SettledAt = g.clk.Now()
	g.records[key] = rec
}
