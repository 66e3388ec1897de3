package retry

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/richesreach/recall/classify"
)

// WithDeadline runs op under a per-attempt deadline. Exactly one of
// {value, *classify.TimeoutError, *classify.CancelledError, op's own
// error} is observed:
//
//   - timeout elapsing before op settles yields TimeoutError;
//   - the outer context being cancelled yields CancelledError, so a
//     retry loop can tell "the user navigated away" apart from "the
//     network was slow";
//   - a value that only arrives after the deadline is discarded, never
//     reported as success.
//
// The deadline is signalled to op through its context, so a
// context-aware transport stops work instead of leaking it. An op that
// ignores its context is abandoned on its goroutine once the deadline
// fires; its late result is dropped. A timeout of 0 disables the
// per-attempt deadline (the outer context still applies).
func WithDeadline[T any](ctx context.Context, timeout time.Duration, op OperationValue[T]) (T, error) {
	return runWithDeadline(ctx, timeout, false, op)
}

type attemptResult[T any] struct {
	val      T
	err      error
	panicked bool
	panicVal any
	stack    []byte
}

func runWithDeadline[T any](ctx context.Context, timeout time.Duration, recoverPanics bool, op OperationValue[T]) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, settlementError(ctx, timeout)
	}

	attemptCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	ch := make(chan attemptResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- attemptResult[T]{panicked: true, panicVal: r, stack: debug.Stack()}
			}
		}()
		val, err := op(attemptCtx)
		ch <- attemptResult[T]{val: val, err: err}
	}()

	select {
	case res := <-ch:
		if res.panicked {
			if recoverPanics {
				return zero, &PanicError{Component: "operation", Value: res.panicVal, Stack: res.stack}
			}
			panic(res.panicVal)
		}
		if res.err == nil && attemptCtx.Err() != nil {
			// Settled only after the deadline had already passed.
			return zero, settlementError(ctx, timeout)
		}
		return res.val, res.err
	case <-attemptCtx.Done():
		return zero, settlementError(ctx, timeout)
	}
}

// settlementError distinguishes why an attempt failed to settle in
// time: outer cancellation vs outer deadline vs per-attempt timeout.
func settlementError(outer context.Context, timeout time.Duration) error {
	if err := outer.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return &classify.CancelledError{Err: err}
		}
		return &classify.TimeoutError{}
	}
	return &classify.TimeoutError{After: timeout}
}
