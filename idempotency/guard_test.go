package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richesreach/recall/classify"
)

func TestRunOnce_SingleCaller(t *testing.T) {
	g := NewGuard()
	calls := 0

	val, err := RunOnce(context.Background(), g, "brief-1", func(context.Context) (string, error) {
		calls++
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", val)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateCompleted, g.State("brief-1"))
}

func TestRunOnce_ConcurrentCallersShareOneInvocation(t *testing.T) {
	g := NewGuard()
	var calls atomic.Int32
	release := make(chan struct{})

	sideEffect := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "unlocked", nil
	}

	const callers = 8
	results := make(chan string, callers)
	errs := make(chan error, callers)
	var started sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			started.Done()
			v, err := RunOnce(context.Background(), g, "key1", sideEffect)
			results <- v
			errs <- err
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond) // let every caller reach the guard
	close(release)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
		assert.Equal(t, "unlocked", <-results)
	}
	assert.Equal(t, int32(1), calls.Load(), "the side effect fires once, every caller gets its value")
}

func TestRunOnce_ParallelCompletion(t *testing.T) {
	g := NewGuard()
	var counter atomic.Int32

	completeBrief := func(context.Context) (bool, error) {
		time.Sleep(50 * time.Millisecond)
		counter.Add(1)
		return true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := RunOnce(context.Background(), g, "brief-42", completeBrief)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), counter.Load())
}

func TestRunOnce_CompletedResultIsCached(t *testing.T) {
	g := NewGuard()
	calls := 0
	op := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	first, err := RunOnce(context.Background(), g, "k", op)
	require.NoError(t, err)
	second, err := RunOnce(context.Background(), g, "k", op)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second, "the cached value is returned, op is not re-invoked")
	assert.Equal(t, 1, calls)
}

func TestRunOnce_FailureIsCachedUntilInvalidate(t *testing.T) {
	g := NewGuard()
	calls := 0
	cause := &classify.ServerError{StatusCode: 500}
	op := func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, cause
		}
		return 99, nil
	}

	_, err := RunOnce(context.Background(), g, "k", op)
	assert.Same(t, error(cause), err)
	assert.Equal(t, StateFailed, g.State("k"))

	_, err = RunOnce(context.Background(), g, "k", op)
	assert.Same(t, error(cause), err, "a settled failure is not silently re-run")
	assert.Equal(t, 1, calls)

	g.Invalidate("k")
	assert.Equal(t, StateUnknown, g.State("k"))

	val, err := RunOnce(context.Background(), g, "k", op)
	require.NoError(t, err)
	assert.Equal(t, 99, val)
	assert.Equal(t, 2, calls)
}

func TestRunOnce_AlreadyCompletedUpstreamIsSuccess(t *testing.T) {
	g := NewGuard()

	// The server reports 409: the brief was already completed, perhaps
	// from another device. That is the outcome the caller wanted.
	done, err := RunOnce(context.Background(), g, "brief-7", func(context.Context) (bool, error) {
		return false, &classify.AlreadyCompletedError{Detail: "brief already completed"}
	})

	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, StateCompleted, g.State("brief-7"))

	// And subsequent callers see the cached completion.
	calls := 0
	_, err = RunOnce(context.Background(), g, "brief-7", func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestGuard_WaiterCancellationDoesNotAbortSideEffect(t *testing.T) {
	g := NewGuard()
	var calls atomic.Int32
	release := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := RunOnce(ctx, g, "k", func(opCtx context.Context) (int, error) {
			calls.Add(1)
			<-release
			// The launching caller cancelled, but the shared side
			// effect must run to settlement for other callers.
			assert.NoError(t, opCtx.Err())
			return 5, nil
		})
		errCh <- err
	}()

	// Wait until the operation is in flight, then abandon it.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	err := <-errCh
	var cancelled *classify.CancelledError
	require.ErrorAs(t, err, &cancelled)

	close(release)

	// A later caller gets the settled value without a second invocation.
	val, err := RunOnce(context.Background(), g, "k", func(context.Context) (int, error) {
		calls.Add(1)
		return -1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, val)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGuard_CancelledBeforeStart(t *testing.T) {
	g := NewGuard()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RunOnce(ctx, g, "k", func(context.Context) (int, error) {
		calls++
		return 1, nil
	})

	var cancelled *classify.CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, 0, calls)
	assert.Equal(t, StateUnknown, g.State("k"))
}

func TestGuard_Prime(t *testing.T) {
	g := NewGuard()
	g.Prime("brief-9", "restored")

	calls := 0
	val, err := RunOnce(context.Background(), g, "brief-9", func(context.Context) (string, error) {
		calls++
		return "fresh", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "restored", val)
	assert.Equal(t, 0, calls)

	rec, ok := g.Lookup("brief-9")
	require.True(t, ok)
	assert.Equal(t, StateCompleted, rec.State)
	assert.Equal(t, "restored", rec.Value)
}

func TestGuard_InvalidateMidFlightDropsSettlement(t *testing.T) {
	g := NewGuard()
	release := make(chan struct{})
	started := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = RunOnce(context.Background(), g, "k", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()

	<-started
	g.Invalidate("k")
	close(release)
	<-done

	// The in-flight settlement must not resurrect the invalidated key.
	assert.Equal(t, StateUnknown, g.State("k"))
}

func TestRunOnce_TypeMismatchIsAnError(t *testing.T) {
	g := NewGuard()
	g.Prime("k", "a string")

	_, err := RunOnce(context.Background(), g, "k", func(context.Context) (int, error) {
		return 1, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caller expects")
}

func TestRunOnce_DistinctKeysDoNotInterfere(t *testing.T) {
	g := NewGuard()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := RunOnce(context.Background(), g, key, func(context.Context) (string, error) {
				calls.Add(1)
				return key, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, key, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, StateCompleted, g.State("a"))
}

func TestGuard_NilGuardRejected(t *testing.T) {
	_, err := RunOnce[int](context.Background(), nil, "k", func(context.Context) (int, error) {
		return 1, nil
	})
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "failed", StateFailed.String())
}

var errSentinel = errors.New("sentinel")

func TestGuard_DoPropagatesOpError(t *testing.T) {
	g := NewGuard()
	_, err := g.Do(context.Background(), "k", func(context.Context) (any, error) {
		return nil, errSentinel
	})
	assert.ErrorIs(t, err, errSentinel)
}
