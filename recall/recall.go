// Package recall is the convenience facade: string-keyed Do/DoValue on
// a process-wide default executor, and RunOnce on a process-wide guard
// for single-shot side effects. Applications that want explicit
// dependency injection use retry.Executor and idempotency.Guard
// directly; this package exists for call sites that do not.
package recall

import (
	"context"
	"sync"

	"github.com/richesreach/recall/idempotency"
	"github.com/richesreach/recall/policy"
	"github.com/richesreach/recall/retry"
)

// Key is the structured form of a policy key.
type Key = policy.Key

// ParseKey parses "namespace.name" into a Key.
func ParseKey(s string) Key { return policy.ParseKey(s) }

// Init sets the global default executor. Call it once at application
// startup, before Do/DoValue are used.
func Init(exec *retry.Executor) {
	retry.SetGlobal(exec)
}

// Do executes op using the default executor and the policy for key.
func Do(ctx context.Context, key string, op retry.Operation) error {
	return retry.DefaultExecutor().Do(ctx, policy.ParseKey(key), op)
}

// DoValue executes op using the default executor and the policy for key.
func DoValue[T any](ctx context.Context, key string, op retry.OperationValue[T]) (T, error) {
	return retry.DoValue(ctx, retry.DefaultExecutor(), policy.ParseKey(key), op)
}

var (
	guardOnce sync.Once
	guard     *idempotency.Guard
)

// DefaultGuard returns the process-wide idempotency guard, creating it
// on first use.
func DefaultGuard() *idempotency.Guard {
	guardOnce.Do(func() {
		guard = idempotency.NewGuard()
	})
	return guard
}

// SetGuard configures the process-wide guard. It must be called before
// DefaultGuard is first used; afterwards it does nothing.
func SetGuard(g *idempotency.Guard) {
	if g == nil {
		return
	}
	guardOnce.Do(func() {
		guard = g
	})
}

// RunOnce executes op at most once per idempotency key on the default
// guard, retrying each invocation under the policy for policyKey. Two
// concurrent callers share one invocation; callers after completion
// get the cached value.
func RunOnce[T any](ctx context.Context, idemKey, policyKey string, op retry.OperationValue[T]) (T, error) {
	return idempotency.RunOnce(ctx, DefaultGuard(), idemKey, func(ctx context.Context) (T, error) {
		return DoValue(ctx, policyKey, op)
	})
}
