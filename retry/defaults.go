package retry

import (
	"github.com/richesreach/recall/classify"
	"github.com/richesreach/recall/observe"
)

// DefaultOption is an alias for ExecutorOption for ergonomics.
type DefaultOption = ExecutorOption

// NewDefaultExecutor creates an Executor with conservative defaults:
// built-in classifiers registered, the standard remote-call classifier
// as default, no observer, and missing policies falling back to the
// baseline configuration.
func NewDefaultExecutor(opts ...DefaultOption) *Executor {
	// Registries are constructed fresh to avoid shared mutable state
	// between executors.
	classifierReg := classify.NewRegistry()
	classify.RegisterBuiltins(classifierReg)

	defaultOpts := []ExecutorOption{
		WithObserver(observe.NoopObserver{}),
		WithClassifiers(classifierReg),
		WithDefaultClassifier(classify.Default{}),
		WithMissingPolicyMode(FailureFallback),
	}

	defaultOpts = append(defaultOpts, opts...)

	return NewExecutor(defaultOpts...)
}
