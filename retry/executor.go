// Package retry executes remote operations with bounded, sequential
// retries: per-attempt deadlines, taxonomy-driven failure
// classification, capped exponential backoff, and full cancellation
// propagation. Every call produces an observe.Timeline of attempt
// records.
package retry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richesreach/recall/backoff"
	"github.com/richesreach/recall/classify"
	"github.com/richesreach/recall/clock"
	"github.com/richesreach/recall/observe"
	"github.com/richesreach/recall/policy"
)

// Operation is a remote call without a result value.
type Operation func(ctx context.Context) error

// OperationValue is a remote call producing a value.
type OperationValue[T any] func(ctx context.Context) (T, error)

// FailureMode controls behavior when a dependency (policy, classifier)
// is missing.
type FailureMode int

const (
	FailureModeUnknown FailureMode = iota
	// FailureDeny fails the call.
	FailureDeny
	// FailureAllow proceeds with a single attempt.
	FailureAllow
	// FailureFallback proceeds with defaults.
	FailureFallback
)

func failureModeString(mode FailureMode) string {
	switch mode {
	case FailureDeny:
		return "deny"
	case FailureAllow:
		return "allow"
	case FailureFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Executor orchestrates classifier, backoff, deadline wrapper, and
// clock across attempts. It holds no per-call state: concurrent calls
// through one Executor never interfere.
type Executor struct {
	provider              policy.Provider
	observer              observe.Observer
	clk                   clock.Clock
	classifiers           *classify.Registry
	defaultClassifier     classify.Classifier
	missingPolicyMode     FailureMode
	missingClassifierMode FailureMode
	recoverPanics         bool
}

// ExecutorOptions configures an Executor as a plain struct.
type ExecutorOptions struct {
	Provider              policy.Provider
	Observer              observe.Observer
	Clock                 clock.Clock
	Classifiers           *classify.Registry
	DefaultClassifier     classify.Classifier
	MissingPolicyMode     FailureMode
	MissingClassifierMode FailureMode
	RecoverPanics         bool
}

type executorConfig struct {
	opts           ExecutorOptions
	staticPolicies map[policy.Key]policy.Policy
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorConfig)

// WithProvider sets the policy provider.
func WithProvider(p policy.Provider) ExecutorOption {
	return func(c *executorConfig) { c.opts.Provider = p }
}

// WithObserver sets the observer.
func WithObserver(o observe.Observer) ExecutorOption {
	return func(c *executorConfig) { c.opts.Observer = o }
}

// WithClock sets the time source.
func WithClock(clk clock.Clock) ExecutorOption {
	return func(c *executorConfig) { c.opts.Clock = clk }
}

// WithClassifiers sets the classifier registry.
func WithClassifiers(r *classify.Registry) ExecutorOption {
	return func(c *executorConfig) { c.opts.Classifiers = r }
}

// WithDefaultClassifier sets the classifier used when a policy names
// none.
func WithDefaultClassifier(cls classify.Classifier) ExecutorOption {
	return func(c *executorConfig) { c.opts.DefaultClassifier = cls }
}

// WithMissingPolicyMode sets the mode for handling unresolvable
// policies.
func WithMissingPolicyMode(mode FailureMode) ExecutorOption {
	return func(c *executorConfig) { c.opts.MissingPolicyMode = mode }
}

// WithMissingClassifierMode sets the mode for handling unregistered
// classifier names.
func WithMissingClassifierMode(mode FailureMode) ExecutorOption {
	return func(c *executorConfig) { c.opts.MissingClassifierMode = mode }
}

// WithRecoverPanics captures panics in user-supplied operations,
// classifiers, and providers as *PanicError instead of crashing.
func WithRecoverPanics(recover bool) ExecutorOption {
	return func(c *executorConfig) { c.opts.RecoverPanics = recover }
}

// WithPolicy adds a static policy for a string key, e.g.
// WithPolicy("briefs.Complete", policy.MaxRetries(2)).
func WithPolicy(key string, opts ...policy.Option) ExecutorOption {
	return func(c *executorConfig) {
		if c.staticPolicies == nil {
			c.staticPolicies = make(map[policy.Key]policy.Policy)
		}
		p := policy.New(key, opts...)
		c.staticPolicies[p.Key] = p
	}
}

// WithPolicyKey adds a static policy for a structured key.
func WithPolicyKey(key policy.Key, opts ...policy.Option) ExecutorOption {
	return func(c *executorConfig) {
		if c.staticPolicies == nil {
			c.staticPolicies = make(map[policy.Key]policy.Policy)
		}
		p := policy.NewFromKey(key, opts...)
		c.staticPolicies[p.Key] = p
	}
}

// NewExecutor creates an Executor from functional options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	cfg := &executorConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.opts.Provider == nil && len(cfg.staticPolicies) > 0 {
		cfg.opts.Provider = &policy.StaticProvider{Policies: cfg.staticPolicies}
	}

	return NewExecutorFromOptions(cfg.opts)
}

// NewExecutorFromOptions creates an Executor from a config struct.
func NewExecutorFromOptions(opts ExecutorOptions) *Executor {
	e := &Executor{
		provider:              opts.Provider,
		observer:              opts.Observer,
		clk:                   opts.Clock,
		classifiers:           opts.Classifiers,
		defaultClassifier:     opts.DefaultClassifier,
		missingPolicyMode:     normalizeFailureMode(opts.MissingPolicyMode, FailureFallback),
		missingClassifierMode: normalizeFailureMode(opts.MissingClassifierMode, FailureFallback),
		recoverPanics:         opts.RecoverPanics,
	}

	if e.provider == nil {
		e.provider = &policy.StaticProvider{}
	}
	if e.observer == nil {
		e.observer = observe.NoopObserver{}
	}
	if e.clk == nil {
		e.clk = clock.System()
	}
	if e.classifiers == nil {
		e.classifiers = classify.NewRegistry()
		classify.RegisterBuiltins(e.classifiers)
	}
	if e.defaultClassifier == nil {
		e.defaultClassifier = classify.Default{}
	}

	return e
}

func normalizeFailureMode(mode, fallback FailureMode) FailureMode {
	switch mode {
	case FailureDeny, FailureAllow, FailureFallback:
		return mode
	default:
		return fallback
	}
}

// Do executes op under the policy resolved for key.
func (e *Executor) Do(ctx context.Context, key policy.Key, op Operation) error {
	_, err := DoValue(ctx, e, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoWithTimeline executes op and returns the full attempt timeline.
func (e *Executor) DoWithTimeline(ctx context.Context, key policy.Key, op Operation) (observe.Timeline, error) {
	_, tl, err := DoValueWithTimeline(ctx, e, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return tl, err
}

// DoValue executes op under the policy resolved for key and returns
// its value.
func DoValue[T any](ctx context.Context, exec *Executor, key policy.Key, op OperationValue[T]) (T, error) {
	val, _, err := DoValueWithTimeline(ctx, exec, key, op)
	return val, err
}

// DoValueWithTimeline is DoValue plus the attempt timeline, for
// callers and tests that assert attempt counts and backoff delays.
func DoValueWithTimeline[T any](ctx context.Context, exec *Executor, key policy.Key, op OperationValue[T]) (T, observe.Timeline, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	exec = ensureExecutor(exec)

	pol, attrs, err := exec.resolvePolicy(ctx, key)
	if err != nil {
		var zero T
		tl := observe.Timeline{
			CallID:     uuid.NewString(),
			Key:        key,
			Start:      exec.clk.Now(),
			End:        exec.clk.Now(),
			Attributes: attrs,
			FinalErr:   err,
		}
		exec.observer.OnStart(ctx, key, pol)
		exec.observer.OnFailure(ctx, key, tl)
		publishCapture(ctx, tl)
		return zero, tl, err
	}

	return doValue(ctx, exec, pol, attrs, op)
}

// DoValueWithPolicy executes op under an explicit per-call policy,
// bypassing the provider. The policy is normalized first; a
// fundamentally invalid one fails the call without an attempt.
func DoValueWithPolicy[T any](ctx context.Context, exec *Executor, pol policy.Policy, op OperationValue[T]) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	exec = ensureExecutor(exec)

	normalized, err := pol.Normalize()
	if err != nil {
		var zero T
		return zero, err
	}
	val, _, err := doValue(ctx, exec, normalized, nil, op)
	return val, err
}

func ensureExecutor(exec *Executor) *Executor {
	if exec == nil {
		return NewExecutor()
	}
	if exec.provider == nil || exec.observer == nil || exec.clk == nil ||
		exec.classifiers == nil || exec.defaultClassifier == nil {
		return NewExecutorFromOptions(ExecutorOptions{
			Provider:              exec.provider,
			Observer:              exec.observer,
			Clock:                 exec.clk,
			Classifiers:           exec.classifiers,
			DefaultClassifier:     exec.defaultClassifier,
			MissingPolicyMode:     exec.missingPolicyMode,
			MissingClassifierMode: exec.missingClassifierMode,
			RecoverPanics:         exec.recoverPanics,
		})
	}
	return exec
}

func doValue[T any](ctx context.Context, exec *Executor, pol policy.Policy, attrs map[string]string, op OperationValue[T]) (T, observe.Timeline, error) {
	key := pol.Key
	cfg := pol.Retry
	maxAttempts := cfg.MaxRetries + 1

	tl := observe.Timeline{
		CallID:     uuid.NewString(),
		Key:        key,
		PolicyID:   pol.ID,
		Start:      exec.clk.Now(),
		Attributes: attrs,
		Attempts:   make([]observe.AttemptRecord, 0, maxAttempts),
	}
	exec.observer.OnStart(ctx, key, pol)

	classifier, cmeta, err := exec.resolveClassifier(pol)
	if err != nil {
		return finishFailure[T](ctx, exec, &tl, key, err, *new(T))
	}
	if cmeta.notFound {
		if tl.Attributes == nil {
			tl.Attributes = make(map[string]string, 2)
		}
		tl.Attributes["classifier_name"] = cmeta.requested
		tl.Attributes["classifier_fallback"] = "default"
	}

	if cfg.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.OverallTimeout)
		defer cancel()
	}

	// Nested calls inside op must not clobber this call's capture.
	attemptCtx := observe.WithoutCapture(ctx)

	var last T
	var lastErr error
	var delay time.Duration

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return finishFailure(ctx, exec, &tl, key, settlementError(ctx, 0), last)
		}

		rec := observe.AttemptRecord{
			Attempt:   attempt,
			StartTime: exec.clk.Now(),
			Backoff:   delay,
		}

		val, err := runWithDeadline(attemptCtx, cfg.AttemptTimeout, exec.recoverPanics, op)
		var pe *PanicError
		if errors.As(err, &pe) && pe.Key == (policy.Key{}) {
			pe.Key = key
		}
		rec.EndTime = exec.clk.Now()
		rec.Err = err
		last, lastErr = val, err

		out, panicErr := classifyWithRecovery(exec.recoverPanics, classifier, err, key)
		rec.Outcome = out
		tl.Attempts = append(tl.Attempts, rec)
		exec.observer.OnAttempt(ctx, key, rec)

		if panicErr != nil {
			return finishFailure(ctx, exec, &tl, key, panicErr, last)
		}

		if out.Kind == classify.OutcomeSuccess {
			tl.End = exec.clk.Now()
			tl.FinalErr = nil
			exec.observer.OnSuccess(ctx, key, tl)
			publishCapture(ctx, tl)
			return val, tl, nil
		}

		terminal := out.Kind == classify.OutcomeNonRetryable || out.Kind == classify.OutcomeAbort
		if terminal || attempt == maxAttempts-1 {
			return finishFailure(ctx, exec, &tl, key, terminalError(lastErr, out), last)
		}

		delay = backoff.Delay(cfg, attempt, out.BackoffOverride)
		if delay > 0 {
			if err := exec.clk.Sleep(ctx, delay); err != nil {
				return finishFailure(ctx, exec, &tl, key, settlementError(ctx, 0), last)
			}
		}
	}

	// Unreachable: the loop always returns.
	return finishFailure(ctx, exec, &tl, key, lastErr, last)
}

func finishFailure[T any](ctx context.Context, exec *Executor, tl *observe.Timeline, key policy.Key, err error, last T) (T, observe.Timeline, error) {
	tl.End = exec.clk.Now()
	tl.FinalErr = err
	exec.observer.OnFailure(ctx, key, *tl)
	publishCapture(ctx, *tl)
	return last, *tl, err
}

func publishCapture(ctx context.Context, tl observe.Timeline) {
	if capture, ok := observe.CaptureFromContext(ctx); ok {
		observe.StoreCapture(capture, &tl)
	}
}

// terminalError surfaces the operation's own error unchanged; callers
// branch on the original cause, never on a wrapper.
func terminalError(opErr error, out classify.Outcome) error {
	if opErr != nil {
		return opErr
	}
	if out.Reason != "" {
		return errors.New("recall: " + out.Reason)
	}
	return errors.New("recall: operation failed")
}

func (e *Executor) resolvePolicy(ctx context.Context, key policy.Key) (policy.Policy, map[string]string, error) {
	var attrs map[string]string
	setAttr := func(k, v string) {
		if attrs == nil {
			attrs = make(map[string]string, 2)
		}
		attrs[k] = v
	}

	var pol policy.Policy
	var err error
	func() {
		if e.recoverPanics {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{
						Component: "policy_provider",
						Key:       key,
						Value:     r,
						Stack:     debug.Stack(),
					}
				}
			}()
		}
		pol, err = e.provider.PolicyFor(ctx, key)
	}()

	if err != nil {
		switch e.missingPolicyMode {
		case FailureDeny:
			return policy.Policy{}, attrs, &NoPolicyError{Key: key, Err: err}
		case FailureAllow:
			pol = policy.Policy{Key: key} // single attempt after normalization
			setAttr("policy_fallback", failureModeString(FailureAllow))
		default:
			if pol.IsZero() {
				pol = policy.DefaultPolicyFor(key)
			}
			setAttr("policy_fallback", failureModeString(FailureFallback))
		}
	}
	if pol.IsZero() {
		pol = policy.DefaultPolicyFor(key)
	}
	pol.Key = key

	pol, normErr := pol.Normalize()
	if normErr != nil {
		switch e.missingPolicyMode {
		case FailureDeny:
			return policy.Policy{}, attrs, &NoPolicyError{Key: key, Err: normErr}
		default:
			pol = policy.DefaultPolicyFor(key)
			pol, _ = pol.Normalize()
		}
		setAttr("policy_error", fmt.Sprintf("normalization_failed: %v", normErr))
	}

	return pol, attrs, nil
}

type classifierMeta struct {
	requested string
	notFound  bool
}

func (e *Executor) resolveClassifier(pol policy.Policy) (classify.Classifier, classifierMeta, error) {
	meta := classifierMeta{requested: strings.TrimSpace(pol.Retry.Classifier)}

	if meta.requested == "" {
		return e.defaultClassifier, meta, nil
	}

	if c, ok := e.classifiers.Get(meta.requested); ok {
		return c, meta, nil
	}

	meta.notFound = true
	if e.missingClassifierMode == FailureDeny {
		return nil, meta, &NoClassifierError{Name: meta.requested}
	}
	return e.defaultClassifier, meta, nil
}

func classifyWithRecovery(recoverPanics bool, classifier classify.Classifier, err error, key policy.Key) (out classify.Outcome, panicErr error) {
	if recoverPanics {
		defer func() {
			if r := recover(); r != nil {
				out = classify.Outcome{Kind: classify.OutcomeAbort, Reason: "panic_in_classifier"}
				panicErr = &PanicError{
					Component: "classifier",
					Key:       key,
					Value:     r,
					Stack:     debug.Stack(),
				}
			}
		}()
	}
	out = classifier.Classify(err)
	if out.Kind == classify.OutcomeUnknown {
		if out.Reason == "" {
			out.Reason = "unknown_outcome"
		}
		out.Kind = classify.OutcomeAbort
	}
	if out.Reason == "" {
		out.Reason = out.Kind.String()
	}
	return out, nil
}
