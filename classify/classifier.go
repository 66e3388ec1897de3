// Package classify decides whether a failed attempt is worth retrying.
//
// Classifiers are pure: they map an error to an Outcome and never touch
// state, which keeps them trivially unit-testable. The executor owns
// everything stateful (attempt counting, backoff, sleeping).
package classify

import (
	"context"
	"errors"
	"net"
)

// Classifier maps an attempt error to an Outcome. A nil error must
// classify as OutcomeSuccess.
type Classifier interface {
	Classify(err error) Outcome
}

// Func adapts a plain function to the Classifier interface.
type Func func(err error) Outcome

func (f Func) Classify(err error) Outcome { return f(err) }

// Retryable adapts a boolean predicate to a Classifier. It mirrors the
// common "retryableErrors" override surface: the predicate fully
// replaces the default policy, except that nil errors still succeed and
// cancellation still aborts.
func Retryable(pred func(error) bool) Classifier {
	return Func(func(err error) Outcome {
		if err == nil {
			return Outcome{Kind: OutcomeSuccess, Reason: "success"}
		}
		var cancelled *CancelledError
		if errors.As(err, &cancelled) || errors.Is(err, context.Canceled) {
			return Outcome{Kind: OutcomeAbort, Reason: "cancelled"}
		}
		if pred(err) {
			return Outcome{Kind: OutcomeRetryable, Reason: "predicate_retryable"}
		}
		return Outcome{Kind: OutcomeNonRetryable, Reason: "predicate_non_retryable"}
	})
}

// Default classifies per the standard remote-call policy: timeouts,
// transport failures, 5xx and 429 are retryable; cancellation aborts;
// everything else (other 4xx, parse failures, business rejections) is
// non-retryable.
type Default struct{}

func (Default) Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess, Reason: "success"}
	}

	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		return Outcome{Kind: OutcomeAbort, Reason: "cancelled"}
	}
	if errors.Is(err, context.Canceled) {
		return Outcome{Kind: OutcomeAbort, Reason: "context_canceled"}
	}

	var rateLimited *RateLimitedError
	if errors.As(err, &rateLimited) {
		return Outcome{
			Kind:            OutcomeRetryable,
			Reason:          "rate_limited",
			BackoffOverride: rateLimited.RetryAfter,
		}
	}

	var timeout *TimeoutError
	if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeRetryable, Reason: "timeout"}
	}

	var server *ServerError
	if errors.As(err, &server) {
		return Outcome{Kind: OutcomeRetryable, Reason: "server_error"}
	}

	var transport *TransportError
	if errors.As(err, &transport) {
		return Outcome{Kind: OutcomeRetryable, Reason: "transport_error"}
	}

	var already *AlreadyCompletedError
	if errors.As(err, &already) {
		return Outcome{Kind: OutcomeNonRetryable, Reason: "already_completed"}
	}

	var client *ClientError
	if errors.As(err, &client) {
		return Outcome{Kind: OutcomeNonRetryable, Reason: "client_error"}
	}

	// Bare net errors from call sites that don't wrap their transport.
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Outcome{Kind: OutcomeRetryable, Reason: "timeout"}
		}
		return Outcome{Kind: OutcomeRetryable, Reason: "transport_error"}
	}

	return Outcome{Kind: OutcomeNonRetryable, Reason: "non_retryable_error"}
}

// AlwaysRetryOnError classifies every error except cancellation as
// retryable. Useful for operations whose failures are uniformly
// transient.
type AlwaysRetryOnError struct{}

func (AlwaysRetryOnError) Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess, Reason: "success"}
	}
	var cancelled *CancelledError
	if errors.As(err, &cancelled) || errors.Is(err, context.Canceled) {
		return Outcome{Kind: OutcomeAbort, Reason: "cancelled"}
	}
	return Outcome{Kind: OutcomeRetryable, Reason: "retryable_error"}
}

// Built-in registry names.
const (
	ClassifierDefault = "default"
	ClassifierAlways  = "always"
)

// RegisterBuiltins registers the core classifiers into reg.
func RegisterBuiltins(reg *Registry) {
	if reg == nil {
		return
	}
	reg.Register(ClassifierDefault, Default{})
	reg.Register(ClassifierAlways, AlwaysRetryOnError{})
}
