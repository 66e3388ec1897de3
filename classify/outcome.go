package classify

import "time"

// OutcomeKind describes the executor's decision about an attempt result.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeSuccess
	OutcomeRetryable
	OutcomeNonRetryable
	OutcomeAbort
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeNonRetryable:
		return "non_retryable"
	case OutcomeAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Outcome is the classification of a single attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string

	// BackoffOverride, when set, replaces the computed backoff before
	// the next attempt (server-supplied Retry-After hints).
	BackoffOverride time.Duration
}
