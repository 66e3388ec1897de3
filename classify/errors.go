package classify

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports that a deadline elapsed before the wrapped
// operation settled.
type TimeoutError struct {
	// After is the deadline that elapsed, when known.
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("recall: operation timed out after %s", e.After)
	}
	return "recall: operation timed out"
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded) match.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Timeout implements the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// CancelledError reports caller-initiated cancellation. It is always
// terminal: a cancelled call is never retried.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	if e.Err != nil {
		return "recall: call cancelled: " + e.Err.Error()
	}
	return "recall: call cancelled"
}

func (e *CancelledError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return context.Canceled
}

// TransportError reports a network/connection-level failure surfaced by
// the underlying call mechanism (connection refused, DNS, reset).
type TransportError struct {
	// Op optionally names the operation, e.g. "POST /briefs/complete".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("recall: transport failure during %s: %v", e.Op, e.Err)
	case e.Err != nil:
		return "recall: transport failure: " + e.Err.Error()
	default:
		return "recall: transport failure"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError reports an upstream 5xx response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("recall: upstream server error (status %d)", e.StatusCode)
}

// RateLimitedError reports an upstream 429. RetryAfter carries the
// server-supplied delay hint, or 0 when the response had none. The hint
// overrides the computed exponential backoff for the next attempt.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("recall: rate limited (retry after %s)", e.RetryAfter)
	}
	return "recall: rate limited"
}

// ClientError reports an upstream 4xx other than 429, or any
// successfully-parsed-but-semantically-failed response. Never retried.
type ClientError struct {
	StatusCode int
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("recall: client error (status %d)", e.StatusCode)
}

// AlreadyCompletedError reports that an idempotent side effect had
// already happened upstream (an HTTP 409 "already completed" style
// response). The idempotency guard treats it as completion, not as a
// failure to retry.
type AlreadyCompletedError struct {
	Detail string
}

func (e *AlreadyCompletedError) Error() string {
	if e.Detail != "" {
		return "recall: operation already completed: " + e.Detail
	}
	return "recall: operation already completed"
}

// FromHTTPStatus maps a non-2xx HTTP status to the error taxonomy.
// retryAfter is the parsed Retry-After hint, or 0. A 2xx status maps to
// nil.
func FromHTTPStatus(status int, retryAfter time.Duration) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 429:
		return &RateLimitedError{RetryAfter: retryAfter}
	case status >= 500 && status <= 599:
		return &ServerError{StatusCode: status}
	default:
		return &ClientError{StatusCode: status}
	}
}
