package retry

import (
	"errors"
	"fmt"

	"github.com/richesreach/recall/policy"
)

// ErrNoPolicy is returned when no policy is found for a key and the
// missing-policy mode is FailureDeny.
var ErrNoPolicy = errors.New("recall: no policy found")

// NoPolicyError reports the key that failed to resolve.
type NoPolicyError struct {
	Key policy.Key
	Err error
}

func (e *NoPolicyError) Error() string {
	return fmt.Sprintf("recall: policy not found for %s: %v", e.Key, e.Err)
}

func (e *NoPolicyError) Unwrap() error { return e.Err }

func (e *NoPolicyError) Is(target error) bool { return target == ErrNoPolicy }

// NoClassifierError reports a policy referencing an unregistered
// classifier under FailureDeny.
type NoClassifierError struct {
	Name string
}

func (e *NoClassifierError) Error() string {
	return fmt.Sprintf("recall: classifier not found: %s", e.Name)
}

// PanicError captures a panic raised by user-supplied code (operation,
// classifier, or provider) when panic recovery is enabled.
type PanicError struct {
	Component string
	Key       policy.Key
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("recall: panic in %s for %s: %v", e.Component, e.Key, e.Value)
}
