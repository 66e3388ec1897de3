package policy

import (
	"errors"
	"fmt"
)

// ErrPolicyNotFound is returned by providers that hold no policy for a
// key.
var ErrPolicyNotFound = errors.New("recall: policy not found")

// NormalizeError indicates a fundamentally invalid policy
// configuration that cannot be clamped into range.
type NormalizeError struct {
	Field string
	Value string
}

func (e *NormalizeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("recall: invalid policy config: %s=%q", e.Field, e.Value)
}
