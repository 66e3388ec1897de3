package policy

import "time"

// JitterKind selects how a computed backoff delay is randomized to
// desynchronize concurrent retriers.
type JitterKind string

const (
	JitterNone  JitterKind = "none"
	JitterFull  JitterKind = "full"  // uniform in [0, delay]
	JitterEqual JitterKind = "equal" // uniform in [delay/2, delay]
)

// RetryConfig is the per-call-site retry configuration. It is
// immutable once normalized; the executor never mutates it.
type RetryConfig struct {
	// MaxRetries is the number of retries beyond the first attempt, so
	// a persistently failing call makes MaxRetries+1 attempts total.
	MaxRetries int `json:"max_retries"`

	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"backoff_multiplier"`
	Jitter       JitterKind    `json:"jitter"`

	// AttemptTimeout bounds each attempt; OverallTimeout bounds the
	// whole call including backoff waits. Zero disables either.
	AttemptTimeout time.Duration `json:"attempt_timeout"`
	OverallTimeout time.Duration `json:"overall_timeout"`

	// Classifier optionally names a registered classifier. Empty means
	// the executor's default.
	Classifier string `json:"classifier,omitempty"`
}

type Source string

const (
	SourceUnknown Source = "unknown"
	SourceStatic  Source = "static"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceDefault Source = "default"
)

type NormalizationInfo struct {
	Changed       bool     `json:"-"`
	ChangedFields []string `json:"-"`
}

type Metadata struct {
	Source        Source            `json:"-"`
	Normalization NormalizationInfo `json:"-"`
}

// Policy binds a RetryConfig to the operation it governs.
type Policy struct {
	Key   Key         `json:"key"`
	ID    string      `json:"id,omitempty"`
	Retry RetryConfig `json:"retry"`

	Meta Metadata `json:"-"`
}

// DefaultRetryConfig returns the baseline configuration: 3 retries,
// 1s initial delay doubling up to 10s, no jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       JitterNone,
	}
}

// DefaultPolicyFor returns the baseline policy for key.
func DefaultPolicyFor(key Key) Policy {
	return Policy{
		Key:   key,
		Retry: DefaultRetryConfig(),
		Meta:  Metadata{Source: SourceDefault},
	}
}

const (
	maxRetriesCeiling    = 10
	minDelayFloor        = time.Millisecond
	maxDelayCeiling      = 30 * time.Second
	minTimeoutFloor      = time.Millisecond
	maxMultiplierCeiling = 10.0
)

// Normalize clamps out-of-range fields and records what changed.
// Fundamentally invalid configurations (an unknown jitter kind) return
// a NormalizeError. Zero delay/multiplier fields are filled from
// DefaultRetryConfig; MaxRetries stays as given so a zero means a
// single attempt.
func (p Policy) Normalize() (Policy, error) {
	normalized := p
	norm := &normalized.Meta.Normalization

	markChanged := func(field string) {
		norm.Changed = true
		for _, f := range norm.ChangedFields {
			if f == field {
				return
			}
		}
		norm.ChangedFields = append(norm.ChangedFields, field)
	}

	r := &normalized.Retry

	if r.MaxRetries < 0 {
		r.MaxRetries = 0
		markChanged("retry.max_retries")
	} else if r.MaxRetries > maxRetriesCeiling {
		r.MaxRetries = maxRetriesCeiling
		markChanged("retry.max_retries")
	}

	if r.InitialDelay <= 0 {
		r.InitialDelay = DefaultRetryConfig().InitialDelay
		markChanged("retry.initial_delay")
	}
	if r.InitialDelay < minDelayFloor {
		r.InitialDelay = minDelayFloor
		markChanged("retry.initial_delay")
	}

	if r.MaxDelay <= 0 {
		r.MaxDelay = DefaultRetryConfig().MaxDelay
		markChanged("retry.max_delay")
	}
	if r.MaxDelay > maxDelayCeiling {
		r.MaxDelay = maxDelayCeiling
		markChanged("retry.max_delay")
	}
	if r.MaxDelay < r.InitialDelay {
		r.MaxDelay = r.InitialDelay
		markChanged("retry.max_delay")
	}

	if r.Multiplier == 0 {
		r.Multiplier = DefaultRetryConfig().Multiplier
		markChanged("retry.backoff_multiplier")
	}
	if r.Multiplier < 1 {
		r.Multiplier = 1
		markChanged("retry.backoff_multiplier")
	} else if r.Multiplier > maxMultiplierCeiling {
		r.Multiplier = maxMultiplierCeiling
		markChanged("retry.backoff_multiplier")
	}

	switch r.Jitter {
	case "":
		r.Jitter = JitterNone
		markChanged("retry.jitter")
	case JitterNone, JitterFull, JitterEqual:
	default:
		return Policy{}, &NormalizeError{Field: "retry.jitter", Value: string(r.Jitter)}
	}

	if r.AttemptTimeout < 0 {
		r.AttemptTimeout = 0
		markChanged("retry.attempt_timeout")
	}
	if r.AttemptTimeout > 0 && r.AttemptTimeout < minTimeoutFloor {
		r.AttemptTimeout = minTimeoutFloor
		markChanged("retry.attempt_timeout")
	}

	if r.OverallTimeout < 0 {
		r.OverallTimeout = 0
		markChanged("retry.overall_timeout")
	}
	if r.OverallTimeout > 0 && r.OverallTimeout < minTimeoutFloor {
		r.OverallTimeout = minTimeoutFloor
		markChanged("retry.overall_timeout")
	}

	return normalized, nil
}

// IsZero reports whether p carries no configuration at all, which the
// executor treats as "use defaults".
func (p Policy) IsZero() bool {
	return p.Key == (Key{}) &&
		p.ID == "" &&
		p.Retry == (RetryConfig{}) &&
		p.Meta.Source == SourceUnknown &&
		!p.Meta.Normalization.Changed
}
