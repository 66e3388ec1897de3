package policy

import "time"

// Option mutates a Policy under construction.
type Option func(*Policy)

// New builds a normalized Policy for the string form of a key,
// starting from defaults. If the options produce an invalid
// configuration, New falls back to the defaults for that key.
func New(key string, opts ...Option) Policy {
	return NewFromKey(ParseKey(key), opts...)
}

// NewFromKey is New for a structured Key.
func NewFromKey(key Key, opts ...Option) Policy {
	p := DefaultPolicyFor(key)
	for _, opt := range opts {
		opt(&p)
	}
	p.Key = key

	normalized, err := p.Normalize()
	if err != nil {
		return DefaultPolicyFor(key)
	}
	return normalized
}

func ID(id string) Option {
	return func(p *Policy) { p.ID = id }
}

func MaxRetries(n int) Option {
	return func(p *Policy) { p.Retry.MaxRetries = n }
}

func InitialDelay(d time.Duration) Option {
	return func(p *Policy) { p.Retry.InitialDelay = d }
}

func MaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.Retry.MaxDelay = d }
}

func Multiplier(m float64) Option {
	return func(p *Policy) { p.Retry.Multiplier = m }
}

func Jitter(kind JitterKind) Option {
	return func(p *Policy) { p.Retry.Jitter = kind }
}

func AttemptTimeout(d time.Duration) Option {
	return func(p *Policy) { p.Retry.AttemptTimeout = d }
}

func OverallTimeout(d time.Duration) Option {
	return func(p *Policy) { p.Retry.OverallTimeout = d }
}

// Classifier selects a registered classifier by name.
func Classifier(name string) Option {
	return func(p *Policy) { p.Retry.Classifier = name }
}

// ExponentialBackoff sets the delay range with equal jitter, the usual
// shape for calls shared by a fleet of clients.
func ExponentialBackoff(initial, max time.Duration) Option {
	return func(p *Policy) {
		p.Retry.InitialDelay = initial
		p.Retry.MaxDelay = max
		p.Retry.Jitter = JitterEqual
	}
}

// InteractiveDefaults tunes a policy for short user-facing calls:
// tight per-attempt deadlines and few retries, so a struggling upstream
// doesn't leave the UI hanging.
func InteractiveDefaults() Option {
	return func(p *Policy) {
		p.Retry.MaxRetries = 2
		p.Retry.AttemptTimeout = 5 * time.Second
		p.Retry.Jitter = JitterEqual
		p.Retry.Classifier = "default"
	}
}

// BackgroundDefaults tunes a policy for non-interactive calls with
// roomier deadlines.
func BackgroundDefaults() Option {
	return func(p *Policy) {
		p.Retry.MaxRetries = 3
		p.Retry.AttemptTimeout = 10 * time.Second
		p.Retry.Jitter = JitterEqual
		p.Retry.Classifier = "default"
	}
}
