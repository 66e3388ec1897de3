// Package config loads retry policies from YAML files and environment
// overrides, producing a policy.StaticProvider ready to hand to an
// executor. Durations are written as Go duration strings ("1s",
// "250ms").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/richesreach/recall/policy"
)

// RetrySettings mirrors policy.RetryConfig in file form. Absent fields
// keep whatever the base config carries; MaxRetries is a pointer so an
// explicit 0 (single attempt) is distinguishable from absent.
type RetrySettings struct {
	MaxRetries     *int    `yaml:"max_retries"`
	InitialDelay   string  `yaml:"initial_delay"`
	MaxDelay       string  `yaml:"max_delay"`
	Multiplier     float64 `yaml:"multiplier"`
	Jitter         string  `yaml:"jitter"`
	AttemptTimeout string  `yaml:"attempt_timeout"`
	OverallTimeout string  `yaml:"overall_timeout"`
	Classifier     string  `yaml:"classifier"`
}

// PolicySettings is one keyed policy entry.
type PolicySettings struct {
	Key           string `yaml:"key"`
	ID            string `yaml:"id"`
	RetrySettings `yaml:",inline"`
}

// PolicyFile is the document shape:
//
//	defaults:
//	  max_retries: 3
//	  initial_delay: 1s
//	policies:
//	  - key: briefs.Complete
//	    max_retries: 2
//	    attempt_timeout: 5s
type PolicyFile struct {
	Defaults RetrySettings    `yaml:"defaults"`
	Policies []PolicySettings `yaml:"policies"`
}

// LoadFile reads a policy file and builds a provider. File defaults
// are layered over the built-in defaults, each keyed entry over the
// file defaults, and the file defaults become the provider's fallback,
// so an unknown key still resolves.
func LoadFile(path string) (*policy.StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	provider, err := buildProvider(file)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return provider, nil
}

func buildProvider(file PolicyFile) (*policy.StaticProvider, error) {
	base, err := file.Defaults.apply(policy.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}

	fallback := policy.Policy{ID: "file-defaults", Retry: base}
	fallback, err = fallback.Normalize()
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}

	provider := &policy.StaticProvider{
		Policies: make(map[policy.Key]policy.Policy, len(file.Policies)),
		Fallback: &fallback,
	}

	for _, entry := range file.Policies {
		if entry.Key == "" {
			return nil, fmt.Errorf("policy entry missing key")
		}
		cfg, err := entry.RetrySettings.apply(base)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", entry.Key, err)
		}
		pol := policy.Policy{
			Key:   policy.ParseKey(entry.Key),
			ID:    entry.ID,
			Retry: cfg,
		}
		pol, err = pol.Normalize()
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", entry.Key, err)
		}
		provider.Policies[pol.Key] = pol
	}

	return provider, nil
}

// apply layers the settings over base, leaving absent fields alone.
func (s RetrySettings) apply(base policy.RetryConfig) (policy.RetryConfig, error) {
	cfg := base
	if s.MaxRetries != nil {
		cfg.MaxRetries = *s.MaxRetries
	}
	if err := setDuration(&cfg.InitialDelay, "initial_delay", s.InitialDelay); err != nil {
		return cfg, err
	}
	if err := setDuration(&cfg.MaxDelay, "max_delay", s.MaxDelay); err != nil {
		return cfg, err
	}
	if s.Multiplier != 0 {
		cfg.Multiplier = s.Multiplier
	}
	if s.Jitter != "" {
		cfg.Jitter = policy.JitterKind(s.Jitter)
	}
	if err := setDuration(&cfg.AttemptTimeout, "attempt_timeout", s.AttemptTimeout); err != nil {
		return cfg, err
	}
	if err := setDuration(&cfg.OverallTimeout, "overall_timeout", s.OverallTimeout); err != nil {
		return cfg, err
	}
	if s.Classifier != "" {
		cfg.Classifier = s.Classifier
	}
	return cfg, nil
}

func setDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
