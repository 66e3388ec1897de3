package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/richesreach/recall/policy"
)

// EnvOverrides carries the retry defaults an operator can set through
// the environment, prefixed RECALL_ (e.g. RECALL_MAX_RETRIES=2).
type EnvOverrides struct {
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3"`
	InitialDelay   time.Duration `envconfig:"INITIAL_DELAY" default:"1s"`
	MaxDelay       time.Duration `envconfig:"MAX_DELAY" default:"10s"`
	Multiplier     float64       `envconfig:"MULTIPLIER" default:"2"`
	Jitter         string        `envconfig:"JITTER" default:"none"`
	AttemptTimeout time.Duration `envconfig:"ATTEMPT_TIMEOUT" default:"0"`
	OverallTimeout time.Duration `envconfig:"OVERALL_TIMEOUT" default:"0"`
	Classifier     string        `envconfig:"CLASSIFIER" default:""`

	// PolicyFile points at a YAML policy file; see LoadFile.
	PolicyFile string `envconfig:"POLICY_FILE" default:""`
}

// LoadEnv reads overrides from the environment, after loading .env if
// one is present.
func LoadEnv() (*EnvOverrides, error) {
	_ = godotenv.Load()
	var v EnvOverrides
	if err := envconfig.Process("RECALL", &v); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &v, nil
}

// RetryConfig converts the overrides into a policy config.
func (v *EnvOverrides) RetryConfig() policy.RetryConfig {
	return policy.RetryConfig{
		MaxRetries:     v.MaxRetries,
		InitialDelay:   v.InitialDelay,
		MaxDelay:       v.MaxDelay,
		Multiplier:     v.Multiplier,
		Jitter:         policy.JitterKind(v.Jitter),
		AttemptTimeout: v.AttemptTimeout,
		OverallTimeout: v.OverallTimeout,
		Classifier:     v.Classifier,
	}
}

// Load builds a provider from the environment: when RECALL_POLICY_FILE
// names a file its policies are loaded, and the env-derived defaults
// replace the file's fallback; otherwise the provider holds only the
// env-derived fallback.
func Load() (*policy.StaticProvider, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}

	fallback := policy.Policy{ID: "env-defaults", Retry: env.RetryConfig()}
	fallback, err = fallback.Normalize()
	if err != nil {
		return nil, fmt.Errorf("config: env defaults: %w", err)
	}

	if env.PolicyFile == "" {
		return &policy.StaticProvider{Fallback: &fallback}, nil
	}

	provider, err := LoadFile(env.PolicyFile)
	if err != nil {
		return nil, err
	}
	provider.Fallback = &fallback
	return provider, nil
}
