package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richesreach/recall/policy"
)

func writePolicyFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writePolicyFile(t, `
defaults:
  max_retries: 2
  initial_delay: 500ms
  max_delay: 5s
policies:
  - key: briefs.Complete
    id: briefs-complete-v1
    max_retries: 1
    attempt_timeout: 5s
  - key: ai.Chat
    initial_delay: 250ms
    classifier: always
`)

	provider, err := LoadFile(path)
	require.NoError(t, err)

	pol, err := provider.PolicyFor(context.Background(), policy.ParseKey("briefs.Complete"))
	require.NoError(t, err)
	assert.Equal(t, "briefs-complete-v1", pol.ID)
	assert.Equal(t, 1, pol.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, pol.Retry.InitialDelay, "unset fields inherit the file defaults")
	assert.Equal(t, 5*time.Second, pol.Retry.AttemptTimeout)

	pol, err = provider.PolicyFor(context.Background(), policy.ParseKey("ai.Chat"))
	require.NoError(t, err)
	assert.Equal(t, 2, pol.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, pol.Retry.InitialDelay)
	assert.Equal(t, "always", pol.Retry.Classifier)

	// An unknown key resolves to the file defaults.
	pol, err = provider.PolicyFor(context.Background(), policy.ParseKey("other.Op"))
	require.NoError(t, err)
	assert.Equal(t, 2, pol.Retry.MaxRetries)
	assert.Equal(t, 5*time.Second, pol.Retry.MaxDelay)
}

func TestLoadFile_ExplicitZeroMaxRetries(t *testing.T) {
	path := writePolicyFile(t, `
policies:
  - key: briefs.Complete
    max_retries: 0
`)

	provider, err := LoadFile(path)
	require.NoError(t, err)

	pol, err := provider.PolicyFor(context.Background(), policy.ParseKey("briefs.Complete"))
	require.NoError(t, err)
	assert.Equal(t, 0, pol.Retry.MaxRetries, "max_retries: 0 means a single attempt, not the default")
}

func TestLoadFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadFile(writePolicyFile(t, "policies: [unterminated"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := LoadFile(writePolicyFile(t, `
policies:
  - key: a.b
    initial_delay: soon
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "initial_delay")
	})

	t.Run("entry without key", func(t *testing.T) {
		_, err := LoadFile(writePolicyFile(t, `
policies:
  - max_retries: 1
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing key")
	})

	t.Run("invalid jitter", func(t *testing.T) {
		_, err := LoadFile(writePolicyFile(t, `
defaults:
  jitter: sometimes
`))
		assert.Error(t, err)
	})
}

func TestLoadEnv_Defaults(t *testing.T) {
	env, err := LoadEnv()
	require.NoError(t, err)

	cfg := env.RetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Equal(t, policy.JitterNone, cfg.Jitter)
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("RECALL_MAX_RETRIES", "1")
	t.Setenv("RECALL_INITIAL_DELAY", "200ms")
	t.Setenv("RECALL_JITTER", "equal")
	t.Setenv("RECALL_CLASSIFIER", "always")

	env, err := LoadEnv()
	require.NoError(t, err)

	cfg := env.RetryConfig()
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, policy.JitterEqual, cfg.Jitter)
	assert.Equal(t, "always", cfg.Classifier)
}

func TestLoadEnv_Malformed(t *testing.T) {
	t.Setenv("RECALL_INITIAL_DELAY", "not-a-duration")
	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("RECALL_MAX_RETRIES", "2")
	t.Setenv("RECALL_POLICY_FILE", "")

	provider, err := Load()
	require.NoError(t, err)

	pol, err := provider.PolicyFor(context.Background(), policy.ParseKey("any.Op"))
	require.NoError(t, err)
	assert.Equal(t, "env-defaults", pol.ID)
	assert.Equal(t, 2, pol.Retry.MaxRetries)
}

func TestLoad_FileWithEnvFallback(t *testing.T) {
	path := writePolicyFile(t, `
policies:
  - key: briefs.Complete
    max_retries: 1
`)
	t.Setenv("RECALL_POLICY_FILE", path)
	t.Setenv("RECALL_MAX_RETRIES", "5")

	provider, err := Load()
	require.NoError(t, err)

	pol, err := provider.PolicyFor(context.Background(), policy.ParseKey("briefs.Complete"))
	require.NoError(t, err)
	assert.Equal(t, 1, pol.Retry.MaxRetries)

	pol, err = provider.PolicyFor(context.Background(), policy.ParseKey("unlisted.Op"))
	require.NoError(t, err)
	assert.Equal(t, "env-defaults", pol.ID)
	assert.Equal(t, 5, pol.Retry.MaxRetries)
}
