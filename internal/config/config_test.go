package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"
	cfg.LogLevel = "loud"
	cfg.Engine.MinPassRate = 1.5
	cfg.Market.VoidAfter.Duration = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "min_pass_rate")
	assert.Contains(t, err.Error(), "void_after")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "worker"

[engine]
max_principal_cents = 1000_00
min_pass_rate = 0.8
lock_ttl = "30s"

[market]
void_after = "48h"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "worker", cfg.Mode)
	assert.Equal(t, int64(1000_00), cfg.Engine.MaxPrincipalCents)
	assert.Equal(t, 0.8, cfg.Engine.MinPassRate)
	assert.Equal(t, "30s", cfg.Engine.LockTTL.Duration.String())
	assert.Equal(t, "48h0m0s", cfg.Market.VoidAfter.Duration.String())
	// Untouched sections keep their defaults.
	assert.Equal(t, []int{7, 14, 21, 30}, cfg.Engine.AllowedDurations)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AURA_MODE", "server")
	t.Setenv("AURA_ENGINE_ALLOWED_DURATIONS", "7, 30")
	t.Setenv("AURA_ENGINE_MAX_PRINCIPAL_CENTS", "25000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, []int{7, 30}, cfg.Engine.AllowedDurations)
	assert.Equal(t, int64(25000), cfg.Engine.MaxPrincipalCents)
}
