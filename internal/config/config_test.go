package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := newViper()
	v.Set("DATABASE_URL", "postgres://localhost/feedcast")

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.Plans.FreeLimit)
	assert.Equal(t, 100, cfg.Plans.ProLimit)
	assert.Equal(t, 720*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenTTL)
	assert.Equal(t, "@every 1m", cfg.Worker.ScanInterval)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, "log", cfg.Email.Provider)
	assert.False(t, cfg.Telegram.Polling)
}

func TestPlanLimitOverride(t *testing.T) {
	v := newViper()
	v.Set("DATABASE_URL", "postgres://localhost/feedcast")
	v.Set("PLAN_FREE_LIMIT", 2)
	v.Set("PLAN_PRO_LIMIT", 250)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Plans.FreeLimit)
	assert.Equal(t, 250, cfg.Plans.ProLimit)
}

func TestMissingDatabaseURL(t *testing.T) {
	_, err := FromViper(newViper())
	assert.EqualError(t, err, "DATABASE_URL is not set")
}

func TestRequireAuthSecret(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{Secret: "short"}}
	assert.Error(t, cfg.RequireAuthSecret())

	cfg.Auth.Secret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.RequireAuthSecret())
}
