package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep a developer .env out of the test
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TOKEN_ENCRYPTION_KEY", "test-encryption-key")

	LoadConfig()
	require.NotNil(t, Cfg)

	assert.Equal(t, "8080", Cfg.Port)
	assert.Equal(t, "sandbox", Cfg.PlaidEnv)
	assert.Equal(t, 20*time.Second, Cfg.ProviderTimeout)
	assert.Equal(t, 90*time.Second, Cfg.SyncFetchTimeout)
	assert.Equal(t, 30, Cfg.SyncWindowDays)
	assert.Equal(t, 4, Cfg.SyncConcurrency)
	assert.Equal(t, 720*time.Hour, Cfg.IntegrationRetention)
	assert.Equal(t, []string{"http://localhost:3000"}, Cfg.AllowedOrigins)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TOKEN_ENCRYPTION_KEY", "test-encryption-key")
	t.Setenv("PROVIDER_TIMEOUT", "15s")
	t.Setenv("SYNC_FETCH_TIMEOUT", "5s")
	t.Setenv("SYNC_WINDOW_DAYS", "-3")
	t.Setenv("SYNC_CONCURRENCY", "2")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	LoadConfig()

	assert.Equal(t, 15*time.Second, Cfg.ProviderTimeout)
	assert.Equal(t, 15*time.Second, Cfg.SyncFetchTimeout, "the fetch budget never undercuts a single call")
	assert.Equal(t, 30, Cfg.SyncWindowDays)
	assert.Equal(t, 2, Cfg.SyncConcurrency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, Cfg.AllowedOrigins)
}

func TestGetEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("FF_TEST_INT", "not-a-number")
	t.Setenv("FF_TEST_DURATION", "soon")

	assert.Equal(t, 7, getEnvAsInt("FF_TEST_INT", 7))
	assert.Equal(t, time.Minute, getEnvAsDuration("FF_TEST_DURATION", time.Minute))
	assert.Equal(t, "fallback", getEnv("FF_TEST_UNSET_KEY", "fallback"))
}
