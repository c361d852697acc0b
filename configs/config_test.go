package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "POLL_INTERVAL", "DEFAULT_POST_TIMEOUT", "DEFAULT_WAIT_BETWEEN_POSTS",
		"PARALLEL_ACCOUNTS", "MAX_PARALLEL_ACCOUNTS", "SCHEDULER_CONCURRENCY", "LOG_LEVEL", "LOG_FORMAT", "SECRET_KEY"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.DefaultPostTimeout)
	assert.Zero(t, cfg.DefaultWaitBetweenPosts)
	assert.False(t, cfg.ParallelAccounts)
	assert.Equal(t, 4, cfg.MaxParallelAccounts)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "@every 10m", cfg.LoginRefreshSpec)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "500ms")
	t.Setenv("DEFAULT_WAIT_BETWEEN_POSTS", "30s")
	t.Setenv("PARALLEL_ACCOUNTS", "true")
	t.Setenv("MAX_PARALLEL_ACCOUNTS", "8")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.DefaultWaitBetweenPosts)
	assert.True(t, cfg.ParallelAccounts)
	assert.Equal(t, 8, cfg.MaxParallelAccounts)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":      {"POLL_INTERVAL", "soon"},
		"negative duration": {"DEFAULT_POST_TIMEOUT", "-1s"},
		"bad bool":          {"PARALLEL_ACCOUNTS", "maybe"},
		"zero workers":      {"MAX_PARALLEL_ACCOUNTS", "0"},
		"bad level":         {"LOG_LEVEL", "loud"},
		"bad key length":    {"SECRET_KEY", "short"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfig_RequireSecretKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.EqualError(t, cfg.RequireSecretKey(), "SECRET_KEY is required")

	t.Setenv("SECRET_KEY", "0123456789abcdef")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.NoError(t, cfg.RequireSecretKey())
}
