package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "fs", cfg.BlobDriver)
	assert.Equal(t, 8*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.StatsTTL)
	assert.Equal(t, []string{"log"}, cfg.NotifyChannels)
	assert.True(t, cfg.AutoNotify)
	assert.Equal(t, "/auth/google/callback", cfg.GoogleRedirectURI)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("PUBLIC_URL", "https://exams.example.com/")
	t.Setenv("DB_DRIVER", "Mongo")
	t.Setenv("STATS_TTL", "30s")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("NOTIFY_CHANNELS", "function, AMQP ,,")
	t.Setenv("AUTO_NOTIFY", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg := FromEnv()

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "https://exams.example.com", cfg.PublicURL)
	assert.Equal(t, "mongo", cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.StatsTTL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"function", "amqp"}, cfg.NotifyChannels)
	assert.False(t, cfg.AutoNotify)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "https://exams.example.com/auth/google/callback", cfg.GoogleRedirectURI)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("EXAMDESK_DOTENV_VALUE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("EXAMDESK_DOTENV_VALUE") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("EXAMDESK_DOTENV_VALUE"))
}
