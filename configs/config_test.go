package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PUBLISH_MAX_ATTEMPTS", "")
	t.Setenv("PUBLISH_BASE_DELAY", "")
	t.Setenv("R2_BUCKET_NAME", "")

	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.PublishMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.PublishBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.PublishMaxDelay)
	assert.Equal(t, 3*time.Second, cfg.HealthTimeout)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxImageBytes)
	assert.Equal(t, int64(512*1024*1024), cfg.MaxVideoBytes)
	assert.False(t, cfg.R2.Enabled())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("PUBLISH_MAX_ATTEMPTS", "5")
	t.Setenv("PUBLISH_BASE_DELAY", "250ms")
	t.Setenv("BACKEND_URL", "http://backend:9000/api")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.PublishMaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.PublishBaseDelay)
	assert.Equal(t, "http://backend:9000/api", cfg.BackendURL)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PUBLISH_MAX_ATTEMPTS", "lots")
	t.Setenv("HEALTH_TIMEOUT", "-1s")

	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.PublishMaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.HealthTimeout)
}

func TestR2Enabled(t *testing.T) {
	r2 := R2{BucketName: "media", AccessKey: "a", SecretKey: "s"}
	assert.True(t, r2.Enabled())

	r2.SecretKey = ""
	assert.False(t, r2.Enabled())
}
