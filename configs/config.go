package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// Enabled reports whether staged media should go to R2 instead of the backend's upload endpoint.
func (r R2) Enabled() bool {
	return r.BucketName != "" && r.AccessKey != "" && r.SecretKey != ""
}

type Config struct {
	Port        string
	FrontendURL string
	LogLevel    string

	BackendURL     string
	BackendTimeout time.Duration

	HealthTimeout     time.Duration
	HealthTTL         time.Duration
	HealthRefreshSpec string
	DueSweepSpec      string

	PublishMaxAttempts int
	PublishBaseDelay   time.Duration
	PublishMaxDelay    time.Duration

	StagingDir    string
	MaxImageBytes int64
	MaxVideoBytes int64

	PostgresURI string
	RedisURI    string
	R2          R2
	SecretKey   string
	CookieName  string
}

func LoadConfig() *Config {
	return &Config{
		Port:               getEnv("PORT", "3000"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8000/api"),
		BackendTimeout:     getEnvDuration("BACKEND_TIMEOUT", 60*time.Second),
		HealthTimeout:      getEnvDuration("HEALTH_TIMEOUT", 3*time.Second),
		HealthTTL:          getEnvDuration("HEALTH_TTL", 30*time.Second),
		HealthRefreshSpec:  getEnv("HEALTH_REFRESH_SPEC", "@every 30s"),
		DueSweepSpec:       getEnv("DUE_SWEEP_SPEC", "@every 1m"),
		PublishMaxAttempts: getEnvInt("PUBLISH_MAX_ATTEMPTS", 3),
		PublishBaseDelay:   getEnvDuration("PUBLISH_BASE_DELAY", 2*time.Second),
		PublishMaxDelay:    getEnvDuration("PUBLISH_MAX_DELAY", 30*time.Second),
		StagingDir:         getEnv("STAGING_DIR", filepath.Join(os.TempDir(), "postflow_staging")),
		MaxImageBytes:      int64(getEnvInt("MAX_IMAGE_BYTES", 5*1024*1024)),
		MaxVideoBytes:      int64(getEnvInt("MAX_VIDEO_BYTES", 512*1024*1024)),
		PostgresURI:        getEnv("POSTGRES_URI", ""),
		RedisURI:           getEnv("REDIS_URI", ""),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "postflow_session"),
	}
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return d
}
