package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Config struct {
	HTTPAddr           string
	GoogleClientID     string
	GoogleClientSecret string
	PostgresURI        string
	RedisURI           string
	FrontendURL        string
	R2                 R2
	SecretKey          string
	CookieName         string

	PollInterval            time.Duration
	DefaultPostTimeout      time.Duration
	DefaultWaitBetweenPosts time.Duration
	ParallelAccounts        bool
	MaxParallelAccounts     int
	SchedulerConcurrency    int

	LoginRefreshSpec string
	NotifyChannel    string

	LogLevel  slog.Level
	LogFormat string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":3000"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		PostgresURI:        getEnv("POSTGRES_URI", ""),
		RedisURI:           getEnv("REDIS_URI", "localhost:6379"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey:        getEnv("SECRET_KEY", ""),
		CookieName:       getEnv("COOKIE_NAME", "crosspost_token"),
		LoginRefreshSpec: getEnv("LOGIN_REFRESH_SPEC", "@every 10m"),
		NotifyChannel:    getEnv("NOTIFY_CHANNEL", "crosspost:notifications"),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.DefaultPostTimeout, err = getDuration("DEFAULT_POST_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DefaultWaitBetweenPosts, err = getDuration("DEFAULT_WAIT_BETWEEN_POSTS", 0); err != nil {
		return nil, err
	}
	if cfg.ParallelAccounts, err = getBool("PARALLEL_ACCOUNTS", false); err != nil {
		return nil, err
	}
	if cfg.MaxParallelAccounts, err = getInt("MAX_PARALLEL_ACCOUNTS", 4); err != nil {
		return nil, err
	}
	if cfg.SchedulerConcurrency, err = getInt("SCHEDULER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if cfg.SecretKey != "" {
		switch len(cfg.SecretKey) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("SECRET_KEY must be 16, 24 or 32 bytes, got %d", len(cfg.SecretKey))
		}
	}

	return cfg, nil
}

// RequireSecretKey fails when no SECRET_KEY is set. Commands that sign or
// verify tokens call it; migrate does not need one.
func (c *Config) RequireSecretKey() error {
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1", key)
	}
	return n, nil
}
