// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; required by server, migrate, syncer, and seed.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// TNSBaseURL is the Transient Name Server base URL (e.g. https://www.wis-tns.org).
	TNSBaseURL string `mapstructure:"TNS_BASE_URL"`
	// TNSFetchTimeout is the per-call timeout for TNS search/object requests (e.g. "10s").
	TNSFetchTimeout string `mapstructure:"TNS_FETCH_TIMEOUT"`
	// TNSReportTimeout is the per-call timeout for TNS file-upload and bulk-report requests (e.g. "30s").
	TNSReportTimeout string `mapstructure:"TNS_REPORT_TIMEOUT"`
	// CredentialsKey is the 32-byte AES key for robot credential blobs, raw, base64, or hex encoded.
	CredentialsKey string `mapstructure:"CREDENTIALS_KEY"`
	// RedisAddr is the redis address for client-refresh notifications; empty disables publishing.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) used to sign access tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key used to validate access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "broker-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "broker-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// TaskWorkers is the number of goroutines serving the detached task queue.
	TaskWorkers int `mapstructure:"TASK_WORKERS"`
	// TaskQueueSize is the capacity of the detached task queue.
	TaskQueueSize int `mapstructure:"TASK_QUEUE_SIZE"`
	// SyncCron is the cron spec for the periodic TNS bulk retrieval (syncer binary).
	SyncCron string `mapstructure:"TNS_SYNC_CRON"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("TNS_BASE_URL", "https://sandbox.wis-tns.org")
	v.SetDefault("TNS_FETCH_TIMEOUT", "10s")
	v.SetDefault("TNS_REPORT_TIMEOUT", "30s")
	v.SetDefault("CREDENTIALS_KEY", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("JWT_ISSUER", "broker-auth")
	v.SetDefault("JWT_AUDIENCE", "broker-api")
	v.SetDefault("TASK_WORKERS", 4)
	v.SetDefault("TASK_QUEUE_SIZE", 64)
	v.SetDefault("TNS_SYNC_CRON", "@hourly")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.TNSBaseURL == "" {
		return nil, errors.New("config: TNS_BASE_URL must be set")
	}
	if cfg.TaskWorkers <= 0 {
		return nil, fmt.Errorf("config: TASK_WORKERS must be positive, got %d", cfg.TaskWorkers)
	}
	if cfg.TaskQueueSize <= 0 {
		return nil, fmt.Errorf("config: TASK_QUEUE_SIZE must be positive, got %d", cfg.TaskQueueSize)
	}

	return &cfg, nil
}

// FetchTimeout parses TNSFetchTimeout as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) FetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.TNSFetchTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// ReportTimeout parses TNSReportTimeout as a time.Duration. Returns 30s if unset or invalid.
func (c *Config) ReportTimeout() time.Duration {
	d, err := time.ParseDuration(c.TNSReportTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
