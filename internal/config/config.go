// Package config defines the top-level configuration for the engine and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AURA_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Market   MarketConfig   `toml:"market"`
	Feed     FeedConfig     `toml:"feed"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds stake lifecycle parameters.
type EngineConfig struct {
	MaxPrincipalCents int64    `toml:"max_principal_cents"`
	AllowedDurations  []int    `toml:"allowed_durations"`
	MinPassRate       float64  `toml:"min_pass_rate"`
	AnnualYieldRate   float64  `toml:"annual_yield_rate"`
	ForfeitRate       float64  `toml:"forfeit_rate"`
	LockTTL           duration `toml:"lock_ttl"`
}

// MarketConfig holds prediction market parameters.
type MarketConfig struct {
	VoidAfter     duration `toml:"void_after"`
	SweepInterval duration `toml:"sweep_interval"`
	LockTTL       duration `toml:"lock_ttl"`
}

// FeedConfig holds reading-stream consumer parameters.
type FeedConfig struct {
	BatchSize    int      `toml:"batch_size"`
	PollInterval duration `toml:"poll_interval"`
}

// ArchiveConfig holds cold-storage retention parameters.
type ArchiveConfig struct {
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	APIKey        string   `toml:"api_key"`
	RateLimit     int      `toml:"rate_limit"`
	RateWindowSec int      `toml:"rate_window_sec"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "aurayield",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "aurayield-archive",
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			MaxPrincipalCents: 500_00,
			AllowedDurations:  []int{7, 14, 21, 30},
			MinPassRate:       1.0,
			AnnualYieldRate:   0.12,
			ForfeitRate:       0.20,
			LockTTL:           duration{10 * time.Second},
		},
		Market: MarketConfig{
			VoidAfter:     duration{72 * time.Hour},
			SweepInterval: duration{10 * time.Minute},
			LockTTL:       duration{10 * time.Second},
		},
		Feed: FeedConfig{
			BatchSize:    100,
			PollInterval: duration{2 * time.Second},
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:     120,
			RateWindowSec: 60,
		},
		Notify: NotifyConfig{
			Events: []string{"stake_settled", "market_resolved", "market_voided"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, worker, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Postgres.DSN == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host is required when dsn is not set")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: invalid port %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database is required when dsn is not set")
		}
		if c.Postgres.User == "" {
			errs = append(errs, "postgres: user is required when dsn is not set")
		}
	}
	if c.Postgres.PoolMaxConns < c.Postgres.PoolMinConns {
		errs = append(errs, "postgres: pool_max_conns must be >= pool_min_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr is required")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket is required when s3 is enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region is required when s3 is enabled")
		}
	}

	if c.Engine.MaxPrincipalCents <= 0 {
		errs = append(errs, "engine: max_principal_cents must be positive")
	}
	if len(c.Engine.AllowedDurations) == 0 {
		errs = append(errs, "engine: allowed_durations must not be empty")
	}
	for _, d := range c.Engine.AllowedDurations {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("engine: invalid duration %d in allowed_durations", d))
		}
	}
	if c.Engine.MinPassRate <= 0 || c.Engine.MinPassRate > 1 {
		errs = append(errs, fmt.Sprintf("engine: min_pass_rate %v must be in (0, 1]", c.Engine.MinPassRate))
	}
	if c.Engine.AnnualYieldRate <= 0 || c.Engine.AnnualYieldRate > 1 {
		errs = append(errs, fmt.Sprintf("engine: annual_yield_rate %v must be in (0, 1]", c.Engine.AnnualYieldRate))
	}
	if c.Engine.ForfeitRate <= 0 || c.Engine.ForfeitRate > 1 {
		errs = append(errs, fmt.Sprintf("engine: forfeit_rate %v must be in (0, 1]", c.Engine.ForfeitRate))
	}

	if c.Market.VoidAfter.Duration <= 0 {
		errs = append(errs, "market: void_after must be positive")
	}
	if c.Market.SweepInterval.Duration <= 0 {
		errs = append(errs, "market: sweep_interval must be positive")
	}

	if c.Feed.BatchSize <= 0 {
		errs = append(errs, "feed: batch_size must be positive")
	}
	if c.Feed.PollInterval.Duration <= 0 {
		errs = append(errs, "feed: poll_interval must be positive")
	}

	if c.Archive.RetentionDays <= 0 {
		errs = append(errs, "archive: retention_days must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: invalid port %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
