package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AURA_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AURA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AURA_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "AURA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AURA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AURA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AURA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AURA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AURA_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AURA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AURA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AURA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AURA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AURA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AURA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AURA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AURA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AURA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AURA_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AURA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AURA_S3_REGION")
	setStr(&cfg.S3.Bucket, "AURA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AURA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AURA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AURA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AURA_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setInt64(&cfg.Engine.MaxPrincipalCents, "AURA_ENGINE_MAX_PRINCIPAL_CENTS")
	setIntSlice(&cfg.Engine.AllowedDurations, "AURA_ENGINE_ALLOWED_DURATIONS")
	setFloat64(&cfg.Engine.MinPassRate, "AURA_ENGINE_MIN_PASS_RATE")
	setFloat64(&cfg.Engine.AnnualYieldRate, "AURA_ENGINE_ANNUAL_YIELD_RATE")
	setFloat64(&cfg.Engine.ForfeitRate, "AURA_ENGINE_FORFEIT_RATE")
	setDuration(&cfg.Engine.LockTTL, "AURA_ENGINE_LOCK_TTL")

	// ── Market ──
	setDuration(&cfg.Market.VoidAfter, "AURA_MARKET_VOID_AFTER")
	setDuration(&cfg.Market.SweepInterval, "AURA_MARKET_SWEEP_INTERVAL")
	setDuration(&cfg.Market.LockTTL, "AURA_MARKET_LOCK_TTL")

	// ── Feed ──
	setInt(&cfg.Feed.BatchSize, "AURA_FEED_BATCH_SIZE")
	setDuration(&cfg.Feed.PollInterval, "AURA_FEED_POLL_INTERVAL")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "AURA_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "AURA_ARCHIVE_INTERVAL")

	// ── Server ──
	setInt(&cfg.Server.Port, "AURA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AURA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AURA_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AURA_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateWindowSec, "AURA_SERVER_RATE_WINDOW_SEC")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AURA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AURA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AURA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AURA_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AURA_MODE")
	setStr(&cfg.LogLevel, "AURA_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

func setIntSlice(dst *[]int, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]int, 0, len(parts))
		for _, p := range parts {
			if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
				cleaned = append(cleaned, n)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
