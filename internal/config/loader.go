package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over the built-in defaults, loads a
// .env file when present, and applies STOCKLEDGER_* environment overrides.
// An empty path skips the file. The returned Config has NOT been
// validated; callers invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides reads well-known STOCKLEDGER_* variables and overwrites
// the matching fields when a variable is set and non-empty.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "STOCKLEDGER_MODE")
	setStr(&cfg.LogLevel, "STOCKLEDGER_LOG_LEVEL")

	// ── Commission ──
	setStr(&cfg.Commission.Strategy, "STOCKLEDGER_COMMISSION_STRATEGY")
	setFloat64(&cfg.Commission.Fixed, "STOCKLEDGER_COMMISSION_FIXED")
	setFloat64(&cfg.Commission.Ratio, "STOCKLEDGER_COMMISSION_RATIO")
	setFloat64(&cfg.Commission.Floor, "STOCKLEDGER_COMMISSION_FLOOR")

	// ── Store ──
	setStr(&cfg.Store.Backend, "STOCKLEDGER_STORE_BACKEND")
	setStr(&cfg.Store.JSONPath, "STOCKLEDGER_STORE_JSON_PATH")
	setStr(&cfg.Store.SQLitePath, "STOCKLEDGER_STORE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "STOCKLEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "STOCKLEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STOCKLEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STOCKLEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STOCKLEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STOCKLEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STOCKLEDGER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STOCKLEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STOCKLEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STOCKLEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "STOCKLEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STOCKLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STOCKLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STOCKLEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STOCKLEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STOCKLEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STOCKLEDGER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "STOCKLEDGER_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STOCKLEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STOCKLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STOCKLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "STOCKLEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STOCKLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STOCKLEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STOCKLEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STOCKLEDGER_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "STOCKLEDGER_S3_PREFIX")

	// ── Monitor / archive ──
	setBool(&cfg.Monitor.Enabled, "STOCKLEDGER_MONITOR_ENABLED")
	setDuration(&cfg.Monitor.Interval, "STOCKLEDGER_MONITOR_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "STOCKLEDGER_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "STOCKLEDGER_ARCHIVE_CRON")
	setBool(&cfg.Archive.Snapshot, "STOCKLEDGER_ARCHIVE_SNAPSHOT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STOCKLEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STOCKLEDGER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "STOCKLEDGER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "STOCKLEDGER_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "STOCKLEDGER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "STOCKLEDGER_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramAPI, "STOCKLEDGER_NOTIFY_TELEGRAM_API")
	setStr(&cfg.Notify.TelegramToken, "STOCKLEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STOCKLEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STOCKLEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STOCKLEDGER_NOTIFY_EVENTS")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

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
