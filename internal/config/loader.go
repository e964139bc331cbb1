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
// built-in defaults, applies LENDCORE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LENDCORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "LENDCORE_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "LENDCORE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "LENDCORE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "LENDCORE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "LENDCORE_DATABASE_NAME")
	setStr(&cfg.Database.User, "LENDCORE_DATABASE_USER")
	setStr(&cfg.Database.Password, "LENDCORE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "LENDCORE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "LENDCORE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "LENDCORE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "LENDCORE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LENDCORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LENDCORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LENDCORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LENDCORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LENDCORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LENDCORE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LENDCORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LENDCORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "LENDCORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LENDCORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LENDCORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LENDCORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LENDCORE_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.WsHost, "LENDCORE_ORACLE_WS_HOST")
	setStr(&cfg.Oracle.HttpHost, "LENDCORE_ORACLE_HTTP_HOST")
	setStringSlice(&cfg.Oracle.Assets, "LENDCORE_ORACLE_ASSETS")
	setDuration(&cfg.Oracle.PriceTTL, "LENDCORE_ORACLE_PRICE_TTL")
	setDuration(&cfg.Oracle.ReconnectMax, "LENDCORE_ORACLE_RECONNECT_MAX")
	setDuration(&cfg.Oracle.SnapshotPeriod, "LENDCORE_ORACLE_SNAPSHOT_PERIOD")

	// ── Treasury ──
	setStr(&cfg.Treasury.BaseURL, "LENDCORE_TREASURY_BASE_URL")
	setStr(&cfg.Treasury.ApiKey, "LENDCORE_TREASURY_API_KEY")
	setStr(&cfg.Treasury.EncryptedKeyPath, "LENDCORE_TREASURY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Treasury.KeyPassword, "LENDCORE_TREASURY_KEY_PASSWORD")
	setDuration(&cfg.Treasury.RequestTimeout, "LENDCORE_TREASURY_REQUEST_TIMEOUT")
	setStr(&cfg.Treasury.PlatformAccount, "LENDCORE_TREASURY_PLATFORM_ACCOUNT")
	setBool(&cfg.Treasury.DryRun, "LENDCORE_TREASURY_DRY_RUN")
	setInt(&cfg.Treasury.MaxTransferPerMinute, "LENDCORE_TREASURY_MAX_TRANSFER_PER_MINUTE")

	// ── Lending ──
	setStr(&cfg.Lending.CollateralAsset, "LENDCORE_LENDING_COLLATERAL_ASSET")
	setInt(&cfg.Lending.DefaultExpiryHours, "LENDCORE_LENDING_DEFAULT_EXPIRY_HOURS")
	setFloat64(&cfg.Lending.BaseInterestRate, "LENDCORE_LENDING_BASE_INTEREST_RATE")

	// ── Liquidation ──
	setDuration(&cfg.Liquidation.CycleInterval, "LENDCORE_LIQUIDATION_CYCLE_INTERVAL")
	setDuration(&cfg.Liquidation.LockTTL, "LENDCORE_LIQUIDATION_LOCK_TTL")
	setFloat64(&cfg.Liquidation.LiquidationThreshold, "LENDCORE_LIQUIDATION_THRESHOLD")
	setFloat64(&cfg.Liquidation.LiquidationPenalty, "LENDCORE_LIQUIDATION_PENALTY")
	setFloat64(&cfg.Liquidation.PartialSeizureRate, "LENDCORE_LIQUIDATION_PARTIAL_SEIZURE_RATE")
	setFloat64(&cfg.Liquidation.MaxLoanAmount, "LENDCORE_LIQUIDATION_MAX_LOAN_AMOUNT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LENDCORE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "LENDCORE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "LENDCORE_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LENDCORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LENDCORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LENDCORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LENDCORE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LENDCORE_MODE")
	setStr(&cfg.LogLevel, "LENDCORE_LOG_LEVEL")
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
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
