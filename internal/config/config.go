// Package config defines the top-level configuration for the lending core
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LENDCORE_* environment variables.
type Config struct {
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Oracle      OracleConfig      `toml:"oracle"`
	Treasury    TreasuryConfig    `toml:"treasury"`
	Lending     LendingConfig     `toml:"lending"`
	Liquidation LiquidationConfig `toml:"liquidation"`
	Archive     ArchiveConfig     `toml:"archive"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OracleConfig holds the collateral price feed endpoints.
type OracleConfig struct {
	WsHost         string   `toml:"ws_host"`
	HttpHost       string   `toml:"http_host"`
	Assets         []string `toml:"assets"`
	PriceTTL       duration `toml:"price_ttl"`
	ReconnectMax   duration `toml:"reconnect_max"`
	SnapshotPeriod duration `toml:"snapshot_period"`
}

// TreasuryConfig holds the custody service that executes fund transfers.
type TreasuryConfig struct {
	BaseURL              string   `toml:"base_url"`
	ApiKey               string   `toml:"api_key"`
	EncryptedKeyPath     string   `toml:"encrypted_key_path"`
	KeyPassword          string   `toml:"key_password"`
	RequestTimeout       duration `toml:"request_timeout"`
	PlatformAccount      string   `toml:"platform_account"`
	DryRun               bool     `toml:"dry_run"`
	MaxTransferPerMinute int      `toml:"max_transfer_per_minute"`
}

// LendingConfig holds loan lifecycle parameters.
type LendingConfig struct {
	CollateralAsset    string  `toml:"collateral_asset"`
	DefaultExpiryHours int     `toml:"default_expiry_hours"`
	BaseInterestRate   float64 `toml:"base_interest_rate"`
}

// LiquidationConfig holds the solvency monitoring cadence and protocol
// parameter defaults. The live values come from the governance snapshot;
// these seed it when governance has not published one yet.
type LiquidationConfig struct {
	CycleInterval        duration `toml:"cycle_interval"`
	LockTTL              duration `toml:"lock_ttl"`
	LiquidationThreshold float64  `toml:"liquidation_threshold"`
	LiquidationPenalty   float64  `toml:"liquidation_penalty"`
	PartialSeizureRate   float64  `toml:"partial_seizure_rate"`
	MaxLoanAmount        float64  `toml:"max_loan_amount"`
}

// ArchiveConfig holds cold-storage retention parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "lendingcore",
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
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "lendcore-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			WsHost:         "wss://feed.example-oracle.com/ws",
			HttpHost:       "https://feed.example-oracle.com",
			Assets:         []string{"USDC"},
			PriceTTL:       duration{30 * time.Second},
			ReconnectMax:   duration{time.Minute},
			SnapshotPeriod: duration{5 * time.Minute},
		},
		Treasury: TreasuryConfig{
			BaseURL:              "http://localhost:8090",
			RequestTimeout:       duration{10 * time.Second},
			PlatformAccount:      "platform",
			DryRun:               false,
			MaxTransferPerMinute: 60,
		},
		Lending: LendingConfig{
			CollateralAsset:    "USDC",
			DefaultExpiryHours: 72,
			BaseInterestRate:   0.06,
		},
		Liquidation: LiquidationConfig{
			CycleInterval:        duration{5 * time.Minute},
			LockTTL:              duration{2 * time.Minute},
			LiquidationThreshold: 1.2,
			LiquidationPenalty:   0.05,
			PartialSeizureRate:   0.95,
			MaxLoanAmount:        2_000_000,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"liquidation.executed", "liquidation.failed", "loan.repaid"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true,
	"monitor": true,
	"archive": true,
	"migrate": true,
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

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, monitor, archive, migrate)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 checks apply only when archiving is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Oracle
	if c.Oracle.WsHost == "" && c.Oracle.HttpHost == "" {
		errs = append(errs, "oracle: at least one of ws_host or http_host must be set")
	}
	if len(c.Oracle.Assets) == 0 {
		errs = append(errs, "oracle: assets must list at least one collateral asset")
	}
	if c.Oracle.PriceTTL.Duration <= 0 {
		errs = append(errs, "oracle: price_ttl must be > 0")
	}

	// Treasury credentials must come from somewhere unless dry-run.
	if !c.Treasury.DryRun {
		if c.Treasury.BaseURL == "" {
			errs = append(errs, "treasury: base_url must not be empty")
		}
		if c.Treasury.ApiKey == "" && c.Treasury.EncryptedKeyPath == "" {
			errs = append(errs, "treasury: either api_key or encrypted_key_path must be set")
		}
		if c.Treasury.EncryptedKeyPath != "" && c.Treasury.KeyPassword == "" {
			errs = append(errs, "treasury: key_password is required when encrypted_key_path is set")
		}
	}

	// Lending
	if c.Lending.CollateralAsset == "" {
		errs = append(errs, "lending: collateral_asset must not be empty")
	}
	if c.Lending.DefaultExpiryHours < 1 {
		errs = append(errs, "lending: default_expiry_hours must be >= 1")
	}

	// Liquidation
	if c.Liquidation.CycleInterval.Duration <= 0 {
		errs = append(errs, "liquidation: cycle_interval must be > 0")
	}
	if c.Liquidation.LiquidationThreshold <= 1.0 {
		errs = append(errs, "liquidation: liquidation_threshold must be > 1.0")
	}
	if c.Liquidation.LiquidationPenalty < 0 || c.Liquidation.LiquidationPenalty > 1 {
		errs = append(errs, "liquidation: liquidation_penalty must be within [0,1]")
	}
	if c.Liquidation.PartialSeizureRate <= 0 || c.Liquidation.PartialSeizureRate > 1 {
		errs = append(errs, "liquidation: partial_seizure_rate must be within (0,1]")
	}
	if c.Liquidation.MaxLoanAmount <= 0 {
		errs = append(errs, "liquidation: max_loan_amount must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
