package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/lendingcore/internal/archive"
	"github.com/alanyoungcy/lendingcore/internal/cache/redis"
	"github.com/alanyoungcy/lendingcore/internal/config"
	"github.com/alanyoungcy/lendingcore/internal/crypto"
	"github.com/alanyoungcy/lendingcore/internal/domain"
	"github.com/alanyoungcy/lendingcore/internal/events"
	"github.com/alanyoungcy/lendingcore/internal/notify"
	"github.com/alanyoungcy/lendingcore/internal/oracle"
	"github.com/alanyoungcy/lendingcore/internal/store/postgres"
	"github.com/alanyoungcy/lendingcore/internal/treasury"
)

// Dependencies bundles the concrete implementations the operating modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Applications domain.ApplicationStore
	Offers       domain.OfferStore
	Loans        domain.LoanStore
	Users        domain.UserStore
	Events       domain.EventStore

	// Redis-backed infrastructure
	PriceCache domain.CollateralPriceCache
	Locks      domain.LockManager
	Params     domain.ParamsProvider

	// Oracle
	Feed       domain.PriceFeed
	FeedRunner *oracle.Feed

	// Treasury
	Transfer domain.TransferExecutor

	// Monitoring
	Notifier *notify.Notifier
	Recorder domain.EventRecorder

	// Cold storage, nil when archival is disabled
	Archiver *archive.Archiver

	// Migration hook for migrate mode
	Migrate func(ctx context.Context) error
}

// needsS3 reports whether the mode requires object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled || strings.ToLower(cfg.Mode) == "archive"
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Migrate = pgClient.RunMigrations

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Applications = postgres.NewApplicationStore(pool)
	deps.Offers = postgres.NewOfferStore(pool)
	deps.Loans = postgres.NewLoanStore(pool)
	deps.Users = postgres.NewUserStore(pool)
	deps.Events = postgres.NewEventStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Params = redis.NewParamsCache(redisClient, domain.ProtocolParams{
		LiquidationThreshold: cfg.Liquidation.LiquidationThreshold,
		LiquidationPenalty:   cfg.Liquidation.LiquidationPenalty,
		PartialSeizureRate:   cfg.Liquidation.PartialSeizureRate,
		MaxLoanAmount:        cfg.Liquidation.MaxLoanAmount,
		BaseInterestRate:     cfg.Lending.BaseInterestRate,
	}, logger)

	// --- Oracle ---
	httpOracle := oracle.NewHTTPClient(cfg.Oracle.HttpHost)
	deps.Feed = oracle.NewCachingPriceFeed(deps.PriceCache, httpOracle, cfg.Oracle.PriceTTL.Duration, logger)
	deps.FeedRunner = oracle.NewFeed(oracle.FeedConfig{
		WsURL:          cfg.Oracle.WsHost,
		Assets:         cfg.Oracle.Assets,
		ReconnectMax:   cfg.Oracle.ReconnectMax.Duration,
		SnapshotPeriod: cfg.Oracle.SnapshotPeriod.Duration,
	}, httpOracle, deps.PriceCache, logger)

	// --- Treasury ---
	apiKey := ""
	if !cfg.Treasury.DryRun {
		apiKey, err = crypto.LoadCredential(crypto.CredentialConfig{
			RawKey:        cfg.Treasury.ApiKey,
			EncryptedPath: cfg.Treasury.EncryptedKeyPath,
			Password:      cfg.Treasury.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury credential: %w", err)
		}
	}
	deps.Transfer = treasury.NewClient(treasury.ClientConfig{
		BaseURL:              cfg.Treasury.BaseURL,
		ApiKey:               apiKey,
		PlatformAccount:      cfg.Treasury.PlatformAccount,
		RequestTimeout:       cfg.Treasury.RequestTimeout.Duration,
		DryRun:               cfg.Treasury.DryRun,
		MaxTransferPerMinute: cfg.Treasury.MaxTransferPerMinute,
	}, logger)

	// --- Notifications and event recording ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Recorder = events.NewRecorder(deps.Events, deps.Notifier, logger)

	// --- Cold storage ---
	if needsS3(cfg) {
		s3Client, err := archive.NewClient(ctx, archive.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		deps.Archiver = archive.NewArchiver(deps.Loans, deps.Events, archive.NewWriter(s3Client), retention, logger)
	}

	return deps, cleanup, nil
}
