package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// FeedConfig controls the streaming price feed.
type FeedConfig struct {
	WsURL          string
	Assets         []string
	ReconnectMax   time.Duration
	SnapshotPeriod time.Duration
}

// Feed keeps the collateral price cache fresh. It streams ticks over the
// WebSocket and periodically reconciles with an HTTP snapshot so a silent
// stream does not leave stale prices behind.
type Feed struct {
	cfg    FeedConfig
	http   *HTTPClient
	cache  domain.CollateralPriceCache
	logger *slog.Logger
}

// NewFeed creates the feed runner.
func NewFeed(cfg FeedConfig, http *HTTPClient, cache domain.CollateralPriceCache, logger *slog.Logger) *Feed {
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = time.Minute
	}
	if cfg.SnapshotPeriod <= 0 {
		cfg.SnapshotPeriod = 5 * time.Minute
	}
	return &Feed{
		cfg:    cfg,
		http:   http,
		cache:  cache,
		logger: logger.With(slog.String("component", "oracle_feed")),
	}
}

// Run blocks until ctx is cancelled, maintaining the WebSocket connection
// with exponential backoff and running the snapshot ticker.
func (f *Feed) Run(ctx context.Context) error {
	f.snapshot(ctx)

	go f.snapshotLoop(ctx)

	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			f.logger.Warn("price stream disconnected",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > f.cfg.ReconnectMax {
			backoff = f.cfg.ReconnectMax
		}
	}
}

// runConnection holds one WebSocket session open until it drops.
func (f *Feed) runConnection(ctx context.Context) error {
	client := NewWSClient(f.cfg.WsURL)

	client.OnTick(func(tick PriceTick) {
		if err := f.cache.SetPrice(ctx, tick.Asset, tick.Price, tick.Time()); err != nil {
			f.logger.Warn("cache price update failed",
				slog.String("asset", tick.Asset),
				slog.String("error", err.Error()))
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	if err := client.Subscribe(ctx, f.cfg.Assets); err != nil {
		return err
	}

	f.logger.Info("price stream connected", slog.Int("assets", len(f.cfg.Assets)))

	select {
	case <-ctx.Done():
		return nil
	case <-client.Lost():
		return nil
	}
}

// snapshotLoop reconciles the cache with the HTTP endpoint.
func (f *Feed) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.SnapshotPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.snapshot(ctx)
		}
	}
}

// snapshot fetches spot prices over HTTP and writes them into the cache.
func (f *Feed) snapshot(ctx context.Context) {
	ticks, err := f.http.Prices(ctx, f.cfg.Assets)
	if err != nil {
		f.logger.Warn("price snapshot failed", slog.String("error", err.Error()))
		return
	}

	for asset, tick := range ticks {
		if err := f.cache.SetPrice(ctx, asset, tick.Price, tick.Time()); err != nil {
			f.logger.Warn("cache price update failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()))
		}
	}
}
