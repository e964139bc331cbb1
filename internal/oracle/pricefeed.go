package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// CachingPriceFeed resolves collateral values from the streamed price cache,
// falling back to the oracle HTTP endpoint when the cached quote is missing
// or older than the configured TTL.
type CachingPriceFeed struct {
	cache  domain.CollateralPriceCache
	http   *HTTPClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ domain.PriceFeed = (*CachingPriceFeed)(nil)

// NewCachingPriceFeed creates a feed with the given freshness TTL.
func NewCachingPriceFeed(cache domain.CollateralPriceCache, http *HTTPClient, ttl time.Duration, logger *slog.Logger) *CachingPriceFeed {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachingPriceFeed{
		cache:  cache,
		http:   http,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "price_feed")),
	}
}

// CollateralValue returns the current market value of the loan's pledged
// collateral units.
func (f *CachingPriceFeed) CollateralValue(ctx context.Context, loan domain.ActiveLoan) (float64, error) {
	price, err := f.spotPrice(ctx, loan.CollateralAsset)
	if err != nil {
		return 0, fmt.Errorf("oracle: collateral value for loan %s: %w", loan.ID, err)
	}
	return price * loan.CollateralUnits, nil
}

// MarketConditions returns the current market snapshot for an asset. The
// spot price prefers the streamed cache when fresh; volatility and lending
// rate always come from the snapshot endpoint.
func (f *CachingPriceFeed) MarketConditions(ctx context.Context, asset string) (domain.MarketConditions, error) {
	resp, err := f.http.Conditions(ctx, asset)
	if err != nil {
		return domain.MarketConditions{}, fmt.Errorf("oracle: market conditions for %s: %w", asset, err)
	}

	conditions := domain.MarketConditions{
		AssetPrice:  resp.Price,
		Volatility:  resp.Volatility,
		LendingRate: resp.LendingRate,
	}

	if price, ts, err := f.cache.GetPrice(ctx, asset); err == nil && f.fresh(ts) {
		conditions.AssetPrice = price
	}

	return conditions, nil
}

// spotPrice reads the cached quote, falling back to HTTP and backfilling the
// cache on a miss or stale entry.
func (f *CachingPriceFeed) spotPrice(ctx context.Context, asset string) (float64, error) {
	price, ts, err := f.cache.GetPrice(ctx, asset)
	if err == nil && f.fresh(ts) {
		return price, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		f.logger.Warn("price cache read failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()))
	}

	tick, err := f.http.Price(ctx, asset)
	if err != nil {
		return 0, err
	}

	if err := f.cache.SetPrice(ctx, asset, tick.Price, tick.Time()); err != nil {
		f.logger.Warn("price cache backfill failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()))
	}

	return tick.Price, nil
}

func (f *CachingPriceFeed) fresh(ts time.Time) bool {
	return time.Since(ts) <= f.ttl
}
