package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/lendingcore/internal/domain"
)

// paramsKey holds the JSON-encoded governance parameter snapshot.
const paramsKey = "governance:params"

// ParamsCache implements domain.ParamsProvider on top of Redis. Governance
// publishes parameter snapshots here; readers fall back to the configured
// defaults when no snapshot exists or Redis is unreachable, so the core can
// always take a parameter snapshot at the start of an operation.
type ParamsCache struct {
	rdb      *redis.Client
	fallback domain.ProtocolParams
	logger   *slog.Logger
}

// NewParamsCache creates a ParamsCache backed by the given Client. fallback
// is returned whenever no published snapshot is available.
func NewParamsCache(c *Client, fallback domain.ProtocolParams, logger *slog.Logger) *ParamsCache {
	return &ParamsCache{
		rdb:      c.Underlying(),
		fallback: fallback,
		logger:   logger.With(slog.String("component", "params_cache")),
	}
}

// Current returns the latest published parameter snapshot, or the fallback
// defaults when none is available.
func (pc *ParamsCache) Current(ctx context.Context) domain.ProtocolParams {
	raw, err := pc.rdb.Get(ctx, paramsKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			pc.logger.Warn("reading governance params failed, using defaults", slog.Any("error", err))
		}
		return pc.fallback
	}

	var params domain.ProtocolParams
	if err := json.Unmarshal(raw, &params); err != nil {
		pc.logger.Warn("corrupt governance params, using defaults", slog.Any("error", err))
		return pc.fallback
	}
	return params
}

// Publish stores a new governance parameter snapshot. Snapshots have no TTL;
// they stay current until the next publication.
func (pc *ParamsCache) Publish(ctx context.Context, params domain.ProtocolParams) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("redis: encode governance params: %w", err)
	}
	if err := pc.rdb.Set(ctx, paramsKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: publish governance params: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ParamsProvider = (*ParamsCache)(nil)
