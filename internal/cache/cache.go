// Package cache provides the Redis-backed read cache for gateway
// configurations. The database stays authoritative; the cache only
// shortens the hot path of payment initiation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/repository"
)

const gatewayConfigTTL = 5 * time.Minute

// GatewayConfigCache caches gateway configuration rows with a short TTL
// and explicit invalidation on update.
type GatewayConfigCache struct {
	rdb    *redis.Client
	repo   repository.GatewayConfigRepository
	prefix string
}

// NewGatewayConfigCache creates the cache. A nil redis client degrades
// to direct repository reads.
func NewGatewayConfigCache(rdb *redis.Client, repo repository.GatewayConfigRepository, prefix string) *GatewayConfigCache {
	if prefix == "" {
		prefix = "lp"
	}
	return &GatewayConfigCache{rdb: rdb, repo: repo, prefix: prefix}
}

func (c *GatewayConfigCache) key(gatewayType string) string {
	return fmt.Sprintf("%s:gateway_config:%s", c.prefix, gatewayType)
}

// GetActiveByType returns the active configuration of a gateway,
// serving from cache when possible.
func (c *GatewayConfigCache) GetActiveByType(ctx context.Context, gatewayType string) (*models.GatewayConfig, error) {
	if c.rdb == nil {
		return c.repo.GetActiveByType(gatewayType)
	}

	raw, err := c.rdb.Get(ctx, c.key(gatewayType)).Bytes()
	if err == nil {
		var cfg models.GatewayConfig
		if err := json.Unmarshal(raw, &cfg); err == nil {
			return &cfg, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.Warnw("gateway_config_cache_read_failed", "gateway_type", gatewayType, "error", err)
	}

	cfg, err := c.repo.GetActiveByType(gatewayType)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		if raw, err := json.Marshal(cfg); err == nil {
			if err := c.rdb.Set(ctx, c.key(gatewayType), raw, gatewayConfigTTL).Err(); err != nil {
				logger.Warnw("gateway_config_cache_write_failed", "gateway_type", gatewayType, "error", err)
			}
		}
	}
	return cfg, nil
}

// Invalidate drops the cached configuration of a gateway.
func (c *GatewayConfigCache) Invalidate(ctx context.Context, gatewayType string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, c.key(gatewayType)).Err(); err != nil {
		logger.Warnw("gateway_config_cache_invalidate_failed", "gateway_type", gatewayType, "error", err)
	}
}
