package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CatalogCacheTTL is how long a published catalog page stays cached.
const CatalogCacheTTL = 5 * time.Minute

const (
	catalogKeyPrefix  = "catalog:courses:"
	catalogVersionKey = catalogKeyPrefix + "version"
)

// CatalogCache stores rendered catalog listings in Redis. A nil cache is a
// valid no-op so callers do not branch on whether Redis is configured.
type CatalogCache struct {
	client *redis.Client
	logger *zap.Logger
}

func NewCatalogCache(client *redis.Client, logger *zap.Logger) *CatalogCache {
	return &CatalogCache{client: client, logger: logger}
}

// Catalog is set at startup when Redis is configured.
var Catalog *CatalogCache

// Get decodes a cached entry into dst and reports whether it was found.
func (c *CatalogCache) Get(ctx context.Context, key string, dst interface{}) bool {
	if c == nil {
		return false
	}
	versioned, err := c.key(ctx, key)
	if err != nil {
		c.logger.Warn("Catalog cache version read failed", zap.Error(err))
		return false
	}
	raw, err := c.client.Get(ctx, versioned).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("Catalog cache entry is corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CatalogCache) Set(ctx context.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	versioned, err := c.key(ctx, key)
	if err != nil {
		c.logger.Warn("Catalog cache version read failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, versioned, raw, CatalogCacheTTL).Err(); err != nil {
		c.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate makes every cached catalog page unreachable by bumping the
// version key. Old pages expire on their own TTL.
func (c *CatalogCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Incr(ctx, catalogVersionKey).Err(); err != nil {
		c.logger.Warn("Catalog cache invalidation failed", zap.Error(err))
	}
}

func (c *CatalogCache) key(ctx context.Context, key string) (string, error) {
	version, err := c.client.Get(ctx, catalogVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		version, err = 0, nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%sv%d:%s", catalogKeyPrefix, version, key), nil
}
