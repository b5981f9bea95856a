// Package cache is an optional Redis read cache in front of the storage
// manager: asset pages and per-user video usage totals, invalidated whenever
// the owning partition is written. The manager works identically with the
// cache absent; every method on a nil *AssetCache is a no-op.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cav/asset-vault/internal/config"
	"cav/asset-vault/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "cav"

// AssetCache caches read results keyed by a per-partition version counter.
// Invalidation bumps the counter, so stale entries are never served and
// simply age out through the TTL.
type AssetCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis. An empty Addr disables caching and returns nil,
// which is a valid (inert) cache.
func New(cfg config.RedisConfig) (*AssetCache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	log.Info().Str("addr", cfg.Addr).Dur("ttl", ttl).Msg("Redis asset cache connected")
	return &AssetCache{client: client, ttl: ttl}, nil
}

func (c *AssetCache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *AssetCache) version(ctx context.Context, partition string) int64 {
	v, err := c.client.Get(ctx, keyPrefix+":ver:"+partition).Int64()
	if err != nil {
		return 0
	}
	return v
}

// FilterKey derives a stable cache key component from a filter.
func FilterKey(f storage.Filter) string {
	raw, err := json.Marshal(f)
	if err != nil {
		return "none"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

// GetPage returns a cached asset page for the filter, if fresh.
func (c *AssetCache) GetPage(ctx context.Context, f storage.Filter) (*storage.AssetPage, bool) {
	if !c.enabled() {
		return nil, false
	}
	key := c.pageKey(ctx, f)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var page storage.AssetPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, false
	}
	return &page, true
}

// SetPage stores an asset page under the partition's current version.
func (c *AssetCache) SetPage(ctx context.Context, f storage.Filter, page *storage.AssetPage) {
	if !c.enabled() || page == nil {
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.pageKey(ctx, f), raw, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Msg("Asset page cache write failed")
	}
}

func (c *AssetCache) pageKey(ctx context.Context, f storage.Filter) string {
	part := f.Scope.Key()
	return fmt.Sprintf("%s:page:%s:%d:%s", keyPrefix, part, c.version(ctx, part), FilterKey(f))
}

// GetVideoUsage returns the cached payload-byte total for a user key.
func (c *AssetCache) GetVideoUsage(ctx context.Context, userKey string) (int64, bool) {
	if !c.enabled() {
		return 0, false
	}
	key := fmt.Sprintf("%s:usage:%s:%d", keyPrefix, userKey, c.version(ctx, userKey))
	v, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// SetVideoUsage caches the payload-byte total for a user key.
func (c *AssetCache) SetVideoUsage(ctx context.Context, userKey string, usage int64) {
	if !c.enabled() {
		return
	}
	key := fmt.Sprintf("%s:usage:%s:%d", keyPrefix, userKey, c.version(ctx, userKey))
	if err := c.client.Set(ctx, key, strconv.FormatInt(usage, 10), c.ttl).Err(); err != nil {
		log.Debug().Err(err).Msg("Video usage cache write failed")
	}
}

// Invalidate bumps the version for each partition key, orphaning every
// cached entry that belongs to it.
func (c *AssetCache) Invalidate(ctx context.Context, partitions ...string) {
	if !c.enabled() {
		return
	}
	for _, part := range partitions {
		if part == "" {
			continue
		}
		if err := c.client.Incr(ctx, keyPrefix+":ver:"+part).Err(); err != nil {
			log.Debug().Err(err).Str("partition", part).Msg("Cache invalidation failed")
		}
	}
}
