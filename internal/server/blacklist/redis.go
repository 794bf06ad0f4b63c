package blacklist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

// KeyPrefix namespaces blacklist keys in a shared Redis.
const KeyPrefix = "bl:"

// RedisCache is the Cache tier on Redis. Single-key SET/EXISTS are atomic,
// so no client-side locking is needed.
type RedisCache struct {
	rdb redis.UniversalClient
}

func NewRedisCache(rdb redis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) key(jti string) string { return KeyPrefix + jti }

func (c *RedisCache) Set(ctx context.Context, jti string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Exists(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrCacheUnavailable, err)
	}
	return n > 0, nil
}
