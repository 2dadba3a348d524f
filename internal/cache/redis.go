package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	catalogKey    = "cache:catalog"
	tagKeyPrefix  = "cache:tag:"
	stalePathsKey = "cache:stale-paths"

	catalogTTL = 10 * time.Minute
)

type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) GetCatalog(ctx context.Context) ([]byte, bool, error) {
	payload, err := c.rdb.Get(ctx, catalogKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (c *RedisCache) SetCatalog(ctx context.Context, payload []byte) error {
	return c.rdb.Set(ctx, catalogKey, payload, catalogTTL).Err()
}

func (c *RedisCache) ClearCatalog(ctx context.Context) error {
	return c.rdb.Del(ctx, catalogKey).Err()
}

func (c *RedisCache) ClearTag(ctx context.Context, tag string) error {
	return c.rdb.Del(ctx, tagKeyPrefix+tag).Err()
}

func (c *RedisCache) RevalidatePath(ctx context.Context, path string) error {
	return c.rdb.SAdd(ctx, stalePathsKey, path).Err()
}
