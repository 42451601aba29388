package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisCatalogCache struct {
	client *redis.Client
}

func NewRedisCatalogCache(client *redis.Client) *RedisCatalogCache {
	return &RedisCatalogCache{client: client}
}

func (c *RedisCatalogCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCatalogCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisCatalogCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// RedisIdempotencyGuard claims request keys with SET NX so that concurrent
// duplicates across server instances are rejected.
type RedisIdempotencyGuard struct {
	client *redis.Client
}

func NewRedisIdempotencyGuard(client *redis.Client) *RedisIdempotencyGuard {
	return &RedisIdempotencyGuard{client: client}
}

func idemKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "idem:" + hex.EncodeToString(sum[:])
}

func (g *RedisIdempotencyGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, idemKey(key), "locked", ttl).Result()
}

func (g *RedisIdempotencyGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, idemKey(key)).Err()
}
