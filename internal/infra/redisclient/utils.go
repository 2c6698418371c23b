package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/resilience/internal/conn"
)

// ErrCacheMiss is returned by Get for absent keys. A miss is a normal
// outcome, never retried.
var ErrCacheMiss = errors.New("cache miss")

// CacheUtils is the resource-idiomatic cache facade. Every command runs
// through the connection manager's cache retry policy.
type CacheUtils struct {
	client *Client
	cm     *conn.Manager
}

// NewCacheUtils builds the facade around an established connection.
func NewCacheUtils(client *Client, cm *conn.Manager) *CacheUtils {
	return &CacheUtils{client: client, cm: cm}
}

// Set stores a value with a TTL (0 = no expiry).
func (u *CacheUtils) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	name := fmt.Sprintf("cache set %s", key)
	_, err := u.cm.ExecuteRedis(ctx, u.client, name, func(ctx context.Context) (any, error) {
		return nil, u.client.rdb.Set(ctx, key, value, ttl).Err()
	})
	return err
}

// Get fetches a value. Absent keys return ErrCacheMiss without retrying.
func (u *CacheUtils) Get(ctx context.Context, key string) (string, error) {
	name := fmt.Sprintf("cache get %s", key)
	result, err := u.cm.ExecuteRedis(ctx, u.client, name, func(ctx context.Context) (any, error) {
		val, err := u.client.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return val, err
	})
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return result.(string), nil
}

// Del removes one or more keys.
func (u *CacheUtils) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	name := fmt.Sprintf("cache del %s", keys[0])
	_, err := u.cm.ExecuteRedis(ctx, u.client, name, func(ctx context.Context) (any, error) {
		return nil, u.client.rdb.Del(ctx, keys...).Err()
	})
	return err
}

// Pipeline batches multiple commands into one retried unit. A failure at any
// command re-runs the whole batch on the next attempt.
func (u *CacheUtils) Pipeline(ctx context.Context, name string, fn func(pipe redis.Pipeliner) error) error {
	_, err := u.cm.ExecuteRedis(ctx, u.client, name, func(ctx context.Context) (any, error) {
		pipe := u.client.rdb.Pipeline()
		if err := fn(pipe); err != nil {
			return nil, err
		}
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	return err
}

// IsHealthy probes the connection; errors become false.
func (u *CacheUtils) IsHealthy(ctx context.Context) bool {
	return u.cm.CheckRedisHealth(ctx, u.client)
}

// Close releases the underlying connection.
func (u *CacheUtils) Close() error {
	return u.client.Close()
}
