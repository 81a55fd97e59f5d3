package synclock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// RedisLocker serializes syncs per (shop, resource) across processes with a
// SET NX lock. The TTL bounds how long a crashed holder can block the key.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker on an existing redis client.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

var _ ports.SyncLocker = (*RedisLocker)(nil)

// TryLock acquires the key, reporting false when another sync holds it.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(key), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the key. Releasing an expired lock is a no-op.
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, lockKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to release sync lock: %w", err)
	}
	return nil
}

func lockKey(key string) string {
	return "synclock:" + key
}
