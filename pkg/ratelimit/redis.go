package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a BucketStore backed by Redis so multiple gateway instances
// share one admission budget per identity. Each window is an INCR counter
// whose TTL is set when the window opens, which gives the same fixed-window
// behavior as MemoryStore.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store using the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "bouncer:rl"}
}

func (r *RedisStore) key(token, window string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, token, window)
}

// Counts implements BucketStore.
func (r *RedisStore) Counts(ctx context.Context, token string) (int64, int64, int64, error) {
	vals, err := r.client.MGet(ctx,
		r.key(token, "minute"),
		r.key(token, "hour"),
		r.key(token, "day"),
	).Result()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("redis mget: %w", err)
	}

	counts := make([]int64, 3)
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var n int64
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			counts[i] = n
		}
	}
	return counts[0], counts[1], counts[2], nil
}

// Incr implements BucketStore. The NX expire only lands on the first
// increment of a window, so the TTL marks the window start.
func (r *RedisStore) Incr(ctx context.Context, token string) error {
	windows := []struct {
		name string
		ttl  time.Duration
	}{
		{"minute", time.Minute},
		{"hour", time.Hour},
		{"day", 24 * time.Hour},
	}

	pipe := r.client.Pipeline()
	for _, w := range windows {
		key := r.key(token, w.name)
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, w.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	return nil
}

// StartCooldown implements BucketStore.
func (r *RedisStore) StartCooldown(ctx context.Context, token string, d time.Duration) error {
	if err := r.client.Set(ctx, r.key(token, "cooldown"), "1", d).Err(); err != nil {
		return fmt.Errorf("redis set cooldown: %w", err)
	}
	return nil
}

// Cooldown implements BucketStore.
func (r *RedisStore) Cooldown(ctx context.Context, token string) (time.Duration, error) {
	ttl, err := r.client.PTTL(ctx, r.key(token, "cooldown")).Result()
	if err != nil {
		return 0, fmt.Errorf("redis pttl: %w", err)
	}
	if ttl < 0 {
		// -1 no expiry, -2 missing key; neither counts as a cooldown
		return 0, nil
	}
	return ttl, nil
}
