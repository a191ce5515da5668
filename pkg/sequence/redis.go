package sequence

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisKey is the key holding the invoice counter
const DefaultRedisKey = "billing:settings:current_sequence"

// RedisCounter increments a Redis key with INCR, which is atomic across all
// processes sharing the Redis instance. A missing key starts at zero.
type RedisCounter struct {
	client redis.Cmdable
	key    string
}

// NewRedisCounter creates a counter on the given key
func NewRedisCounter(client redis.Cmdable, key string) *RedisCounter {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisCounter{client: client, key: key}
}

// Next increments and returns the counter
func (c *RedisCounter) Next(ctx context.Context) (int64, error) {
	v, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s failed: %w", c.key, err)
	}
	return v, nil
}

// Current returns the last issued value without incrementing
func (c *RedisCounter) Current(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, c.key).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("redis get %s failed: %w", c.key, err)
	}
	return v, nil
}
