package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Counter = (*RedisCounter)(nil)

type RedisCounter struct {
	key    string
	client redis.UniversalClient
}

func NewRedisCounter(client redis.UniversalClient, key string) *RedisCounter {
	return &RedisCounter{key: key, client: client}
}

func (c *RedisCounter) Get(ctx context.Context) (int64, error) {
	n, err := c.client.Get(ctx, c.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis.Get: key=%s, %w", c.key, err)
	}
	return n, nil
}

func (c *RedisCounter) Up(ctx context.Context) (int64, error) {
	n, err := c.client.IncrBy(ctx, c.key, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis.IncrBy: key=%s, %w", c.key, err)
	}
	return n, nil
}
