package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vitalproof/internal/environment"
	"vitalproof/pkg/platform/sentinel"
)

const keyPrefix = "vitalproof:envctx:"

// RedisCache shares resolved contexts across replicas.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*environment.Context, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("redis get context: %w", err)
	}
	var out environment.Context
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode cached context: %w", err)
	}
	return &out, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value *environment.Context, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set context: %w", err)
	}
	return nil
}
