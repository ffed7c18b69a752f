package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// JSONCache is a generic JSON-backed Redis cache. Bind it to a value type T;
// each instance holds a Redis client, a key prefix and a TTL (0 = no expiry).
// Unlike a read-model cache, failures are returned: callers decide whether a
// cache error is fatal.
type JSONCache[T any] struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewJSONCache[T any](client *goredis.Client, prefix string, ttl time.Duration) *JSONCache[T] {
	return &JSONCache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *JSONCache[T]) Key(id string) string {
	return c.prefix + id
}

func (c *JSONCache[T]) TTL() time.Duration {
	return c.ttl
}

// Get returns (nil, false, nil) on a miss.
func (c *JSONCache[T]) Get(ctx context.Context, id string) (*T, bool, error) {
	data, err := c.client.Get(ctx, c.Key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read %s: %w", c.Key(id), err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", c.Key(id), err)
	}
	return &v, true, nil
}

// Set stores value under id with the cache TTL.
func (c *JSONCache[T]) Set(ctx context.Context, id string, value *T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", c.Key(id), err)
	}
	if err := c.client.Set(ctx, c.Key(id), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache write %s: %w", c.Key(id), err)
	}
	return nil
}

// Refresh overwrites id only if it is already present and reports whether it was.
func (c *JSONCache[T]) Refresh(ctx context.Context, id string, value *T) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache encode %s: %w", c.Key(id), err)
	}
	ok, err := c.client.SetXX(ctx, c.Key(id), data, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache refresh %s: %w", c.Key(id), err)
	}
	return ok, nil
}

func (c *JSONCache[T]) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.Key(id)).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", c.Key(id), err)
	}
	return nil
}
