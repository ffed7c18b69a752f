package invoke

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const nonceKeyPrefix = "invoke:nonce:"

// RedisNonceStore remembers nonces per access key so a signed request cannot be replayed.
type RedisNonceStore struct {
	client *goredis.Client
}

func NewRedisNonceStore(client *goredis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

// Remember records nonce for ttl and reports whether it was unseen.
func (s *RedisNonceStore) Remember(ctx context.Context, accessKey, nonce string, ttl time.Duration) (bool, error) {
	fresh, err := s.client.SetNX(ctx, nonceKeyPrefix+accessKey+":"+nonce, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record nonce: %w", err)
	}
	return fresh, nil
}
