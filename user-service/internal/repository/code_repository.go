package repository

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// CodeKeyPrefix is followed by the email address. Codes under it are written
// by the mail delivery service.
const CodeKeyPrefix = "login:code:"

type CodeRepository struct {
	client *goredis.Client
}

func NewCodeRepository(client *goredis.Client) *CodeRepository {
	return &CodeRepository{client: client}
}

// Get returns ("", false, nil) when no code is pending for email.
func (r *CodeRepository) Get(ctx context.Context, email string) (string, bool, error) {
	code, err := r.client.Get(ctx, CodeKeyPrefix+email).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read login code: %w", err)
	}
	return code, true, nil
}

// Consume deletes the pending code so it cannot be replayed.
func (r *CodeRepository) Consume(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, CodeKeyPrefix+email).Err(); err != nil {
		return fmt.Errorf("failed to consume login code: %w", err)
	}
	return nil
}
