package invoke

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waterbird-i/wbapi-backend/shared/events"
	"github.com/waterbird-i/wbapi-backend/shared/models"
	sharedredis "github.com/waterbird-i/wbapi-backend/shared/redis"
)

const (
	keyCachePrefix   = "gateway:invoke_user:"
	revokedKeyPrefix = "gateway:invoke_revoked:"
)

// UserLookup resolves an access key to its owner; (nil, nil) means no owner.
type UserLookup interface {
	GetInvokeUser(ctx context.Context, accessKey string) (*models.User, error)
}

// CachedLookup keeps recent access-key lookups in Redis. When the
// user.credentials_rotated event arrives the old key is marked revoked for one
// TTL and its entry is evicted; the TTL bounds staleness if an event is missed.
type CachedLookup struct {
	next   UserLookup
	client *goredis.Client
	cache  *sharedredis.JSONCache[models.User]
}

func NewCachedLookup(next UserLookup, client *goredis.Client, ttl time.Duration) *CachedLookup {
	return &CachedLookup{
		next:   next,
		client: client,
		cache:  sharedredis.NewJSONCache[models.User](client, keyCachePrefix, ttl),
	}
}

func (l *CachedLookup) GetInvokeUser(ctx context.Context, accessKey string) (*models.User, error) {
	revoked, err := l.revoked(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, nil
	}
	if user, ok, err := l.cache.Get(ctx, accessKey); err == nil && ok {
		return user, nil
	}

	user, err := l.next.GetInvokeUser(ctx, accessKey)
	if err != nil || user == nil {
		return user, err
	}
	_ = l.cache.Set(ctx, accessKey, user)

	// A rotation handled while the upstream call was in flight must win over
	// the entry just written.
	revoked, err = l.revoked(ctx, accessKey)
	if err != nil {
		_ = l.cache.Delete(ctx, accessKey)
		return nil, err
	}
	if revoked {
		_ = l.cache.Delete(ctx, accessKey)
		return nil, nil
	}
	return user, nil
}

func (l *CachedLookup) revoked(ctx context.Context, accessKey string) (bool, error) {
	n, err := l.client.Exists(ctx, revokedKeyPrefix+accessKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked key: %w", err)
	}
	return n > 0, nil
}

// HandleEvent is the user.events subscriber handler.
func (l *CachedLookup) HandleEvent(ctx context.Context, event events.Event) error {
	if event.Type != events.UserCredentialsRotated {
		return nil
	}
	var data events.UserCredentialsRotatedEvent
	if err := event.Decode(&data); err != nil {
		return err
	}
	if data.OldAccessKey == "" {
		return nil
	}
	// Mark first, then evict: a concurrent lookup either sees the mark or has
	// its entry removed by the delete.
	if err := l.client.Set(ctx, revokedKeyPrefix+data.OldAccessKey, "1", l.cache.TTL()).Err(); err != nil {
		return fmt.Errorf("failed to mark key revoked: %w", err)
	}
	return l.cache.Delete(ctx, data.OldAccessKey)
}
