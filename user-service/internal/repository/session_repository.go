package repository

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/waterbird-i/wbapi-backend/shared/models"
	sharedredis "github.com/waterbird-i/wbapi-backend/shared/redis"
)

// SessionKeyPrefix is followed by the decimal user id.
const SessionKeyPrefix = "user_login_state:"

// SessionRepository keeps a full copy of a logged-in user's record. Entries
// live exactly as long as the bearer token that created them.
type SessionRepository struct {
	cache *sharedredis.JSONCache[models.User]
}

func NewSessionRepository(client *goredis.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{cache: sharedredis.NewJSONCache[models.User](client, SessionKeyPrefix, ttl)}
}

func (r *SessionRepository) TTL() time.Duration {
	return r.cache.TTL()
}

func (r *SessionRepository) Save(ctx context.Context, user *models.User) error {
	return r.cache.Set(ctx, sessionID(user.ID), user)
}

// Get returns (nil, false, nil) when there is no session.
func (r *SessionRepository) Get(ctx context.Context, userID int64) (*models.User, bool, error) {
	return r.cache.Get(ctx, sessionID(userID))
}

// Refresh replaces an existing session with user and reports whether one existed.
func (r *SessionRepository) Refresh(ctx context.Context, user *models.User) (bool, error) {
	return r.cache.Refresh(ctx, sessionID(user.ID), user)
}

func (r *SessionRepository) Delete(ctx context.Context, userID int64) error {
	return r.cache.Delete(ctx, sessionID(userID))
}

func sessionID(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
