package command

import (
	"context"
	"io"

	"github.com/waterbird-i/wbapi-backend/shared/models"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/repository"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) (int64, error)
	ExistsByAccount(ctx context.Context, account string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByAccountAndPassword(ctx context.Context, account, digest string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id int64, p repository.ProfilePatch) (*models.User, error)
	UpdateKeys(ctx context.Context, id int64, account string, keys models.DevKeyView) (*models.User, error)
	UpdateAvatar(ctx context.Context, id int64, avatarURL string) (*models.User, error)
}

type SessionStore interface {
	Save(ctx context.Context, user *models.User) error
	Refresh(ctx context.Context, user *models.User) (bool, error)
	Delete(ctx context.Context, userID int64) error
}

type CodeStore interface {
	Get(ctx context.Context, email string) (string, bool, error)
	Consume(ctx context.Context, email string) error
}

type TokenIssuer interface {
	Issue(userID int64, userName string) (string, error)
	UserID(token string) (int64, error)
}

type PasswordHasher interface {
	Digest(password string) string
}

type KeyGenerator interface {
	Generate(seed string) (*models.DevKeyView, error)
}

// AvatarUploader stores an avatar file and returns its public URL.
type AvatarUploader interface {
	Upload(ctx context.Context, userID int64, fileName string, size int64, body io.Reader) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}
