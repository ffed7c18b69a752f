package cqrs

import (
	"io"

	"github.com/waterbird-i/wbapi-backend/shared/models"
)

// ---------- Registration ----------

type RegisterCommand struct {
	UserAccount   string
	UserPassword  string
	CheckPassword string
}

type EmailRegisterCommand struct {
	Email string
	Code  string
}

// ---------- Session ----------

type LoginCommand struct {
	UserAccount  string
	UserPassword string
}

type EmailLoginCommand struct {
	Email string
	Code  string
}

// LogoutCommand carries the token cookie, if the request had one.
type LogoutCommand struct {
	Token        string
	HasIndicator bool
}

// ---------- Profile ----------

// UpdateUserCommand is a partial update; nil fields are left untouched.
type UpdateUserCommand struct {
	Caller     *models.User
	TargetID   int64
	UserName   *string
	UserAvatar *string
	UserRole   *models.Role
}

type RotateKeysCommand struct {
	Caller *models.User
}

type UpdateAvatarCommand struct {
	Caller   *models.User
	FileName string
	Size     int64
	Body     io.Reader
}
