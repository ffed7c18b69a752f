package command

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
	"github.com/waterbird-i/wbapi-backend/shared/cqrs"
	"github.com/waterbird-i/wbapi-backend/shared/events"
	"github.com/waterbird-i/wbapi-backend/shared/keylock"
	"github.com/waterbird-i/wbapi-backend/shared/metrics"
	"github.com/waterbird-i/wbapi-backend/shared/models"
	"github.com/waterbird-i/wbapi-backend/shared/utils"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/repository"
)

const (
	minAccountLength  = 3
	minPasswordLength = 8

	methodPassword = "password"
	methodEmail    = "email"

	msgLoginFailed = "account or password incorrect"
	msgBadCode     = "email or verification code incorrect"
)

// LoginResult is returned by both login flows. Token goes into the token cookie.
type LoginResult struct {
	Token string
	User  *models.LoginUserView
}

type Deps struct {
	Users     UserStore
	Sessions  SessionStore
	Codes     CodeStore
	Tokens    TokenIssuer
	Hasher    PasswordHasher
	Keys      KeyGenerator
	Avatars   AvatarUploader
	Publisher EventPublisher
	Locks     *keylock.Registry
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// AccountCommandService owns every state change of a user account: it writes
// Postgres first and then brings the session cache in line with the stored row.
type AccountCommandService struct {
	users     UserStore
	sessions  SessionStore
	codes     CodeStore
	tokens    TokenIssuer
	hasher    PasswordHasher
	keys      KeyGenerator
	avatars   AvatarUploader
	publisher EventPublisher
	locks     *keylock.Registry
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewAccountCommandService(d Deps) *AccountCommandService {
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &AccountCommandService{
		users:     d.Users,
		sessions:  d.Sessions,
		codes:     d.Codes,
		tokens:    d.Tokens,
		hasher:    d.Hasher,
		keys:      d.Keys,
		avatars:   d.Avatars,
		publisher: d.Publisher,
		locks:     d.Locks,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
}

// ---------- Registration ----------

func (s *AccountCommandService) Register(ctx context.Context, cmd cqrs.RegisterCommand) (id int64, err error) {
	defer func() {
		s.metrics.Registrations.WithLabelValues(methodPassword, metrics.Outcome(err)).Inc()
	}()

	if utils.IsAnyBlank(cmd.UserAccount, cmd.UserPassword, cmd.CheckPassword) {
		return 0, apperr.Params("parameters are empty")
	}
	if utf8.RuneCountInString(cmd.UserAccount) < minAccountLength {
		return 0, apperr.Params("account is too short")
	}
	if utf8.RuneCountInString(cmd.UserPassword) < minPasswordLength || utf8.RuneCountInString(cmd.CheckPassword) < minPasswordLength {
		return 0, apperr.Params("password is too short")
	}
	if cmd.UserPassword != cmd.CheckPassword {
		return 0, apperr.Params("passwords do not match")
	}

	err = s.locks.WithLock("account:"+cmd.UserAccount, func() error {
		taken, err := s.users.ExistsByAccount(ctx, cmd.UserAccount)
		if err != nil {
			return apperr.System("registration failed", err)
		}
		if taken {
			return apperr.Params("account already exists")
		}

		keys, err := s.keys.Generate(cmd.UserAccount)
		if err != nil {
			return apperr.System("registration failed", err)
		}
		user := &models.User{
			UserAccount:  cmd.UserAccount,
			UserPassword: s.hasher.Digest(cmd.UserPassword),
			AccessKey:    keys.AccessKey,
			SecretKey:    keys.SecretKey,
			UserName:     cmd.UserAccount,
			UserRole:     models.RoleUser,
		}
		id, err = s.create(ctx, user)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.publish(ctx, events.UserRegistered, events.UserRegisteredEvent{UserID: id, UserAccount: cmd.UserAccount})
	return id, nil
}

// RegisterByEmail creates a password-less account that can only log in with emailed codes.
func (s *AccountCommandService) RegisterByEmail(ctx context.Context, cmd cqrs.EmailRegisterCommand) (id int64, err error) {
	defer func() {
		s.metrics.Registrations.WithLabelValues(methodEmail, metrics.Outcome(err)).Inc()
	}()

	if err := s.validateCode(ctx, cmd.Email, cmd.Code); err != nil {
		return 0, err
	}

	err = s.locks.WithLock("email:"+cmd.Email, func() error {
		taken, err := s.users.ExistsByEmail(ctx, cmd.Email)
		if err != nil {
			return apperr.System("registration failed", err)
		}
		if taken {
			return apperr.Params("email already registered")
		}

		keys, err := s.keys.Generate(cmd.Email)
		if err != nil {
			return apperr.System("registration failed", err)
		}
		user := &models.User{
			Email:     cmd.Email,
			UserName:  cmd.Email,
			AccessKey: keys.AccessKey,
			SecretKey: keys.SecretKey,
			UserRole:  models.RoleUser,
		}
		id, err = s.create(ctx, user)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.consumeCode(ctx, cmd.Email)
	s.publish(ctx, events.UserRegistered, events.UserRegisteredEvent{UserID: id, Email: cmd.Email})
	return id, nil
}

func (s *AccountCommandService) create(ctx context.Context, user *models.User) (int64, error) {
	id, err := s.users.Create(ctx, user)
	switch {
	case errors.Is(err, repository.ErrDuplicateAccount):
		return 0, apperr.Params("account already exists")
	case errors.Is(err, repository.ErrDuplicateEmail):
		return 0, apperr.Params("email already registered")
	case err != nil:
		return 0, apperr.System("registration failed, database error", err)
	}
	return id, nil
}

// ---------- Session ----------

// Login never tells an unknown account apart from a wrong password.
func (s *AccountCommandService) Login(ctx context.Context, cmd cqrs.LoginCommand) (res *LoginResult, err error) {
	defer func() {
		s.metrics.Logins.WithLabelValues(methodPassword, metrics.Outcome(err)).Inc()
	}()

	if utils.IsAnyBlank(cmd.UserAccount, cmd.UserPassword) {
		return nil, apperr.Params("parameters are empty")
	}
	if utf8.RuneCountInString(cmd.UserAccount) < minAccountLength || utf8.RuneCountInString(cmd.UserPassword) < minPasswordLength {
		return nil, apperr.Params(msgLoginFailed)
	}

	user, err := s.users.FindByAccountAndPassword(ctx, cmd.UserAccount, s.hasher.Digest(cmd.UserPassword))
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.InfoContext(ctx, "login rejected", "reason", "account and password do not match")
		return nil, apperr.Params(msgLoginFailed)
	}
	if err != nil {
		return nil, apperr.System("login failed", err)
	}
	return s.startSession(ctx, user)
}

func (s *AccountCommandService) LoginByEmail(ctx context.Context, cmd cqrs.EmailLoginCommand) (res *LoginResult, err error) {
	defer func() {
		s.metrics.Logins.WithLabelValues(methodEmail, metrics.Outcome(err)).Inc()
	}()

	if err := s.validateCode(ctx, cmd.Email, cmd.Code); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, cmd.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Params("user not found")
	}
	if err != nil {
		return nil, apperr.System("login failed", err)
	}

	s.consumeCode(ctx, cmd.Email)
	return s.startSession(ctx, user)
}

func (s *AccountCommandService) startSession(ctx context.Context, user *models.User) (*LoginResult, error) {
	tok, err := s.tokens.Issue(user.ID, user.UserName)
	if err != nil {
		return nil, apperr.System("failed to issue token", err)
	}
	if err := s.sessions.Save(ctx, user); err != nil {
		return nil, apperr.System("failed to save login state", err)
	}
	return &LoginResult{Token: tok, User: models.ToLoginUserView(user)}, nil
}

// validateCode checks the pending one-time code for email. It does not consume it.
func (s *AccountCommandService) validateCode(ctx context.Context, email, code string) error {
	if utils.IsAnyBlank(email, code) {
		return apperr.Params(msgBadCode)
	}
	stored, ok, err := s.codes.Get(ctx, email)
	if err != nil {
		return apperr.System("failed to read verification code", err)
	}
	if !ok || stored == "" || stored != code {
		return apperr.Params(msgBadCode)
	}
	return nil
}

func (s *AccountCommandService) consumeCode(ctx context.Context, email string) {
	if err := s.codes.Consume(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to consume verification code", "email", email, "error", err)
	}
}

// Logout deletes the session named by the token cookie. A token that no longer
// verifies has no session left to delete, so the cookie is cleared all the same.
func (s *AccountCommandService) Logout(ctx context.Context, cmd cqrs.LogoutCommand) error {
	if !cmd.HasIndicator {
		return apperr.Operation("not logged in")
	}

	userID, err := s.tokens.UserID(cmd.Token)
	if err != nil {
		s.logger.InfoContext(ctx, "logout with unverifiable token", "error", err)
		return nil
	}
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return apperr.System("failed to clear login state", err)
	}

	s.publish(ctx, events.UserLoggedOut, events.UserLoggedOutEvent{UserID: userID})
	return nil
}

// ---------- Profile ----------

// UpdateUser lets callers edit their own record; editing anyone else, or
// changing a role, needs the admin role.
func (s *AccountCommandService) UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) error {
	if cmd.Caller == nil {
		return apperr.NotLogin()
	}
	if cmd.TargetID <= 0 {
		return apperr.Params("invalid user id")
	}
	if cmd.TargetID != cmd.Caller.ID && !cmd.Caller.IsAdmin() {
		return apperr.NoAuth()
	}
	if cmd.UserRole != nil {
		if !cmd.Caller.IsAdmin() {
			return apperr.NoAuth()
		}
		if !cmd.UserRole.Valid() {
			return apperr.Params("invalid user role")
		}
	}

	updated, err := s.users.UpdateProfile(ctx, cmd.TargetID, repository.ProfilePatch{
		UserName:   cmd.UserName,
		UserAvatar: cmd.UserAvatar,
		UserRole:   cmd.UserRole,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Operation("user does not exist")
	}
	if err != nil {
		return apperr.System("failed to update user", err)
	}

	s.refreshSession(ctx, updated)
	s.publish(ctx, events.UserUpdated, events.UserUpdatedEvent{
		UserID:    updated.ID,
		UpdatedBy: cmd.Caller.ID,
		UserName:  updated.UserName,
	})
	return nil
}

// RotateKeys replaces the caller's access/secret pair. The new secret is only
// ever returned here.
func (s *AccountCommandService) RotateKeys(ctx context.Context, cmd cqrs.RotateKeysCommand) (keys *models.DevKeyView, err error) {
	defer func() {
		s.metrics.KeyRotations.WithLabelValues(metrics.Outcome(err)).Inc()
	}()

	caller := cmd.Caller
	if caller == nil {
		return nil, apperr.NotLogin()
	}

	seed := caller.UserAccount
	if seed == "" {
		seed = caller.Email
	}
	keys, err = s.keys.Generate(seed)
	if err != nil {
		return nil, apperr.System("failed to generate keys", err)
	}

	updated, err := s.users.UpdateKeys(ctx, caller.ID, caller.UserAccount, *keys)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Operation("user does not exist")
	}
	if err != nil {
		return nil, apperr.System("failed to update keys", err)
	}

	s.refreshSession(ctx, updated)
	s.publish(ctx, events.UserCredentialsRotated, events.UserCredentialsRotatedEvent{
		UserID:       caller.ID,
		OldAccessKey: caller.AccessKey,
	})
	return keys, nil
}

func (s *AccountCommandService) UpdateAvatar(ctx context.Context, cmd cqrs.UpdateAvatarCommand) (string, error) {
	if cmd.Caller == nil {
		return "", apperr.NotLogin()
	}

	url, err := s.avatars.Upload(ctx, cmd.Caller.ID, cmd.FileName, cmd.Size, cmd.Body)
	if err != nil {
		if apperr.Is(err, apperr.CodeParams) {
			return "", err
		}
		return "", apperr.System("failed to upload avatar", err)
	}

	updated, err := s.users.UpdateAvatar(ctx, cmd.Caller.ID, url)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperr.Operation("user does not exist")
	}
	if err != nil {
		return "", apperr.System("failed to update avatar", err)
	}

	s.refreshSession(ctx, updated)
	s.publish(ctx, events.UserUpdated, events.UserUpdatedEvent{
		UserID:    updated.ID,
		UpdatedBy: cmd.Caller.ID,
		UserName:  updated.UserName,
	})
	return url, nil
}

// refreshSession copies the stored row over the user's session, if they have
// one. The row is already committed, so a cache failure is only logged.
func (s *AccountCommandService) refreshSession(ctx context.Context, user *models.User) {
	if _, err := s.sessions.Refresh(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to refresh login state", "user_id", user.ID, "error", err)
	}
}

func (s *AccountCommandService) publish(ctx context.Context, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.UserEventsStream, eventType, data); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "type", eventType, "error", err)
	}
}
