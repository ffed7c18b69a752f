package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/waterbird-i/wbapi-backend/shared/database"
	"github.com/waterbird-i/wbapi-backend/shared/models"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrDuplicateAccessKey = errors.New("access key already exists")
)

const uniqueViolation = "23505"

const userColumns = `id, user_account, user_password, access_key, secret_key, email,
	user_name, user_avatar, user_role, created_at, updated_at`

// ProfilePatch is a partial profile update; nil fields keep their value.
type ProfilePatch struct {
	UserName   *string
	UserAvatar *string
	UserRole   *models.Role
}

// UserRepository is the Postgres store of user records, the source of truth
// that sessions are copied from.
type UserRepository struct {
	db *sql.DB
	q  database.DBTX
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db, q: db}
}

// Create inserts u and fills in its id and timestamps.
func (r *UserRepository) Create(ctx context.Context, u *models.User) (int64, error) {
	role := u.UserRole
	if role == "" {
		role = models.RoleUser
	}
	query := `
		INSERT INTO users (user_account, user_password, access_key, secret_key, email,
			user_name, user_avatar, user_role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.q.QueryRowContext(ctx, query,
		nullString(u.UserAccount), nullString(u.UserPassword), u.AccessKey, u.SecretKey,
		nullString(u.Email), nullString(u.UserName), nullString(u.UserAvatar), string(role),
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return 0, dup
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	u.UserRole = role
	return u.ID, nil
}

func (r *UserRepository) ExistsByAccount(ctx context.Context, account string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_account = $1)`, account)
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
}

func (r *UserRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	var found bool
	if err := r.q.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return found, nil
}

// FindByAccountAndPassword matches both the account and the stored digest exactly.
func (r *UserRepository) FindByAccountAndPassword(ctx context.Context, account, digest string) (*models.User, error) {
	return r.findOne(ctx, `WHERE user_account = $1 AND user_password = $2`, account, digest)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `WHERE email = $1`, email)
}

func (r *UserRepository) FindByAccessKey(ctx context.Context, accessKey string) (*models.User, error) {
	return r.findOne(ctx, `WHERE access_key = $1`, accessKey)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// UpdateProfile applies p and returns the full record as stored afterwards.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, p ProfilePatch) (*models.User, error) {
	var role sql.NullString
	if p.UserRole != nil {
		role = sql.NullString{String: string(*p.UserRole), Valid: true}
	}
	query := `
		UPDATE users
		SET user_name = COALESCE($2, user_name),
			user_avatar = COALESCE($3, user_avatar),
			user_role = COALESCE($4, user_role),
			updated_at = NOW()
		WHERE id = $1
	`
	return r.updateAndReload(ctx, id, query, id, optString(p.UserName), optString(p.UserAvatar), role)
}

// UpdateKeys overwrites the credential pair. The row must match both id and account.
func (r *UserRepository) UpdateKeys(ctx context.Context, id int64, account string, keys models.DevKeyView) (*models.User, error) {
	query := `
		UPDATE users
		SET access_key = $3, secret_key = $4, updated_at = NOW()
		WHERE id = $1 AND COALESCE(user_account, '') = $2
	`
	return r.updateAndReload(ctx, id, query, id, account, keys.AccessKey, keys.SecretKey)
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id int64, avatarURL string) (*models.User, error) {
	query := `UPDATE users SET user_avatar = $2, updated_at = NOW() WHERE id = $1`
	return r.updateAndReload(ctx, id, query, id, avatarURL)
}

// updateAndReload runs the update and the re-read in one transaction so the
// returned record is exactly what the update produced.
func (r *UserRepository) updateAndReload(ctx context.Context, id int64, query string, args ...any) (*models.User, error) {
	var user *models.User
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			if dup := duplicateError(err); dup != nil {
				return dup
			}
			return fmt.Errorf("failed to update user: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNotFound
		}
		user, err = (&UserRepository{db: r.db, q: tx}).GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) findOne(ctx context.Context, where string, args ...any) (*models.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where, args...)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user                                         models.User
		account, password, email, name, avatar, role sql.NullString
	)
	err := row.Scan(
		&user.ID, &account, &password, &user.AccessKey, &user.SecretKey, &email,
		&name, &avatar, &role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.UserAccount = account.String
	user.UserPassword = password.String
	user.Email = email.String
	user.UserName = name.String
	user.UserAvatar = avatar.String
	user.UserRole = models.Role(role.String)
	return &user, nil
}

func duplicateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	switch pqErr.Constraint {
	case "users_email_key":
		return ErrDuplicateEmail
	case "users_access_key_key":
		return ErrDuplicateAccessKey
	default:
		return ErrDuplicateAccount
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func optString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
