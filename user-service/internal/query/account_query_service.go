package query

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
	"github.com/waterbird-i/wbapi-backend/shared/cqrs"
	"github.com/waterbird-i/wbapi-backend/shared/metrics"
	"github.com/waterbird-i/wbapi-backend/shared/models"
	"github.com/waterbird-i/wbapi-backend/user-service/internal/repository"
)

type TokenVerifier interface {
	UserID(token string) (int64, error)
}

type SessionReader interface {
	Get(ctx context.Context, userID int64) (*models.User, bool, error)
}

type AccessKeyFinder interface {
	FindByAccessKey(ctx context.Context, accessKey string) (*models.User, error)
}

// AccountQueryService answers reads. The current user comes from the session
// cache only; the relational store is consulted for inter-service lookups.
type AccountQueryService struct {
	tokens   TokenVerifier
	sessions SessionReader
	users    AccessKeyFinder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewAccountQueryService(tokens TokenVerifier, sessions SessionReader, users AccessKeyFinder, m *metrics.Metrics, logger *slog.Logger) *AccountQueryService {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountQueryService{tokens: tokens, sessions: sessions, users: users, metrics: m, logger: logger}
}

// CurrentUser verifies the token and then requires a live session. Both
// checks must pass; they fail for different reasons.
func (s *AccountQueryService) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	return s.Current(ctx, cqrs.CurrentUserQuery{Token: token})
}

func (s *AccountQueryService) Current(ctx context.Context, q cqrs.CurrentUserQuery) (*models.User, error) {
	userID, err := s.tokens.UserID(q.Token)
	if err != nil {
		s.logger.DebugContext(ctx, "token rejected", "error", err)
		return nil, apperr.NotLogin()
	}

	user, ok, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, apperr.System("failed to read login state", err)
	}
	if !ok {
		s.logger.DebugContext(ctx, "no session for verified token", "user_id", userID)
		return nil, apperr.NotLogin()
	}
	return user, nil
}

// GetInvokeUser finds the owner of accessKey. No match is (nil, nil).
func (s *AccountQueryService) GetInvokeUser(ctx context.Context, q cqrs.InvokeUserQuery) (*models.User, error) {
	if strings.TrimSpace(q.AccessKey) == "" {
		return nil, apperr.Params("access key is empty")
	}

	user, err := s.users.FindByAccessKey(ctx, q.AccessKey)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.InvokeLookups.WithLabelValues("miss").Inc()
		return nil, nil
	case err != nil:
		s.metrics.InvokeLookups.WithLabelValues("error").Inc()
		return nil, apperr.System("failed to look up access key", err)
	}
	s.metrics.InvokeLookups.WithLabelValues("hit").Inc()
	return user, nil
}
