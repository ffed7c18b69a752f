package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
	"github.com/waterbird-i/wbapi-backend/shared/models"
	"github.com/waterbird-i/wbapi-backend/shared/token"
)

// TokenCookie is the cookie that carries the bearer token after login.
const TokenCookie = "token"

const (
	ctxUserID    = "userId"
	ctxLoginUser = "loginUser"
)

// SessionResolver turns a bearer token into the cached session record.
type SessionResolver interface {
	CurrentUser(ctx context.Context, token string) (*models.User, error)
}

// TokenFromRequest reads "Authorization: Bearer <token>" and falls back to the token cookie.
func TokenFromRequest(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware only verifies the token signature and expiry. It is used at
// the edge, where no session store is reachable.
func AuthMiddleware(issuer *token.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := issuer.Parse(TokenFromRequest(c))
		if err != nil {
			RespondWithAppError(c, apperr.NotLogin())
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Next()
	}
}

// RequireLogin resolves the token to a live session and stores the user in the context.
func RequireLogin(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolver.CurrentUser(c.Request.Context(), TokenFromRequest(c))
		if err != nil {
			RespondWithAppError(c, err)
			c.Abort()
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Set(ctxLoginUser, user)
		c.Next()
	}
}

func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get(ctxUserID)
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}

func GetLoginUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(ctxLoginUser)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
