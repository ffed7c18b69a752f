package invoke

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waterbird-i/wbapi-backend/shared/apperr"
	"github.com/waterbird-i/wbapi-backend/shared/middleware"
)

// DefaultMaxSkew is how old a signed request may be.
const DefaultMaxSkew = 5 * time.Minute

// DefaultMaxBody caps the body buffered for signature verification.
const DefaultMaxBody = 1 << 20

const ctxInvokeUserID = "invokeUserId"

type NonceStore interface {
	Remember(ctx context.Context, accessKey, nonce string, ttl time.Duration) (bool, error)
}

type Options struct {
	MaxSkew time.Duration
	MaxBody int64
	Now     func() time.Time
	Logger  *slog.Logger
}

// Middleware admits a request only if its headers carry a known access key, a
// fresh timestamp, an unused nonce and a valid signature over the body.
func Middleware(lookup UserLookup, nonces NonceStore, opts Options) gin.HandlerFunc {
	if opts.MaxSkew == 0 {
		opts.MaxSkew = DefaultMaxSkew
	}
	if opts.MaxBody == 0 {
		opts.MaxBody = DefaultMaxBody
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		accessKey := c.GetHeader(HeaderAccessKey)
		nonce := c.GetHeader(HeaderNonce)
		timestamp := c.GetHeader(HeaderTimestamp)
		sign := c.GetHeader(HeaderSign)
		if accessKey == "" || nonce == "" || timestamp == "" || sign == "" {
			reject(c, apperr.Params("missing signature headers"))
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			reject(c, apperr.Params("invalid timestamp"))
			return
		}
		if age := opts.Now().Sub(time.Unix(ts, 0)); age > opts.MaxSkew || age < -opts.MaxSkew {
			reject(c, apperr.NoAuth())
			return
		}

		user, err := lookup.GetInvokeUser(ctx, accessKey)
		if err != nil {
			opts.Logger.ErrorContext(ctx, "invoke user lookup failed", "error", err)
			reject(c, apperr.System("failed to verify caller", err))
			return
		}
		if user == nil {
			reject(c, apperr.NoAuth())
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxBody))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RespondWithError(c, http.StatusRequestEntityTooLarge, "Request body too large")
			c.Abort()
			return
		}
		if err != nil {
			reject(c, apperr.Params("failed to read body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !Verify(user.SecretKey, body, nonce, timestamp, sign) {
			reject(c, apperr.NoAuth())
			return
		}

		fresh, err := nonces.Remember(ctx, accessKey, nonce, 2*opts.MaxSkew)
		if err != nil {
			reject(c, apperr.System("failed to verify caller", err))
			return
		}
		if !fresh {
			reject(c, apperr.NoAuth())
			return
		}

		c.Set(ctxInvokeUserID, user.ID)
		c.Next()
	}
}

func GetInvokeUserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ctxInvokeUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func reject(c *gin.Context, err error) {
	middleware.RespondWithAppError(c, err)
	c.Abort()
}
