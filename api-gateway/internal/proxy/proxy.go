// Package proxy forwards gateway requests to upstream services.
package proxy

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waterbird-i/wbapi-backend/api-gateway/internal/invoke"
	"github.com/waterbird-i/wbapi-backend/shared/middleware"
)

const (
	HeaderUserID       = "X-User-ID"
	HeaderInvokeUserID = "X-Invoke-User-ID"
)

// DefaultMaxBody fits an avatar upload with its multipart framing.
const DefaultMaxBody = 4 << 20

type Proxy struct {
	// MaxBody caps the request body forwarded upstream.
	MaxBody int64
	client  *http.Client
	logger  *slog.Logger
}

func New(timeout time.Duration, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{MaxBody: DefaultMaxBody, client: &http.Client{Timeout: timeout}, logger: logger}
}

// To forwards the request to serviceURL + path. stripPrefix is removed from the
// path first. Identity headers are always set by the gateway, never by the caller.
func (p *Proxy) To(serviceURL, stripPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Build target URL
		targetURL := serviceURL + strings.TrimPrefix(c.Request.URL.Path, stripPrefix)
		if c.Request.URL.RawQuery != "" {
			targetURL += "?" + c.Request.URL.RawQuery
		}

		var bodyBytes []byte
		if c.Request.Body != nil {
			var err error
			bodyBytes, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, p.MaxBody))
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				middleware.RespondWithError(c, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			if err != nil {
				middleware.RespondWithError(c, http.StatusBadRequest, "Failed to read request body")
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, bytes.NewBuffer(bodyBytes))
		if err != nil {
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to create request")
			return
		}

		for key, values := range c.Request.Header {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
		req.Header.Del(HeaderUserID)
		req.Header.Del(HeaderInvokeUserID)

		// Forward identities established by the gateway middleware
		if userID, ok := middleware.GetUserID(c); ok {
			req.Header.Set(HeaderUserID, strconv.FormatInt(userID, 10))
		}
		if invokeID, ok := invoke.GetInvokeUserID(c); ok {
			req.Header.Set(HeaderInvokeUserID, strconv.FormatInt(invokeID, 10))
		}

		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.ErrorContext(c.Request.Context(), "error proxying request", "target", targetURL, "error", err)
			middleware.RespondWithError(c, http.StatusBadGateway, "Service unavailable")
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to read response")
			return
		}

		for key, values := range resp.Header {
			for _, value := range values {
				c.Writer.Header().Add(key, value)
			}
		}

		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}
}
