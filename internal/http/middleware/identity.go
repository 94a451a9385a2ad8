package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/japaniel/glossary/internal/logger"
	"github.com/japaniel/glossary/pkg/telemetry"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderSessionID = "X-Session-Id"
	// HeaderUserID carries the user id set by the upstream auth layer.
	HeaderUserID  = "X-User-Id"
	CookieSession = "session_id"

	keySessionID = "glossary.session_id"
	keyUserID    = "glossary.user_id"
)

// Identity resolves the request id, the anonymous session and the user of a
// request, and attaches them to the request context for logging. A session id
// is issued when the client sent none, and the session cookie is set whenever
// the client does not already carry it.
func Identity(secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		cookie, _ := c.Cookie(CookieSession)
		raw := c.GetHeader(HeaderSessionID)
		if strings.TrimSpace(raw) == "" {
			raw = cookie
		}
		sessionID, _ := telemetry.EnsureSession(raw)
		if cookie != sessionID {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CookieSession, sessionID, int(telemetry.SessionTTL.Seconds()), "/", "", secureCookie, true)
		}

		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		c.Set(keySessionID, sessionID)
		c.Set(keyUserID, userID)

		fields := logger.LogFields{RequestID: &requestID, SessionID: &sessionID}
		if userID != "" {
			fields.UserID = &userID
		}
		c.Request = c.Request.WithContext(logger.WithLogFields(c.Request.Context(), fields))
		c.Next()
	}
}

// SessionID returns the session resolved by Identity.
func SessionID(c *gin.Context) string {
	return c.GetString(keySessionID)
}

// UserID returns the authenticated user, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(keyUserID)
}
