package middleware

import (
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserIDKey = "user_id"
	UserIDHeader     = "X-User-Id"
	AnonymousUserID  = "anonymous"

	maxUserIDLen = 128
)

// Identity trusts the user id forwarded by the gateway in front of the
// service. Missing or malformed ids fall back to the anonymous user.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserIDKey, normalizeUserID(c.GetHeader(UserIDHeader)))
		c.Next()
	}
}

// UserID returns the caller id stored by Identity.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return AnonymousUserID
}

func normalizeUserID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxUserIDLen {
		return AnonymousUserID
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return AnonymousUserID
		}
	}
	return id
}
