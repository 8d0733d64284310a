package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Request headers carrying the caller's identity and push credentials.
const (
	HeaderUserID      = "X-User-ID"
	HeaderAccessToken = "Access-Token"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyToken  = "pushToken"
)

// DefaultUserID is used when a request names no user.
const DefaultUserID = "demo-user"

// Identity copies X-User-ID and Access-Token into the Gin context so later
// middleware (rate limiting, idempotency, logging) and handlers agree on who
// is calling. An identity already set upstream wins over the header.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxKeyUserID); !ok {
			if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
				c.Set(ctxKeyUserID, h)
			}
		}
		if tok := strings.TrimSpace(c.GetHeader(HeaderAccessToken)); tok != "" {
			c.Set(ctxKeyToken, tok)
		}
		c.Next()
	}
}

// UserID returns the caller's user id, falling back to the X-User-ID header
// and then DefaultUserID.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return DefaultUserID
}

// PushToken returns the push API token of the request, or "".
func PushToken(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyToken); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if c.Request != nil {
		return strings.TrimSpace(c.GetHeader(HeaderAccessToken))
	}
	return ""
}
