// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file makes moderator decisions safe to resend. A client attaches an
// Idempotency-Key to POST /actions/:id/decision; when a decision with the
// same (user, action, key) was already dispatched and is still within its
// TTL, the request is marked as a replay so the handler answers from the
// stored result instead of posting a second response push.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // *Replay
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// Replay is the stored outcome of an earlier decision request.
type Replay struct {
	Decision string
	Status   int
}

// IdempotencyOptions configures key validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the stored outcome for (userID, actionID, key)
// if one is still valid at now. A nil Replay means none. Lookup errors do not
// block the request.
type IdempotencyLookup func(ctx context.Context, userID, actionID, key string, now time.Time) (*Replay, error)

// GetIdempotencyKey returns the validated key of the request.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// ReplayOf returns the stored outcome when this request repeats an earlier
// one.
func ReplayOf(c *gin.Context) (*Replay, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return nil, false
	}
	r, _ := v.(*Replay)
	return r, r != nil
}

// IsReplay reports whether ReplayOf would find a stored outcome.
func IsReplay(c *gin.Context) bool {
	_, ok := ReplayOf(c)
	return ok
}

// IdempotencyValidator validates the Idempotency-Key header, stashes it, and
// consults lookup keyed by the :id route parameter. A replay also bypasses
// the rate limiter. Requests without the header pass through untouched; an
// invalid key is rejected with 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		actionID := c.Param("id")
		if lookup != nil && actionID != "" {
			if r, err := lookup(c.Request.Context(), UserID(c), actionID, key, time.Now().UTC()); err == nil && r != nil {
				c.Set(ctxKeyIdemReplay, r)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
