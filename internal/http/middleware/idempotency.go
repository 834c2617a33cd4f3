// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// Idempotency support for unsafe methods. Retried answer submissions and
// chat turns must not generate a second reply or a duplicate row, so the
// client sends an Idempotency-Key header and the server deduplicates on
// (user, session, key). The middleware owns the transport half: it
// validates the header, stashes the key in the context, and probes an
// injected lookup for an earlier completed request. Handlers own the other
// half, replaying the persisted result when GetIdempotencyKey matches a
// stored record.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the deduplication
// key. Clients keep the value stable across retries of one semantic
// operation.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys for idempotency state. Read them through the accessors.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stashed by
// IdempotencyValidator. Handlers read this instead of the raw header.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found an earlier completed request
// for this key. Handlers may then serve the persisted result instead of
// recomputing; the rate limiter skips replays via the bypass flag.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions tunes header validation. MaxLen defaults to 200 when
// non-positive; Pattern defaults to a token-ish character set,
// ^[A-Za-z0-9._~\-:]+$. TTL enforcement belongs in the lookup, not here.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a completed, unexpired record exists
// for (userID, sessionID, key) as of now. Lookup errors must not block the
// request; implementations return exists=false on failure.
type IdempotencyLookup func(ctx context.Context, userID, sessionID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present
// and stashes it for handlers. A missing header makes the middleware a
// no-op; a malformed one is rejected with 400 before any handler runs.
// When the lookup confirms a prior completion, the replay and rate-bypass
// flags are set. Serving the cached payload stays with the handler.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			// Session-scoped routes carry :id; POST bodies are re-checked in
			// the handler, where the session reference is available.
			sessionID := c.Param("id")
			now := time.Now().UTC()

			if exists, _ := lookup(c.Request.Context(), userIDFromCtx(c), sessionID, key, now); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx reads the learner id set by upstream auth middleware,
// falling back to the demo identity used in development.
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "demo-user"
}
