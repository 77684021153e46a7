package abuse

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/payguard/internal/logging"
	"github.com/mbd888/payguard/internal/metrics"
)

// Headers consulted when deriving the client identity.
const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderUserID       = "X-User-Id"
	HeaderPrivyUserID  = "X-Privy-User-Id"
)

// deniedKey marks a request the gate itself rejected, so the post-handler
// failure accounting doesn't double-count the denial.
const deniedKey = "abuseDenied"

// FromRequest derives the client identity from a gin request. The IP is the
// left-most forwarded-for entry when present, otherwise the transport peer.
func FromRequest(c *gin.Context) Identity {
	ip := c.ClientIP()
	if fwd := c.GetHeader(HeaderForwardedFor); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	userID := c.GetHeader(HeaderPrivyUserID)
	if userID == "" {
		userID = c.GetHeader(HeaderUserID)
	}

	return Identity{IP: ip, UserID: userID}
}

// Middleware is the request admission gate. It denies blocked clients before
// any other processing and records 4xx/5xx responses as tracked failures.
func (t *Tracker) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := FromRequest(c)

		if blocked, reason := t.IsBlocked(id); blocked {
			metrics.AbuseDeniedTotal.Inc()
			logging.L(c.Request.Context()).Warn("request denied",
				"ip", id.IP,
				"user_id", id.UserID,
				"reason", reason,
			)
			c.Set(deniedKey, true)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "access_denied",
				"message": reason,
			})
			return
		}

		c.Next()

		// An access-denied response is a consequence of prior tracking,
		// not a new failure.
		if c.GetBool(deniedKey) {
			return
		}
		if status := c.Writer.Status(); status >= 400 {
			t.RecordFailure(id, fmt.Sprintf("http_%d", status))
		}
	}
}

// RecordRateLimited counts a rate-limit rejection from the enclosing layer as
// a tracked failure. Wired as the rate limiter's rejection hook.
func (t *Tracker) RecordRateLimited(c *gin.Context) {
	c.Set(deniedKey, true) // already counted here; skip the status-based pass
	t.RecordFailure(FromRequest(c), "rate_limit_exceeded")
}
