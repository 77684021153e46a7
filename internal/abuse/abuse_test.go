package abuse

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Threshold:     3,
		Window:        time.Minute,
		BlockDuration: time.Hour,
	}
}

func TestRecordFailureAutoBlocks(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	defer tr.Stop()

	id := Identity{IP: "10.0.0.1", UserID: "user-1"}

	tr.RecordFailure(id, "http_500")
	tr.RecordFailure(id, "http_500")

	blocked, _ := tr.IsBlocked(id)
	assert.False(t, blocked, "below threshold should not block")

	tr.RecordFailure(id, "http_500")

	blocked, reason := tr.IsBlocked(id)
	require.True(t, blocked, "threshold reached should block")
	assert.Equal(t, ReasonIPBlocked, reason)

	// The user key crossed the threshold too.
	e, ok := tr.UserEntry("user-1")
	require.True(t, ok)
	assert.True(t, e.Blocked)
	assert.Equal(t, 3, e.Count)
}

func TestIPAndUserTrackedIndependently(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	defer tr.Stop()

	// Same user across different IPs.
	tr.RecordFailure(Identity{IP: "10.0.0.1", UserID: "user-1"}, "http_400")
	tr.RecordFailure(Identity{IP: "10.0.0.2", UserID: "user-1"}, "http_400")
	tr.RecordFailure(Identity{IP: "10.0.0.3", UserID: "user-1"}, "http_400")

	ipEntry, ok := tr.IPEntry("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, 1, ipEntry.Count)
	assert.False(t, ipEntry.Blocked)

	userEntry, ok := tr.UserEntry("user-1")
	require.True(t, ok)
	assert.Equal(t, 3, userEntry.Count)
	assert.True(t, userEntry.Blocked)

	// A fresh IP with the blocked user is still denied.
	blocked, reason := tr.IsBlocked(Identity{IP: "10.0.0.9", UserID: "user-1"})
	require.True(t, blocked)
	assert.Equal(t, ReasonUserBlocked, reason)
}

func TestWindowExpiryResetsCount(t *testing.T) {
	cfg := testConfig()
	cfg.Window = 30 * time.Millisecond
	tr := NewTracker(cfg, nil)
	defer tr.Stop()

	id := Identity{IP: "10.0.0.4"}
	tr.RecordFailure(id, "http_500")
	tr.RecordFailure(id, "http_500")

	time.Sleep(50 * time.Millisecond)

	// Stale window: this failure starts a new count of 1.
	tr.RecordFailure(id, "http_500")

	e, ok := tr.IPEntry("10.0.0.4")
	require.True(t, ok)
	assert.Equal(t, 1, e.Count)
	assert.False(t, e.Blocked)
}

func TestBlockExpires(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	defer tr.Stop()

	id := Identity{IP: "10.0.0.5"}
	tr.Block(id, 30*time.Millisecond)

	blocked, _ := tr.IsBlocked(id)
	require.True(t, blocked)

	time.Sleep(80 * time.Millisecond)

	blocked, _ = tr.IsBlocked(id)
	assert.False(t, blocked, "block should expire after its duration")
}

func TestReblockExtendsDeadline(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	defer tr.Stop()

	id := Identity{IP: "10.0.0.6"}
	tr.Block(id, 30*time.Millisecond)
	// A longer re-block supersedes the pending unblock.
	tr.Block(id, 200*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	blocked, _ := tr.IsBlocked(id)
	require.True(t, blocked, "first deadline must not unblock after re-block")

	time.Sleep(200 * time.Millisecond)
	blocked, _ = tr.IsBlocked(id)
	assert.False(t, blocked)
}

func TestManualUnblock(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	defer tr.Stop()

	id := Identity{IP: "10.0.0.7", UserID: "user-7"}
	tr.Block(id, time.Hour)

	blocked, _ := tr.IsBlocked(id)
	require.True(t, blocked)

	tr.Unblock(id)
	blocked, _ = tr.IsBlocked(id)
	assert.False(t, blocked)
}

func TestFromRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "192.168.1.1:1234"
	c.Request.Header.Set(HeaderForwardedFor, "203.0.113.7, 10.0.0.1")
	c.Request.Header.Set(HeaderUserID, "user-x")

	id := FromRequest(c)
	assert.Equal(t, "203.0.113.7", id.IP)
	assert.Equal(t, "user-x", id.UserID)
}

func newTestRouter(tr *Tracker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(tr.Middleware())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	return r
}

func TestMiddlewareRecordsFailures(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	defer tr.Stop()
	r := newTestRouter(tr)

	do := func(path string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(HeaderForwardedFor, "198.51.100.1")
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("/ok"))
	_, ok := tr.IPEntry("198.51.100.1")
	assert.False(t, ok, "success should not create an entry")

	do("/fail")
	e, ok := tr.IPEntry("198.51.100.1")
	require.True(t, ok)
	assert.Equal(t, 1, e.Count)
}

func TestMiddlewareDeniesBlockedWithoutCounting(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	defer tr.Stop()
	r := newTestRouter(tr)

	tr.Block(Identity{IP: "198.51.100.2"}, time.Hour)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderForwardedFor, "198.51.100.2")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "access_denied"))

	// The 403 itself must not count as a new failure.
	e, ok := tr.IPEntry("198.51.100.2")
	require.True(t, ok)
	assert.Equal(t, 0, e.Count)
}

func TestAdminBlockHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tr := NewTracker(testConfig(), nil)
	defer tr.Stop()

	r := gin.New()
	h := NewHandler(tr, "s3cret")
	h.RegisterRoutes(r.Group("/v1"))

	do := func(method, secret, body string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, "/v1/admin/blocks", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if secret != "" {
			req.Header.Set("X-Admin-Secret", secret)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "", `{"ip":"1.2.3.4"}`))
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodPost, "wrong", `{"ip":"1.2.3.4"}`))
	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "s3cret", `{}`))

	require.Equal(t, http.StatusOK, do(http.MethodPost, "s3cret", `{"ip":"1.2.3.4","duration_seconds":3600}`))
	blocked, _ := tr.IsBlocked(Identity{IP: "1.2.3.4"})
	assert.True(t, blocked)

	require.Equal(t, http.StatusOK, do(http.MethodDelete, "s3cret", `{"ip":"1.2.3.4"}`))
	blocked, _ = tr.IsBlocked(Identity{IP: "1.2.3.4"})
	assert.False(t, blocked)
}
