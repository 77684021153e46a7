package abuse

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/payguard/internal/logging"
)

// Handler exposes operator endpoints for block management.
type Handler struct {
	tracker *Tracker
	secret  string
}

// NewHandler creates the admin handler. An empty secret disables the routes.
func NewHandler(tracker *Tracker, secret string) *Handler {
	return &Handler{tracker: tracker, secret: secret}
}

// RegisterRoutes mounts the admin block endpoints on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin", h.requireSecret())
	admin.POST("/blocks", h.createBlock)
	admin.DELETE("/blocks", h.deleteBlock)
}

func (h *Handler) requireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.secret == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		given := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

type blockRequest struct {
	IP              string `json:"ip"`
	UserID          string `json:"user_id"`
	DurationSeconds int64  `json:"duration_seconds"`
}

func (h *Handler) createBlock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if req.IP == "" && req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "ip or user_id is required",
		})
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	h.tracker.Block(Identity{IP: req.IP, UserID: req.UserID}, duration)

	logging.L(c.Request.Context()).Info("admin block applied",
		"ip", req.IP,
		"user_id", req.UserID,
		"duration_seconds", req.DurationSeconds,
	)
	c.JSON(http.StatusOK, gin.H{"status": "blocked"})
}

func (h *Handler) deleteBlock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if req.IP == "" && req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "ip or user_id is required",
		})
		return
	}

	h.tracker.Unblock(Identity{IP: req.IP, UserID: req.UserID})
	c.JSON(http.StatusOK, gin.H{"status": "unblocked"})
}
