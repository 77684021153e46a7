// Package health provides liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Status represents the health of a single component.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// CheckFunc probes one dependency. It should return quickly; the checker
// enforces a timeout around each call.
type CheckFunc func(ctx context.Context) error

// Checker runs registered dependency checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
	started time.Time
	version string
}

// New creates a checker. version is reported on the health endpoint.
func New(version string) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: 2 * time.Second,
		started: time.Now(),
		version: version,
	}
}

// Register adds a named dependency check.
func (h *Checker) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
}

type componentResult struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

type report struct {
	Status     Status                     `json:"status"`
	Version    string                     `json:"version"`
	UptimeSecs int64                      `json:"uptime_seconds"`
	Components map[string]componentResult `json:"components,omitempty"`
}

func (h *Checker) run(ctx context.Context) report {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	h.mu.RUnlock()

	rep := report{
		Status:     StatusOK,
		Version:    h.version,
		UptimeSecs: int64(time.Since(h.started).Seconds()),
		Components: make(map[string]componentResult, len(checks)),
	}

	for name, fn := range checks {
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := fn(cctx)
		cancel()
		if err != nil {
			rep.Components[name] = componentResult{Status: StatusDown, Error: err.Error()}
			rep.Status = StatusDegraded
		} else {
			rep.Components[name] = componentResult{Status: StatusOK}
		}
	}

	return rep
}

// Handler serves GET /health with full component detail.
func (h *Checker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rep := h.run(c.Request.Context())
		code := http.StatusOK
		if rep.Status != StatusOK {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, rep)
	}
}

// LiveHandler serves GET /health/live. It succeeds as long as the process
// responds; dependency state is irrelevant to liveness.
func (h *Checker) LiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// ReadyHandler serves GET /health/ready. It fails if any dependency check
// fails so load balancers stop routing traffic here.
func (h *Checker) ReadyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rep := h.run(c.Request.Context())
		if rep.Status != StatusOK {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
