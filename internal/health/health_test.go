package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthyReport(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := New("test")
	h.Register("backend", func(ctx context.Context) error { return nil })

	r := gin.New()
	r.GET("/health", h.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}

	var rep report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Status != StatusOK {
		t.Errorf("status = %s, want ok", rep.Status)
	}
	if rep.Components["backend"].Status != StatusOK {
		t.Errorf("backend = %s, want ok", rep.Components["backend"].Status)
	}
}

func TestDegradedReport(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := New("test")
	h.Register("db", func(ctx context.Context) error { return errors.New("connection refused") })

	r := gin.New()
	r.GET("/health", h.Handler())
	r.GET("/health/ready", h.ReadyHandler())
	r.GET("/health/live", h.LiveHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("/health got %d, want 503", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("/health/ready got %d, want 503", w.Code)
	}

	// Liveness ignores dependency failures.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health/live got %d, want 200", w.Code)
	}
}
