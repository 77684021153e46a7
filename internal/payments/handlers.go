package payments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/payguard/internal/logging"
	"github.com/mbd888/payguard/internal/validation"
)

// Handler exposes the direct-payment endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates the payments handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the payment endpoints on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.pay)
	r.GET("/payments/:id", h.status)
}

func (h *Handler) pay(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	receipt, err := h.svc.Pay(c.Request.Context(), req)
	if err != nil {
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) status(c *gin.Context) {
	ts, err := h.svc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": err.Error(),
			})
			return
		}
		respondPaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, ts)
}

// respondPaymentError maps service errors to HTTP responses.
func respondPaymentError(c *gin.Context, err error) {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"details": verrs,
		})
	case errors.Is(err, ErrWalletPolicy):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "wallet_policy_violation",
			"message": err.Error(),
		})
	case errors.Is(err, ErrGuardViolation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "guard_violation",
			"message": err.Error(),
		})
	case errors.Is(err, ErrExecutionFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "execution_failed",
			"message": err.Error(),
		})
	default:
		logging.L(c.Request.Context()).Error("unexpected payment error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "an unexpected error occurred",
		})
	}
}
