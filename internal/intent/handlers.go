package intent

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/payguard/internal/logging"
	"github.com/mbd888/payguard/internal/nonce"
	"github.com/mbd888/payguard/internal/payments"
	"github.com/mbd888/payguard/internal/validation"
)

// Handler exposes the signed-intent endpoint.
type Handler struct {
	svc *Service
}

// NewHandler creates the intent handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the intent endpoint on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/intent", h.execute)
}

func (h *Handler) execute(c *gin.Context) {
	var it SignedIntent
	if err := c.ShouldBindJSON(&it); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid request body: " + err.Error(),
		})
		return
	}

	receipt, err := h.svc.Execute(c.Request.Context(), it)
	if err != nil {
		respondIntentError(c, err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// respondIntentError maps pipeline errors to HTTP responses.
func respondIntentError(c *gin.Context, err error) {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"details": verrs,
		})
	case errors.Is(err, ErrSignatureInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "signature_invalid",
			"message": err.Error(),
		})
	case errors.Is(err, ErrIntentExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "intent_expired",
			"message": err.Error(),
		})
	case errors.Is(err, nonce.ErrNonceUsed):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "nonce_replayed",
			"message": err.Error(),
		})
	case errors.Is(err, payments.ErrExecutionFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "execution_failed",
			"message": err.Error(),
		})
	default:
		logging.L(c.Request.Context()).Error("unexpected intent error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "an unexpected error occurred",
		})
	}
}
