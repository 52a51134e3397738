package server

import (
	"errors"
	"net/http"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/gateway"
	ledgerdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger/domain"
	orderdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/domain"
	plandomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/plan/domain"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/reconcile"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, plandomain.ErrInvalidPlan),
		errors.Is(err, orderdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, gateway.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_signature",
			Message: "signature verification failed",
		}
	case errors.Is(err, gateway.ErrSecretNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "secret_not_configured",
			Message: "payment gateway secret is not configured",
		}
	case errors.Is(err, reconcile.ErrUnknownOrder),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, reconcile.ErrOrderClosed),
		errors.Is(err, reconcile.ErrPaymentIDMismatch),
		errors.Is(err, reconcile.ErrOrderMismatch),
		errors.Is(err, orderdomain.ErrConflict),
		errors.Is(err, ledgerdomain.ErrDuplicateCredit):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_balance",
			Message: "insufficient token balance",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
