package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/reconcile"
	"github.com/gin-gonic/gin"
)

const webhookSignatureHeader = "X-Razorpay-Signature"

func (s *Server) VerifyPayment(c *gin.Context) {
	var req reconcile.CheckoutConfirmation
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.engineSvc.HandleCheckout(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	// Accepted is provisional: the webhook remains the only crediting
	// trigger.
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	signature := strings.TrimSpace(c.GetHeader(webhookSignatureHeader))

	result, err := s.engineSvc.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// AlreadyCaptured and ignored event types still answer 200 so the
	// gateway stops redelivering.
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": string(result)})
}
