package server

import (
	"net/http"

	orderdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/order/domain"
	"github.com/gin-gonic/gin"
)

type createOrderRequest struct {
	UserID string `json:"user_id" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateOrderRequest{
		UserID: req.UserID,
		PlanID: req.PlanID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}
