package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetBalance(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.ledgerSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func (s *Server) ListLedgerEntries(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.ledgerSvc.ListEntries(c.Request.Context(), userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type debitRequest struct {
	Tokens int64  `json:"tokens" binding:"required"`
	Note   string `json:"note"`
}

// DebitTokens is the usage path contract: collaborators (the chat proxy)
// charge completed generations here.
func (s *Server) DebitTokens(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req debitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.ledgerSvc.Debit(c.Request.Context(), userID, req.Tokens, req.Note); err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.ledgerSvc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}
