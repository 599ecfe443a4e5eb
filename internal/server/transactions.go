package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) RefundTransaction(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	refund, err := s.orderSvc.RefundTransaction(c.Request.Context(), currentUser(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": refund})
}
