package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
)

// UpdateCollective edits the public profile and returns the spam scan of
// the new content next to the collective.
func (s *Server) UpdateCollective(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req collectivedomain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	collective, scan, err := s.collectiveSvc.UpdateProfile(c.Request.Context(), user.CollectiveID, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collective": collective,
		"spam":       scan,
	})
}

func (s *Server) AddFundsToCollective(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req orderdomain.AddFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CollectiveID = id

	order, err := s.orderSvc.AddFundsToCollective(c.Request.Context(), currentUser(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (s *Server) AddFundsToOrg(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req orderdomain.AddFundsToOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.CollectiveID = id

	method, err := s.orderSvc.AddFundsToOrg(c.Request.Context(), currentUser(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"paymentMethod": method})
}
