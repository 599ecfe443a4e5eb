package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/authorization"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
)

func (s *Server) CreateOrder(c *gin.Context) {
	var req orderdomain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.RemoteIP = c.ClientIP()

	result, err := s.orderSvc.CreateOrder(c.Request.Context(), currentUser(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) GetOrder(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeOrderView(c.Request.Context(), currentUser(c), order); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// authorizeOrderView lets admins of the payer, of the recipient and of the
// recipient's host read an order.
func (s *Server) authorizeOrderView(ctx context.Context, user *authdomain.User, order *orderdomain.Order) error {
	if user == nil {
		return ErrUnauthorized
	}
	collective, err := s.collectiveSvc.GetByID(ctx, order.CollectiveID)
	if err != nil {
		return err
	}
	hostID, err := s.collectiveSvc.HostCollectiveID(ctx, collective)
	if err != nil {
		return err
	}
	for _, candidate := range []*snowflake.ID{&order.FromCollectiveID, &order.CollectiveID, hostID} {
		admin, err := s.authzSvc.IsAdmin(ctx, user.CollectiveID, candidate)
		if err != nil {
			return err
		}
		if admin {
			return nil
		}
	}
	return authorization.ErrForbidden
}

func (s *Server) ConfirmOrder(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.orderSvc.ConfirmOrder(c.Request.Context(), currentUser(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) CompletePledge(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req orderdomain.CompletePledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = id

	result, err := s.orderSvc.CompletePledge(c.Request.Context(), currentUser(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	s.orderTransition(c, s.orderSvc.CancelSubscription)
}

func (s *Server) UpdateSubscription(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req orderdomain.UpdateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = id

	result, err := s.orderSvc.UpdateSubscription(c.Request.Context(), currentUser(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) MarkOrderAsPaid(c *gin.Context) {
	s.orderTransition(c, s.orderSvc.MarkAsPaid)
}

func (s *Server) MarkOrderAsExpired(c *gin.Context) {
	s.orderTransition(c, s.orderSvc.MarkAsExpired)
}

type orderTransitionFunc func(ctx context.Context, user *authdomain.User, id snowflake.ID) (*orderdomain.Order, error)

// orderTransition runs a body-less status change on the order in the path.
func (s *Server) orderTransition(c *gin.Context, transition orderTransitionFunc) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := transition(c.Request.Context(), currentUser(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}
