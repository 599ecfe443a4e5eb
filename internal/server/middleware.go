package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	obscontext "github.com/smallbiznis/patronage/internal/observability/context"
	"go.uber.org/zap"
)

const contextUserKey = "user"

// BearerAuth resolves the user behind an "Authorization: Bearer" header.
// Requests without the header continue anonymously; operations decide
// whether they need a user.
func (s *Server) BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Next()
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.authsvc.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			s.log.Debug("bearer token rejected", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserKey, user)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "user", user.ID.String()))
		c.Next()
	}
}

// tagResource records the :id path value under key for request logs and spans.
func tagResource(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Param("id"))
		if id != "" {
			c.Set(key, id)
			if key == obscontext.ResourceCollective {
				c.Request = c.Request.WithContext(obscontext.WithCollectiveID(c.Request.Context(), id))
			}
		}
		c.Next()
	}
}

// currentUser returns the authenticated user, or nil for anonymous requests.
func currentUser(c *gin.Context) *authdomain.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*authdomain.User)
	return user
}
