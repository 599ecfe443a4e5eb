package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(c.Param(name))
	if trimmed == "" {
		return 0, newValidationError(name, "required", name+" is required")
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed <= 0 {
		return 0, newValidationError(name, "invalid_id", "invalid "+name)
	}
	return parsed, nil
}

// bindOptionalJSON decodes the body when one is sent. Empty bodies leave
// dst untouched.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		return invalidRequestError()
	}
	return nil
}
