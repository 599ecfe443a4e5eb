package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/patronage/internal/apperror"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/authorization"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/patronage/internal/tax/domain"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not_found")
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError turns service errors into a status and a body. Messages of
// apperror values are meant for end users and are passed through.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if gwErr, ok := paymentdomain.AsGatewayError(err); ok {
		return http.StatusBadGateway, errorPayload{
			Type:    "payment_error",
			Message: gwErr.Message,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apperror.ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: messageOr(err, "unauthorized"),
		}
	case errors.Is(err, apperror.ErrValidation),
		errors.Is(err, taxdomain.ErrMissingCountry),
		errors.Is(err, taxdomain.ErrInvalidVATNumber):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: apperror.MessageOf(err),
		}
	case errors.Is(err, apperror.ErrFeatureNotAllowed),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: messageOr(err, "forbidden"),
		}
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: apperror.MessageOf(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: messageOr(err, "not found"),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog mirrors mapError without exposing messages.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	return payload.Type, http.StatusText(status)
}

func messageOr(err error, fallback string) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return fallback
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, apperror.ErrNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, collectivedomain.ErrCollectiveNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, transactiondomain.ErrTransactionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
