// Package domain contains payment execution: processors that move money for
// orders and the records kept about each attempt.
package domain

import (
	"context"
	"errors"
	"fmt"

	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"gorm.io/gorm"
)

var (
	ErrProcessorNotFound    = errors.New("payment_processor_not_found")
	ErrMissingPaymentMethod = errors.New("missing_payment_method")
	ErrInvalidConfig        = errors.New("invalid_processor_config")
	ErrRefundUnsupported    = errors.New("refund_unsupported")
)

// GatewayError is a charge failure carrying detail from the payment gateway
// that a client can act upon, e.g. a card requiring authentication.
type GatewayError struct {
	Message  string         `json:"message"`
	Account  string         `json:"account,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

func (e *GatewayError) Error() string {
	if e.Account == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Account, e.Message)
}

// AsGatewayError extracts a GatewayError from err.
func AsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}

type ChargeRequest struct {
	Order       *orderdomain.Order
	Method      *paymentmethoddomain.PaymentMethod
	Amount      int64
	Currency    string
	Description string
}

// Charge is the outcome of a charge attempt. Settled is false when money will
// move out of band, e.g. a manual method not yet marked as paid.
type Charge struct {
	Settled      bool
	ProcessorFee int64
	Reference    string
	Raw          map[string]any
}

// SetupRequest prepares a new method before it is stored, e.g. turning a
// single use card token into a reusable gateway customer.
type SetupRequest struct {
	Method *paymentmethoddomain.PaymentMethod
	Email  string
}

type RefundRequest struct {
	Transaction *transactiondomain.Transaction
	Method      *paymentmethoddomain.PaymentMethod
}

type Refund struct {
	ProcessorFee int64
	Reference    string
}

//go:generate mockgen -source=processor.go -destination=mock/processor_mock.go -package=mock

// Processor moves money for one "service/type" payment method kind.
type Processor interface {
	Key() string
	// Setup may update req.Method in place. Methods with nothing to prepare
	// return nil.
	Setup(ctx context.Context, req SetupRequest) error
	Charge(ctx context.Context, db *gorm.DB, req ChargeRequest) (*Charge, error)
	Refund(ctx context.Context, db *gorm.DB, req RefundRequest) (*Refund, error)
}
