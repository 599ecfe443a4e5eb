package domain

import (
	"context"

	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
)

type Service interface {
	// SetupMethod runs the processor setup of a method that is not stored
	// yet. Gateway refusals come back as *GatewayError.
	SetupMethod(ctx context.Context, user *authdomain.User, method *paymentmethoddomain.PaymentMethod) error
	// ExecuteOrder charges the order with method and settles it. A failure
	// carrying gateway detail is returned as *GatewayError.
	ExecuteOrder(ctx context.Context, user *authdomain.User, order *orderdomain.Order, method *paymentmethoddomain.PaymentMethod) error
	// ProcessOrder charges one more cycle of an already processed recurring order.
	ProcessOrder(ctx context.Context, order *orderdomain.Order) (*transactiondomain.Transaction, error)
	// RefundTransaction reverses a movement and returns the refund credit.
	RefundTransaction(ctx context.Context, transaction *transactiondomain.Transaction, user *authdomain.User) (*transactiondomain.Transaction, error)
}
