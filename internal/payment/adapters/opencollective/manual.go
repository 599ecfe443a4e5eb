// Package opencollective holds the processors that move money inside the
// platform without an external gateway.
package opencollective

import (
	"context"

	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	"gorm.io/gorm"
)

// Manual settles bank transfers and other out of band payments. An order
// stays pending until a host admin marks it as paid.
type Manual struct{}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Key() string {
	return paymentmethoddomain.ServiceOpenCollective + "/" + paymentmethoddomain.TypeManual
}

func (m *Manual) Setup(ctx context.Context, req paymentdomain.SetupRequest) error {
	return nil
}

func (m *Manual) Charge(ctx context.Context, db *gorm.DB, req paymentdomain.ChargeRequest) (*paymentdomain.Charge, error) {
	if req.Method == nil {
		return nil, paymentdomain.ErrMissingPaymentMethod
	}
	paid, _ := req.Method.Data["paid"].(bool)
	return &paymentdomain.Charge{Settled: paid}, nil
}

// Refund has nothing to call: the host returns the money itself.
func (m *Manual) Refund(ctx context.Context, db *gorm.DB, req paymentdomain.RefundRequest) (*paymentdomain.Refund, error) {
	return &paymentdomain.Refund{}, nil
}
