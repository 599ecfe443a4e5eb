package opencollective

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/patronage/internal/apperror"
	"github.com/smallbiznis/patronage/internal/clock"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"gorm.io/gorm"
)

// Prepaid spends a balance granted by a host, e.g. through AddFundsToOrg.
type Prepaid struct {
	clock        clock.Clock
	transactions transactiondomain.Repository
}

func NewPrepaid(c clock.Clock, transactions transactiondomain.Repository) *Prepaid {
	return &Prepaid{clock: c, transactions: transactions}
}

func (p *Prepaid) Key() string {
	return paymentmethoddomain.ServiceOpenCollective + "/" + paymentmethoddomain.TypePrepaid
}

// Setup is a no-op: prepaid methods are issued by hosts, never from a token.
func (p *Prepaid) Setup(ctx context.Context, req paymentdomain.SetupRequest) error {
	return nil
}

func (p *Prepaid) Charge(ctx context.Context, db *gorm.DB, req paymentdomain.ChargeRequest) (*paymentdomain.Charge, error) {
	method := req.Method
	if method == nil {
		return nil, paymentdomain.ErrMissingPaymentMethod
	}
	if !strings.EqualFold(method.Currency, req.Currency) {
		return nil, apperror.Validationf("Prepaid payment method can only be used in %s", method.Currency)
	}
	if method.ExpiryDate != nil && method.ExpiryDate.Before(p.clock.Now()) {
		return nil, apperror.Validation("Payment method has expired")
	}

	balance, err := p.Balance(ctx, db, method)
	if err != nil {
		return nil, err
	}
	if balance < req.Amount {
		return nil, apperror.Validation(fmt.Sprintf(
			"You don't have enough funds available (%d %s left)", balance, method.Currency,
		))
	}
	return &paymentdomain.Charge{Settled: true}, nil
}

// Balance is the initial balance minus what was already spent.
func (p *Prepaid) Balance(ctx context.Context, db *gorm.DB, method *paymentmethoddomain.PaymentMethod) (int64, error) {
	if method.InitialBalance == nil {
		return 0, nil
	}
	spent, err := p.transactions.SumPrepaidSpent(ctx, db, method.ID)
	if err != nil {
		return 0, err
	}
	return *method.InitialBalance - spent, nil
}

// Refund restores the balance by linking the refund pair; no external call.
func (p *Prepaid) Refund(ctx context.Context, db *gorm.DB, req paymentdomain.RefundRequest) (*paymentdomain.Refund, error) {
	return &paymentdomain.Refund{}, nil
}
