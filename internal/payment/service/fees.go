package service

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type feeDefaults struct {
	hostFeePercent     float64
	platformFeePercent float64
}

// percentOf returns round(amount × percent / 100).
func percentOf(amount int64, percent float64) int64 {
	if percent == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(percent)).Div(hundred).Round(0).IntPart()
}

// hostFeePercent prefers the order override, then the collective setting,
// then the platform default.
func (s *Service) hostFeePercent(order *orderdomain.Order, p *parties) float64 {
	if pct, ok := order.FeePercent(orderdomain.DataHostFeePercent); ok {
		return pct
	}
	if p.recipient.HostFeePercent != nil {
		return *p.recipient.HostFeePercent
	}
	if p.host == nil {
		return 0
	}
	return s.fees.hostFeePercent
}

func (s *Service) platformFeePercent(order *orderdomain.Order) float64 {
	if pct, ok := order.FeePercent(orderdomain.DataPlatformFeePercent); ok {
		return pct
	}
	return s.fees.platformFeePercent
}

// recordTransactions writes the CREDIT on the recipient and its DEBIT twin on
// the payer, and returns the credit.
func (s *Service) recordTransactions(
	ctx context.Context,
	tx *gorm.DB,
	user *authdomain.User,
	order *orderdomain.Order,
	method *paymentmethoddomain.PaymentMethod,
	p *parties,
	charge *paymentdomain.Charge,
) (*transactiondomain.Transaction, error) {
	amount := order.TotalAmount
	var taxAmount int64
	if order.TaxAmount != nil {
		taxAmount = *order.TaxAmount
	}

	hostFee := percentOf(amount-taxAmount, s.hostFeePercent(order, p))
	platformFee := percentOf(amount-taxAmount, s.platformFeePercent(order))
	net := amount - taxAmount - hostFee - platformFee - charge.ProcessorFee

	hostCurrency := order.Currency
	hostID := p.recipient.HostCollectiveID
	if p.host != nil {
		hostID = &p.host.ID
		if c := strings.TrimSpace(p.host.Currency); c != "" {
			hostCurrency = c
		}
	}

	now := s.clock.Now().UTC()
	group := ulid.Make().String()
	data := datatypes.JSONMap{}
	if charge.Reference != "" {
		data["chargeId"] = charge.Reference
	}

	credit := &transactiondomain.Transaction{
		ID:                                s.genID.Generate(),
		Type:                              transactiondomain.TypeCredit,
		TransactionGroup:                  group,
		Description:                       order.Description,
		Amount:                            amount,
		Currency:                          order.Currency,
		AmountInHostCurrency:              amount,
		HostCurrency:                      hostCurrency,
		HostFeeInHostCurrency:             hostFee,
		PlatformFeeInHostCurrency:         platformFee,
		PaymentProcessorFeeInHostCurrency: charge.ProcessorFee,
		NetAmountInCollectiveCurrency:     net,
		TaxAmount:                         order.TaxAmount,
		CollectiveID:                      order.CollectiveID,
		FromCollectiveID:                  order.FromCollectiveID,
		HostCollectiveID:                  hostID,
		OrderID:                           &order.ID,
		PaymentMethodID:                   storedID(method),
		CreatedByUserID:                   userID(user),
		Data:                              data,
		CreatedAt:                         now,
		UpdatedAt:                         now,
	}
	debit := &transactiondomain.Transaction{
		ID:                                s.genID.Generate(),
		Type:                              transactiondomain.TypeDebit,
		TransactionGroup:                  group,
		Description:                       order.Description,
		Amount:                            -net,
		Currency:                          order.Currency,
		AmountInHostCurrency:              -net,
		HostCurrency:                      hostCurrency,
		HostFeeInHostCurrency:             hostFee,
		PlatformFeeInHostCurrency:         platformFee,
		PaymentProcessorFeeInHostCurrency: charge.ProcessorFee,
		NetAmountInCollectiveCurrency:     -amount,
		TaxAmount:                         order.TaxAmount,
		CollectiveID:                      order.FromCollectiveID,
		FromCollectiveID:                  order.CollectiveID,
		HostCollectiveID:                  hostID,
		OrderID:                           &order.ID,
		PaymentMethodID:                   storedID(method),
		CreatedByUserID:                   userID(user),
		Data:                              datatypes.JSONMap{},
		CreatedAt:                         now,
		UpdatedAt:                         now,
	}
	if err := s.transactions.InsertPair(ctx, tx, credit, debit); err != nil {
		return nil, err
	}
	return credit, nil
}
