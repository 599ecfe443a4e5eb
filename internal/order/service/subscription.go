package service

import (
	"context"
	"strings"

	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	"github.com/smallbiznis/patronage/internal/apperror"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UpdateSubscription swaps the payment method and/or changes the amount of an
// active subscription. An amount change cancels the order and continues it as
// a new order on a new subscription.
func (s *Service) UpdateSubscription(ctx context.Context, user *authdomain.User, req orderdomain.UpdateSubscriptionRequest) (*orderdomain.Result, error) {
	if user == nil {
		return nil, apperror.Unauthorized("You need to be logged in to update a subscription")
	}
	if err := s.checkFeature(user); err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, req.ID, "Subscription not found")
	if err != nil {
		return nil, err
	}
	if order.SubscriptionID == nil {
		return nil, apperror.NotFound("Subscription not found")
	}
	ok, err := s.isAdmin(ctx, user, &order.FromCollectiveID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Unauthorized("You don't have permission to update this subscription")
	}
	sub, err := s.subscriptions.Get(ctx, s.db, *order.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive {
		return nil, apperror.Validation("Subscription must be active to be updated")
	}

	result := &orderdomain.Result{}
	if req.PaymentMethod != nil {
		// A refused card leaves the subscription on its current method.
		err := s.swapPaymentMethod(ctx, user, order, sub, req.PaymentMethod)
		if gwErr, ok := paymentdomain.AsGatewayError(err); ok {
			s.log.Info("payment method update declined",
				zap.String("order_id", order.ID.String()),
				zap.String("message", gwErr.Message),
			)
			result.PaymentFailure = paymentFailure(gwErr)
		} else if err != nil {
			return nil, err
		}
	}
	if req.Amount != nil {
		next, err := s.changeAmount(ctx, user, order, sub, *req.Amount)
		if err != nil {
			return nil, err
		}
		order = next
	}
	result.Order = order
	return result, nil
}

func (s *Service) swapPaymentMethod(
	ctx context.Context,
	user *authdomain.User,
	order *orderdomain.Order,
	sub *subscriptiondomain.Subscription,
	in *paymentmethoddomain.Input,
) error {
	var (
		method *paymentmethoddomain.PaymentMethod
		source *fundingSource
	)
	uuidValue := strings.TrimSpace(in.UUID)
	if len(uuidValue) == uuidLength {
		found, err := s.paymentMethods.FindByUUID(ctx, s.db, uuidValue)
		if err != nil {
			return err
		}
		if found == nil {
			return apperror.NotFound("Payment method not found with this uuid")
		}
		if err := s.authorizeMethod(ctx, user, found); err != nil {
			return err
		}
		method = found
	} else {
		if strings.TrimSpace(in.Token) == "" {
			return apperror.Validation("A payment method token is required")
		}
		// Methods backing a subscription always belong to the payer.
		input := *in
		input.Save = true
		created, err := s.createMethod(ctx, s.db, user, &input, order.Currency, order.FromCollectiveID)
		if err != nil {
			return err
		}
		method = created
		source = &fundingSource{method: created, fresh: true}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A past due subscription is retried right away with the new method.
		if sub.PastDue() {
			if err := s.subscriptions.RecordCharge(ctx, tx, sub, subscriptiondomain.ChargeStatusUpdated); err != nil {
				return err
			}
		}
		order.PaymentMethodID = &method.ID
		order.UpdatedAt = s.clock.Now().UTC()
		return s.repo.Update(ctx, tx, order)
	})
	if err != nil {
		s.discardFresh(ctx, source)
	}
	return err
}

func (s *Service) changeAmount(
	ctx context.Context,
	user *authdomain.User,
	order *orderdomain.Order,
	sub *subscriptiondomain.Subscription,
	amount int64,
) (*orderdomain.Order, error) {
	if amount == sub.Amount {
		return nil, apperror.Validation("Same amount")
	}
	if amount < 100 || amount%100 != 0 {
		return nil, apperror.Validation("Invalid amount")
	}

	now := s.clock.Now().UTC()
	next := *order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order.Status = orderdomain.StatusCancelled
		order.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, order); err != nil {
			return err
		}
		replacement, err := s.subscriptions.Supersede(ctx, tx, sub, amount)
		if err != nil {
			return err
		}

		next.ID = s.genID.Generate()
		next.TotalAmount = amount
		next.SubscriptionID = &replacement.ID
		next.Status = orderdomain.StatusActive
		next.Data = datatypes.JSONMap{}
		for k, v := range order.Data {
			next.Data[k] = v
		}
		delete(next.Data, orderdomain.DataError)
		next.CreatedAt = now
		next.UpdatedAt = now
		if err := s.repo.Insert(ctx, tx, &next); err != nil {
			return err
		}

		return s.activitySvc.Record(ctx, tx, activitydomain.Entry{
			Type:         activitydomain.TypeSubscriptionUpdated,
			CollectiveID: &next.CollectiveID,
			UserID:       userIDOf(user),
			Data: map[string]any{
				"previousOrderId":        order.ID.String(),
				"orderId":                next.ID.String(),
				"previousSubscriptionId": sub.ID.String(),
				"subscriptionId":         replacement.ID.String(),
				"previousAmount":         sub.Amount,
				"amount":                 amount,
				"currency":               next.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("subscription amount updated",
		zap.String("order_id", next.ID.String()),
		zap.String("previous_order_id", order.ID.String()),
		zap.Int64("amount", amount),
	)
	return s.reload(ctx, &next)
}
