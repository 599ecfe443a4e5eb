package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	"github.com/smallbiznis/patronage/internal/apperror"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConfirmOrder retries the payment of an ERROR or PENDING order. A first
// payment goes through ExecuteOrder; a renewal charges the subscription and
// moves its schedule forward.
func (s *Service) ConfirmOrder(ctx context.Context, user *authdomain.User, id snowflake.ID) (*orderdomain.Result, error) {
	if user == nil {
		return nil, apperror.Unauthorized("You need to be logged in to confirm an order")
	}
	if err := s.checkFeature(user); err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, id, "Order not found")
	if err != nil {
		return nil, err
	}
	ok, err := s.isAdmin(ctx, user, &order.FromCollectiveID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Unauthorized("You don't have permission to confirm this order")
	}
	if order.Status != orderdomain.StatusError && order.Status != orderdomain.StatusPending {
		return nil, apperror.Validation("Order can only be confirmed if its status is ERROR or PENDING.")
	}

	if order.ProcessedAt == nil {
		return s.executeResult(ctx, order, func() error {
			if err := s.payments.ExecuteOrder(ctx, user, order, nil); err != nil {
				return err
			}
			fresh, err := s.reload(ctx, order)
			if err != nil {
				return err
			}
			*order = *fresh
			return nil
		})
	}

	return s.executeResult(ctx, order, func() error {
		if _, err := s.payments.ProcessOrder(ctx, order); err != nil {
			return err
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			order.Status = orderdomain.StatusActive
			order.UpdatedAt = s.clock.Now().UTC()
			if order.SubscriptionID != nil {
				sub, err := s.subscriptions.Get(ctx, tx, *order.SubscriptionID)
				if err != nil {
					return err
				}
				if err := s.subscriptions.RecordCharge(ctx, tx, sub, subscriptiondomain.ChargeStatusSuccess); err != nil {
					return err
				}
			}
			return s.repo.Update(ctx, tx, order)
		})
	})
}

func (s *Service) CompletePledge(ctx context.Context, user *authdomain.User, req orderdomain.CompletePledgeRequest) (*orderdomain.Result, error) {
	order, err := s.loadOrder(ctx, req.ID, "This order doesn't exist")
	if err != nil {
		return nil, err
	}
	ok, err := s.isAdmin(ctx, user, &order.FromCollectiveID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Unauthorized("You don't have the permissions to edit this order")
	}
	if order.Status != orderdomain.StatusPending {
		return nil, apperror.NotFound("This pledge has already been completed")
	}
	if err := s.checkFeature(user); err != nil {
		return nil, err
	}

	collective, err := s.collectives.GetByID(ctx, order.CollectiveID)
	if err != nil {
		return nil, err
	}
	paymentRequired := req.TotalAmount > 0 && collective.IsActive
	if paymentRequired && !req.PaymentMethod.Usable() {
		return nil, apperror.Validation("This order requires a payment method")
	}
	if !paymentRequired {
		return &orderdomain.Result{Order: order}, nil
	}

	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval != "" && interval != subscriptiondomain.IntervalMonth && interval != subscriptiondomain.IntervalYear {
		return nil, apperror.Validationf("Invalid interval: %s", req.Interval)
	}
	order.TotalAmount = req.TotalAmount
	order.Interval = optionalString(interval)
	if currency := strings.ToUpper(strings.TrimSpace(req.Currency)); currency != "" {
		order.Currency = currency
	}

	result, err := s.executeResult(ctx, order, func() error {
		source, err := s.resolveFunding(ctx, s.db, user, req.PaymentMethod, order.Currency, order.FromCollectiveID)
		if err != nil {
			return err
		}
		if source.method.ID != 0 {
			order.PaymentMethodID = &source.method.ID
		}
		order.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, s.db, order); err != nil {
			s.discardFresh(ctx, source)
			return err
		}
		return s.payments.ExecuteOrder(ctx, user, order, source.method)
	})
	if err != nil {
		return nil, err
	}
	fresh, err := s.reload(ctx, order)
	if err != nil {
		return nil, err
	}
	result.Order = fresh
	return result, nil
}

// CancelSubscription stops a recurring order. Limited users may still cancel.
func (s *Service) CancelSubscription(ctx context.Context, user *authdomain.User, id snowflake.ID) (*orderdomain.Order, error) {
	if user == nil {
		return nil, apperror.Unauthorized("You need to be logged in to cancel a subscription")
	}
	order, err := s.loadOrder(ctx, id, "Subscription not found")
	if err != nil {
		return nil, err
	}
	ok, err := s.isAdmin(ctx, user, &order.FromCollectiveID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Unauthorized("You don't have permission to cancel this subscription")
	}
	if order.SubscriptionID == nil {
		return nil, apperror.NotFound("Subscription not found")
	}
	sub, err := s.subscriptions.Get(ctx, s.db, *order.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive && order.Status == orderdomain.StatusCancelled {
		return nil, apperror.Validation("Subscription already canceled")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order.Status = orderdomain.StatusCancelled
		order.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, tx, order); err != nil {
			return err
		}
		if err := s.subscriptions.Deactivate(ctx, tx, sub); err != nil {
			return err
		}
		return s.activitySvc.Record(ctx, tx, activitydomain.Entry{
			Type:         activitydomain.TypeSubscriptionCanceled,
			CollectiveID: &order.CollectiveID,
			UserID:       order.CreatedByUserID,
			Data: map[string]any{
				"subscriptionId":   sub.ID.String(),
				"orderId":          order.ID.String(),
				"fromCollectiveId": order.FromCollectiveID.String(),
				"canceledBy":       user.ID.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("subscription canceled",
		zap.String("order_id", order.ID.String()),
		zap.String("subscription_id", sub.ID.String()),
	)
	return s.reload(ctx, order)
}

// MarkAsPaid lets a host admin settle a pending order received out of band.
func (s *Service) MarkAsPaid(ctx context.Context, user *authdomain.User, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.pendingOrderForHost(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := s.payments.ExecuteOrder(ctx, user, order, manualMethod(order.Currency, true)); err != nil {
		return nil, err
	}
	return s.reload(ctx, order)
}

func (s *Service) MarkAsExpired(ctx context.Context, user *authdomain.User, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.pendingOrderForHost(ctx, user, id)
	if err != nil {
		return nil, err
	}
	order.Status = orderdomain.StatusExpired
	order.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, s.db, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) pendingOrderForHost(ctx context.Context, user *authdomain.User, id snowflake.ID) (*orderdomain.Order, error) {
	if user == nil {
		return nil, apperror.Unauthorized("You need to be logged in")
	}
	order, err := s.loadOrder(ctx, id, "Order not found")
	if err != nil {
		return nil, err
	}
	if order.Status != orderdomain.StatusPending {
		return nil, apperror.Validation("The order's status must be PENDING")
	}
	ok, err := s.isHostAdmin(ctx, user, order.CollectiveID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.Unauthorized("You must be logged in as an admin of the host of the collective")
	}
	return order, nil
}
