package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, amount, "interval", currency, quantity, is_active, activated_at, deactivated_at,
			next_charge_date, next_period_start, charge_retry_count, charge_number, data,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.Amount,
		subscription.Interval,
		subscription.Currency,
		subscription.Quantity,
		subscription.IsActive,
		subscription.ActivatedAt,
		subscription.DeactivatedAt,
		subscription.NextChargeDate,
		subscription.NextPeriodStart,
		subscription.ChargeRetryCount,
		subscription.ChargeNumber,
		subscription.Data,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).Take(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			amount = ?, is_active = ?, activated_at = ?, deactivated_at = ?,
			next_charge_date = ?, next_period_start = ?, charge_retry_count = ?,
			charge_number = ?, data = ?, updated_at = ?
		WHERE id = ?`,
		subscription.Amount,
		subscription.IsActive,
		subscription.ActivatedAt,
		subscription.DeactivatedAt,
		subscription.NextChargeDate,
		subscription.NextPeriodStart,
		subscription.ChargeRetryCount,
		subscription.ChargeNumber,
		subscription.Data,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}
