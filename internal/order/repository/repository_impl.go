package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, created_by_user_id, from_collective_id, collective_id, tier_id,
			quantity, total_amount, currency, tax_amount, "interval", description,
			public_message, private_message, status, processed_at, subscription_id,
			payment_method_id, data, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.CreatedByUserID,
		order.FromCollectiveID,
		order.CollectiveID,
		order.TierID,
		order.Quantity,
		order.TotalAmount,
		order.Currency,
		order.TaxAmount,
		order.Interval,
		order.Description,
		order.PublicMessage,
		order.PrivateMessage,
		order.Status,
		order.ProcessedAt,
		order.SubscriptionID,
		order.PaymentMethodID,
		order.Data,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*orderdomain.Order, error) {
	return r.findOne(ctx, db, "subscription_id = ?", subscriptionID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Where(query, args...).Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET total_amount = ?, currency = ?, tax_amount = ?, "interval" = ?,
			description = ?, status = ?, processed_at = ?, subscription_id = ?,
			payment_method_id = ?, data = ?, updated_at = ?
		 WHERE id = ?`,
		order.TotalAmount,
		order.Currency,
		order.TaxAmount,
		order.Interval,
		order.Description,
		order.Status,
		order.ProcessedAt,
		order.SubscriptionID,
		order.PaymentMethodID,
		order.Data,
		order.UpdatedAt,
		order.ID,
	).Error
}
