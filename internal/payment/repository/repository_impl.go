package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/patronage/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, order_id, transaction_id, processor, event_type, reference,
			amount, currency, payload, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.OrderID,
		event.TransactionID,
		event.Processor,
		event.EventType,
		event.Reference,
		event.Amount,
		event.Currency,
		event.Payload,
		event.OccurredAt,
	).Error
}

func (r *repo) ListEventsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.EventRecord, error) {
	var items []domain.EventRecord
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("occurred_at ASC, id ASC").
		Find(&items).Error
	return items, err
}
