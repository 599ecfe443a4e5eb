package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventTypeChargeSucceeded = "charge_succeeded"
	EventTypeChargePending   = "charge_pending"
	EventTypeChargeFailed    = "charge_failed"
	EventTypeRefunded        = "refunded"
)

// EventRecord keeps what a processor answered for one attempt.
type EventRecord struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrderID       *snowflake.ID     `json:"order_id" gorm:"index"`
	TransactionID *snowflake.ID     `json:"transaction_id" gorm:"index"`
	Processor     string            `json:"processor" gorm:"type:text;not null"`
	EventType     string            `json:"event_type" gorm:"type:text;not null"`
	Reference     *string           `json:"reference"`
	Amount        int64             `json:"amount" gorm:"not null"`
	Currency      string            `json:"currency" gorm:"type:text;not null"`
	Payload       datatypes.JSONMap `json:"payload" gorm:"type:jsonb"`
	OccurredAt    time.Time         `json:"occurred_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_events" }

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) error
	ListEventsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]EventRecord, error)
}
