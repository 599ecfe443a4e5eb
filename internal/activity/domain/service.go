// Package domain contains the activity feed: events that drive emails and history.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TypeTransactionCreated   = "collective.transaction.created"
	TypeSubscriptionCanceled = "subscription.canceled"
	TypeSubscriptionUpdated  = "subscription.updated"
	TypeTicketConfirmed      = "ticket.confirmed"
	TypeAddedFundToOrg       = "added.fund.to.org"
	TypeOrderRefunded        = "order.refunded"
)

type Activity struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Type         string            `gorm:"type:text;not null;index" json:"type"`
	CollectiveID *snowflake.ID     `gorm:"index" json:"collectiveId,omitempty"`
	UserID       *snowflake.ID     `json:"userId,omitempty"`
	Data         datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName sets the database table name.
func (Activity) TableName() string { return "activities" }

type Entry struct {
	Type         string
	CollectiveID *snowflake.ID
	UserID       *snowflake.ID
	Data         map[string]any
}

type Service interface {
	// Record writes an activity through tx, or the service handle when tx is nil.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	ListByCollective(ctx context.Context, collectiveID snowflake.ID, limit int) ([]*Activity, error)
}

var ErrInvalidType = errors.New("invalid_activity_type")
