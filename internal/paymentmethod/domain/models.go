// Package domain contains stored payment methods.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ServiceOpenCollective = "opencollective"
	ServiceStripe         = "stripe"

	TypeManual     = "manual"
	TypePrepaid    = "prepaid"
	TypeCreditCard = "creditcard"
)

// PaymentMethod is a card, prepaid balance or manual method that can fund orders.
type PaymentMethod struct {
	ID                    snowflake.ID      `gorm:"primaryKey" json:"id"`
	UUID                  string            `gorm:"type:text;not null;uniqueIndex" json:"uuid"`
	Name                  *string           `gorm:"type:text" json:"name,omitempty"`
	Service               string            `gorm:"type:text;not null" json:"service"`
	Type                  string            `gorm:"type:text;not null" json:"type"`
	Token                 *string           `gorm:"type:text" json:"-"`
	CustomerID            *string           `gorm:"type:text" json:"customerId,omitempty"`
	CollectiveID          *snowflake.ID     `gorm:"index" json:"collectiveId,omitempty"`
	CreatedByUserID       *snowflake.ID     `json:"createdByUserId,omitempty"`
	Currency              string            `gorm:"type:text;not null" json:"currency"`
	InitialBalance        *int64            `json:"initialBalance,omitempty"`
	MonthlyLimitPerMember *int64            `json:"monthlyLimitPerMember,omitempty"`
	ExpiryDate            *time.Time        `json:"expiryDate,omitempty"`
	Saved                 bool              `gorm:"not null;default:false" json:"saved"`
	ArchivedAt            *time.Time        `json:"archivedAt,omitempty"`
	Data                  datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
	DeletedAt             gorm.DeletedAt    `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (PaymentMethod) TableName() string { return "payment_methods" }

// Key identifies the processor handling the method, e.g. "stripe/creditcard".
func (p PaymentMethod) Key() string { return p.Service + "/" + p.Type }

// Input references an existing method by uuid or describes a new one.
type Input struct {
	UUID    string         `json:"uuid"`
	Token   string         `json:"token"`
	Service string         `json:"service"`
	Type    string         `json:"type"`
	Name    string         `json:"name"`
	Save    bool           `json:"save"`
	Data    map[string]any `json:"data"`
}

// Usable reports whether the input can fund an order.
func (in *Input) Usable() bool {
	return in != nil && (in.UUID != "" || in.Token != "" || in.Type == TypeManual)
}

// IsManual reports a manual (out of band) method.
func (in *Input) IsManual() bool {
	return in != nil && in.Type == TypeManual
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pm *PaymentMethod) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentMethod, error)
	FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*PaymentMethod, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// ListExpiringCreditCards returns credit cards whose data carries the
	// given expiry month (1-12) and year.
	ListExpiringCreditCards(ctx context.Context, db *gorm.DB, month, year int) ([]PaymentMethod, error)
}
