// Package domain contains the recurring-billing record backing recurring orders.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// ChargeStatus is the outcome driving the next schedule of a subscription.
type ChargeStatus string

const (
	ChargeStatusNew     ChargeStatus = "new"
	ChargeStatusSuccess ChargeStatus = "success"
	ChargeStatusFailure ChargeStatus = "failure"
	ChargeStatusUpdated ChargeStatus = "updated"
)

// Subscription is created inactive for pledges and active once paid. An amount
// change supersedes it with a new record instead of mutating it.
type Subscription struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	Amount           int64             `gorm:"not null" json:"amount"`
	Interval         string            `gorm:"type:text;not null" json:"interval"`
	Currency         string            `gorm:"type:text;not null" json:"currency"`
	Quantity         int               `gorm:"not null;default:1" json:"quantity"`
	IsActive         bool              `gorm:"not null;default:false" json:"isActive"`
	ActivatedAt      *time.Time        `json:"activatedAt,omitempty"`
	DeactivatedAt    *time.Time        `json:"deactivatedAt,omitempty"`
	NextChargeDate   *time.Time        `gorm:"index" json:"nextChargeDate,omitempty"`
	NextPeriodStart  *time.Time        `json:"nextPeriodStart,omitempty"`
	ChargeRetryCount int               `gorm:"not null;default:0" json:"chargeRetryCount"`
	ChargeNumber     *int              `json:"chargeNumber,omitempty"`
	Data             datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// PastDue reports whether at least one charge attempt failed since the last success.
func (s Subscription) PastDue() bool { return s.ChargeRetryCount > 0 }
