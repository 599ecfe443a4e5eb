package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidInterval      = errors.New("invalid_interval")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}

// Manager owns subscription state changes. Every method writes through the
// given handle so callers can run it inside their transaction.
type Manager interface {
	// Create stores a new subscription, inactive unless active is set.
	Create(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	// Activate marks the subscription active and schedules its first renewal.
	Activate(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Deactivate(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	// RecordCharge applies a charge outcome: next dates, retry counter and,
	// on success, the charge number.
	RecordCharge(ctx context.Context, db *gorm.DB, subscription *Subscription, status ChargeStatus) error
	// Supersede deactivates subscription and creates its replacement with amount.
	Supersede(ctx context.Context, db *gorm.DB, subscription *Subscription, amount int64) (*Subscription, error)
}
