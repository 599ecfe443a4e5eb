// Package domain contains the tier model: a contribution level offered by a collective.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tier is a purchasable contribution level. A nil Amount means the contributor
// picks the amount.
type Tier struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	CollectiveID       snowflake.ID      `gorm:"not null;index" json:"collectiveId"`
	Slug               string            `gorm:"type:text;not null" json:"slug"`
	Name               string            `gorm:"type:text;not null" json:"name"`
	Type               string            `gorm:"type:text;not null" json:"type"`
	Amount             *int64            `json:"amount,omitempty"`
	Presets            datatypes.JSON    `gorm:"type:jsonb" json:"presets,omitempty"`
	MinimumAmount      *int64            `json:"minimumAmount,omitempty"`
	MaxQuantity        *int64            `json:"maxQuantity,omitempty"`
	MaxQuantityPerUser *int64            `json:"maxQuantityPerUser,omitempty"`
	Currency           *string           `gorm:"type:text" json:"currency,omitempty"`
	Interval           *string           `gorm:"type:text" json:"interval,omitempty"`
	Data               datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName sets the database table name.
func (Tier) TableName() string { return "tiers" }

// HasPresets reports whether the tier proposes preset amounts.
func (t Tier) HasPresets() bool {
	raw := strings.TrimSpace(string(t.Presets))
	return raw != "" && raw != "null"
}

// FixedAmount returns the tier amount when contributors cannot choose it.
func (t Tier) FixedAmount() (int64, bool) {
	if t.Amount == nil || *t.Amount == 0 || t.HasPresets() {
		return 0, false
	}
	return *t.Amount, true
}

// FeeOverride reads hostFeePercent or platformFeePercent from the tier data.
func (t Tier) FeeOverride(key string) (float64, bool) {
	if t.Data == nil {
		return 0, false
	}
	switch v := t.Data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tier, error)
	// SoldQuantity sums the quantity of processed orders placed on the tier.
	SoldQuantity(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
}
