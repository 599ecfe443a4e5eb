// Package domain contains orders: one-time or recurring contributions from a
// payer collective to a recipient collective.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusActive    Status = "ACTIVE"
	StatusError     Status = "ERROR"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Keys of the order data bag.
const (
	DataReqIP              = "reqIp"
	DataRecaptchaResponse  = "recaptchaResponse"
	DataTax                = "tax"
	DataCustomData         = "customData"
	DataSavePaymentMethod  = "savePaymentMethod"
	DataHostFeePercent     = "hostFeePercent"
	DataPlatformFeePercent = "platformFeePercent"
	DataError              = "error"
)

type Order struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	CreatedByUserID  *snowflake.ID     `json:"createdByUserId,omitempty"`
	FromCollectiveID snowflake.ID      `gorm:"not null;index" json:"fromCollectiveId"`
	CollectiveID     snowflake.ID      `gorm:"not null;index" json:"collectiveId"`
	TierID           *snowflake.ID     `gorm:"index" json:"tierId,omitempty"`
	Quantity         int64             `gorm:"not null;default:1" json:"quantity"`
	TotalAmount      int64             `gorm:"not null" json:"totalAmount"`
	Currency         string            `gorm:"type:text;not null" json:"currency"`
	TaxAmount        *int64            `json:"taxAmount,omitempty"`
	Interval         *string           `gorm:"type:text" json:"interval,omitempty"`
	Description      string            `gorm:"type:text" json:"description"`
	PublicMessage    *string           `gorm:"type:text" json:"publicMessage,omitempty"`
	PrivateMessage   *string           `gorm:"type:text" json:"privateMessage,omitempty"`
	Status           Status            `gorm:"type:text;not null;index" json:"status"`
	ProcessedAt      *time.Time        `json:"processedAt,omitempty"`
	SubscriptionID   *snowflake.ID     `gorm:"index" json:"subscriptionId,omitempty"`
	PaymentMethodID  *snowflake.ID     `json:"paymentMethodId,omitempty"`
	Data             datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// IsRecurring reports whether the order renews on an interval.
func (o *Order) IsRecurring() bool {
	return o.Interval != nil && *o.Interval != ""
}

// NetAmount is the total without tax.
func (o *Order) NetAmount() int64 {
	if o.TaxAmount == nil {
		return o.TotalAmount
	}
	return o.TotalAmount - *o.TaxAmount
}

// SetData writes one key of the data bag.
func (o *Order) SetData(key string, value any) {
	if o.Data == nil {
		o.Data = datatypes.JSONMap{}
	}
	o.Data[key] = value
}

// FeePercent reads a fee override from the data bag.
func (o *Order) FeePercent(key string) (float64, bool) {
	if o.Data == nil {
		return 0, false
	}
	switch v := o.Data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
