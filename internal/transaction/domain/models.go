// Package domain contains the double-entry ledger rows written when money moves.
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
	TypeCredit = "CREDIT"
	TypeDebit  = "DEBIT"
)

var ErrTransactionNotFound = errors.New("transaction_not_found")

// Transaction is one side of a movement. A CREDIT on the recipient always has
// a DEBIT twin on the payer sharing TransactionGroup.
type Transaction struct {
	ID                                snowflake.ID      `gorm:"primaryKey" json:"id"`
	Type                              string            `gorm:"type:text;not null" json:"type"`
	TransactionGroup                  string            `gorm:"type:text;not null;index" json:"transactionGroup"`
	Description                       string            `gorm:"type:text" json:"description"`
	Amount                            int64             `gorm:"not null" json:"amount"`
	Currency                          string            `gorm:"type:text;not null" json:"currency"`
	AmountInHostCurrency              int64             `gorm:"not null" json:"amountInHostCurrency"`
	HostCurrency                      string            `gorm:"type:text" json:"hostCurrency"`
	HostFeeInHostCurrency             int64             `gorm:"not null;default:0" json:"hostFeeInHostCurrency"`
	PlatformFeeInHostCurrency         int64             `gorm:"not null;default:0" json:"platformFeeInHostCurrency"`
	PaymentProcessorFeeInHostCurrency int64             `gorm:"not null;default:0" json:"paymentProcessorFeeInHostCurrency"`
	NetAmountInCollectiveCurrency     int64             `gorm:"not null" json:"netAmountInCollectiveCurrency"`
	TaxAmount                         *int64            `json:"taxAmount,omitempty"`
	CollectiveID                      snowflake.ID      `gorm:"not null;index" json:"collectiveId"`
	FromCollectiveID                  snowflake.ID      `gorm:"not null;index" json:"fromCollectiveId"`
	HostCollectiveID                  *snowflake.ID     `gorm:"index" json:"hostCollectiveId,omitempty"`
	OrderID                           *snowflake.ID     `gorm:"index" json:"orderId,omitempty"`
	PaymentMethodID                   *snowflake.ID     `json:"paymentMethodId,omitempty"`
	CreatedByUserID                   *snowflake.ID     `json:"createdByUserId,omitempty"`
	RefundTransactionID               *snowflake.ID     `json:"refundTransactionId,omitempty"`
	IsRefund                          bool              `gorm:"not null;default:false" json:"isRefund"`
	Data                              datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt                         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"createdAt"`
	UpdatedAt                         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

type Repository interface {
	InsertPair(ctx context.Context, db *gorm.DB, credit, debit *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	// FindCounterpart returns the other side of the transaction's group.
	FindCounterpart(ctx context.Context, db *gorm.DB, tx *Transaction) (*Transaction, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Transaction, error)
	SetRefund(ctx context.Context, db *gorm.DB, id, refundID snowflake.ID) error
	// SumPrepaidSpent returns the gross amount debited from a prepaid method,
	// ignoring refunded movements.
	SumPrepaidSpent(ctx context.Context, db *gorm.DB, paymentMethodID snowflake.ID) (int64, error)
}
