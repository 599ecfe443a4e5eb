package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() transactiondomain.Repository {
	return &repo{}
}

func (r *repo) InsertPair(ctx context.Context, db *gorm.DB, credit, debit *transactiondomain.Transaction) error {
	return db.WithContext(ctx).Create([]*transactiondomain.Transaction{credit, debit}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*transactiondomain.Transaction, error) {
	var tx transactiondomain.Transaction
	err := db.WithContext(ctx).Where("id = ?", id).Take(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *repo) FindCounterpart(ctx context.Context, db *gorm.DB, tx *transactiondomain.Transaction) (*transactiondomain.Transaction, error) {
	var other transactiondomain.Transaction
	err := db.WithContext(ctx).
		Where("transaction_group = ? AND id <> ?", tx.TransactionGroup, tx.ID).
		Take(&other).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &other, nil
}

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]transactiondomain.Transaction, error) {
	var items []transactiondomain.Transaction
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) SetRefund(ctx context.Context, db *gorm.DB, id, refundID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transactions SET refund_transaction_id = ? WHERE id = ?`,
		refundID,
		id,
	).Error
}

func (r *repo) SumPrepaidSpent(ctx context.Context, db *gorm.DB, paymentMethodID snowflake.ID) (int64, error) {
	var row struct {
		Spent int64 `gorm:"column:spent"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(-net_amount_in_collective_currency), 0) AS spent
		FROM transactions
		WHERE payment_method_id = ? AND type = ? AND is_refund = ? AND refund_transaction_id IS NULL`,
		paymentMethodID,
		transactiondomain.TypeDebit,
		false,
	).Scan(&row).Error
	return row.Spent, err
}
