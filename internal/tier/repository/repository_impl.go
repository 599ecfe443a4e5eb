package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	tierdomain "github.com/smallbiznis/patronage/internal/tier/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tierdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tierdomain.Tier, error) {
	var tier tierdomain.Tier
	err := db.WithContext(ctx).Where("id = ?", id).Take(&tier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repo) SoldQuantity(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var row struct {
		Sold int64 `gorm:"column:sold"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(quantity), 0) AS sold
		FROM orders
		WHERE tier_id = ? AND processed_at IS NOT NULL`,
		id,
	).Scan(&row).Error
	return row.Sold, err
}
