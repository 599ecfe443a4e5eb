package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentmethoddomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pm *paymentmethoddomain.PaymentMethod) error {
	return db.WithContext(ctx).Create(pm).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentmethoddomain.PaymentMethod, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*paymentmethoddomain.PaymentMethod, error) {
	return r.findOne(ctx, db, "uuid = ?", uuid)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*paymentmethoddomain.PaymentMethod, error) {
	var pm paymentmethoddomain.PaymentMethod
	err := db.WithContext(ctx).Where(query, args...).Take(&pm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Delete(&paymentmethoddomain.PaymentMethod{}, "id = ?", id).Error
}

func (r *repo) ListExpiringCreditCards(ctx context.Context, db *gorm.DB, month, year int) ([]paymentmethoddomain.PaymentMethod, error) {
	var cards []paymentmethoddomain.PaymentMethod
	err := db.WithContext(ctx).
		Where("type = ?", paymentmethoddomain.TypeCreditCard).
		Where(datatypes.JSONQuery("data").Equals(month, "expMonth")).
		Where(datatypes.JSONQuery("data").Equals(year, "expYear")).
		Order("id ASC").
		Find(&cards).Error
	return cards, err
}
