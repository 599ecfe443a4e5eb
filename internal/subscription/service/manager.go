package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/patronage/internal/clock"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

type Manager struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

func NewManager(p Params) subscriptiondomain.Manager {
	return &Manager{
		log:   p.Log.Named("subscription.manager"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (m *Manager) Create(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	switch sub.Interval {
	case subscriptiondomain.IntervalMonth, subscriptiondomain.IntervalYear:
	default:
		return subscriptiondomain.ErrInvalidInterval
	}

	now := m.clock.Now().UTC()
	if sub.ID == 0 {
		sub.ID = m.genID.Generate()
	}
	if sub.Quantity == 0 {
		sub.Quantity = 1
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	if sub.Data == nil {
		sub.Data = datatypes.JSONMap{}
	}
	return m.repo.Insert(ctx, db, sub)
}

func (m *Manager) Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	sub, err := m.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (m *Manager) Activate(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	now := m.clock.Now().UTC()
	dates := subscriptiondomain.NextChargeAndPeriodStartDates(subscriptiondomain.ChargeStatusNew, *sub, now)

	first := 1
	sub.IsActive = true
	sub.ActivatedAt = &now
	sub.DeactivatedAt = nil
	sub.NextChargeDate = &dates.NextChargeDate
	sub.NextPeriodStart = dates.NextPeriodStart
	sub.ChargeRetryCount = subscriptiondomain.ChargeRetryCount(subscriptiondomain.ChargeStatusNew, *sub)
	sub.ChargeNumber = &first
	sub.UpdatedAt = now

	if err := m.repo.Update(ctx, db, sub); err != nil {
		return err
	}
	m.log.Info("subscription activated",
		zap.String("subscription_id", sub.ID.String()),
		zap.Time("next_charge_date", dates.NextChargeDate),
	)
	return nil
}

func (m *Manager) Deactivate(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	now := m.clock.Now().UTC()
	sub.IsActive = false
	sub.DeactivatedAt = &now
	sub.UpdatedAt = now
	return m.repo.Update(ctx, db, sub)
}

func (m *Manager) RecordCharge(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription, status subscriptiondomain.ChargeStatus) error {
	now := m.clock.Now().UTC()
	dates := subscriptiondomain.NextChargeAndPeriodStartDates(status, *sub, now)

	sub.NextChargeDate = &dates.NextChargeDate
	if dates.NextPeriodStart != nil {
		sub.NextPeriodStart = dates.NextPeriodStart
	}
	sub.ChargeRetryCount = subscriptiondomain.ChargeRetryCount(status, *sub)
	if status == subscriptiondomain.ChargeStatusSuccess && sub.ChargeNumber != nil {
		next := *sub.ChargeNumber + 1
		sub.ChargeNumber = &next
	}
	sub.UpdatedAt = now

	return m.repo.Update(ctx, db, sub)
}

func (m *Manager) Supersede(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription, amount int64) (*subscriptiondomain.Subscription, error) {
	if err := m.Deactivate(ctx, db, sub); err != nil {
		return nil, err
	}

	now := m.clock.Now().UTC()
	replacement := &subscriptiondomain.Subscription{
		ID:               m.genID.Generate(),
		Amount:           amount,
		Interval:         sub.Interval,
		Currency:         sub.Currency,
		Quantity:         sub.Quantity,
		IsActive:         true,
		ActivatedAt:      &now,
		NextChargeDate:   copyTime(sub.NextChargeDate),
		NextPeriodStart:  copyTime(sub.NextPeriodStart),
		ChargeRetryCount: sub.ChargeRetryCount,
		ChargeNumber:     sub.ChargeNumber,
		Data:             copyData(sub.Data),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.repo.Insert(ctx, db, replacement); err != nil {
		return nil, err
	}
	m.log.Info("subscription superseded",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("replacement_id", replacement.ID.String()),
		zap.Int64("amount", amount),
	)
	return replacement, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyData(data datatypes.JSONMap) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range data {
		out[k] = v
	}
	return out
}
