package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/patronage/internal/clock"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	"github.com/smallbiznis/patronage/internal/subscription/repository"
	"github.com/smallbiznis/patronage/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (subscriptiondomain.Manager, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := testutil.OpenDB(t, &subscriptiondomain.Subscription{})
	fake := clock.NewFakeClock(time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC))
	return NewManager(Params{
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: fake,
		Repo:  repository.Provide(),
	}), db, fake
}

func TestManagerLifecycle(t *testing.T) {
	m, db, fake := setup(t)
	ctx := context.Background()

	sub := &subscriptiondomain.Subscription{Amount: 1000, Interval: subscriptiondomain.IntervalMonth, Currency: "USD"}
	require.NoError(t, m.Create(ctx, db, sub))
	assert.False(t, sub.IsActive)

	require.NoError(t, m.Activate(ctx, db, sub))
	stored, err := m.Get(ctx, db, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	require.NotNil(t, stored.NextChargeDate)
	assert.True(t, stored.NextChargeDate.Equal(time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)))
	require.NotNil(t, stored.ChargeNumber)
	assert.Equal(t, 1, *stored.ChargeNumber)

	fake.Advance(31 * 24 * time.Hour)
	require.NoError(t, m.RecordCharge(ctx, db, stored, subscriptiondomain.ChargeStatusFailure))
	assert.Equal(t, 1, stored.ChargeRetryCount)
	assert.True(t, stored.NextChargeDate.Equal(fake.Now().Add(48*time.Hour)))

	require.NoError(t, m.RecordCharge(ctx, db, stored, subscriptiondomain.ChargeStatusSuccess))
	assert.Equal(t, 0, stored.ChargeRetryCount)
	assert.Equal(t, 2, *stored.ChargeNumber)
	assert.True(t, stored.NextPeriodStart.Equal(time.Date(2026, 7, 10, 9, 0, 0, 0, time.UTC)))

	require.NoError(t, m.Deactivate(ctx, db, stored))
	reloaded, err := m.Get(ctx, db, sub.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)
	assert.NotNil(t, reloaded.DeactivatedAt)
}

func TestManagerSupersede(t *testing.T) {
	m, db, _ := setup(t)
	ctx := context.Background()

	sub := &subscriptiondomain.Subscription{Amount: 1000, Interval: subscriptiondomain.IntervalYear, Currency: "EUR", IsActive: true}
	require.NoError(t, m.Create(ctx, db, sub))

	replacement, err := m.Supersede(ctx, db, sub, 2500)
	require.NoError(t, err)
	assert.NotEqual(t, sub.ID, replacement.ID)
	assert.Equal(t, int64(2500), replacement.Amount)
	assert.True(t, replacement.IsActive)
	assert.Equal(t, "EUR", replacement.Currency)

	old, err := m.Get(ctx, db, sub.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
}

func TestManagerRejectsUnknownInterval(t *testing.T) {
	m, db, _ := setup(t)
	err := m.Create(context.Background(), db, &subscriptiondomain.Subscription{Amount: 100, Interval: "week", Currency: "USD"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidInterval)

	_, err = m.Get(context.Background(), db, 12345)
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
}
