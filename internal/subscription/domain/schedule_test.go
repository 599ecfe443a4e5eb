package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextChargeAndPeriodStartDates(t *testing.T) {
	created := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 4, 10, 8, 30, 0, 0, time.UTC)
	periodStart := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		status          ChargeStatus
		sub             Subscription
		wantCharge      time.Time
		wantPeriodStart *time.Time
	}{
		{
			name:            "new monthly clamps to end of february",
			status:          ChargeStatusNew,
			sub:             Subscription{Interval: IntervalMonth, CreatedAt: created},
			wantCharge:      time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
			wantPeriodStart: ptr(time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)),
		},
		{
			name:            "success starts from next period start",
			status:          ChargeStatusSuccess,
			sub:             Subscription{Interval: IntervalMonth, CreatedAt: created, NextPeriodStart: &periodStart},
			wantCharge:      time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC),
			wantPeriodStart: ptr(time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:            "yearly",
			status:          ChargeStatusSuccess,
			sub:             Subscription{Interval: IntervalYear, CreatedAt: created},
			wantCharge:      time.Date(2027, 1, 31, 10, 0, 0, 0, time.UTC),
			wantPeriodStart: ptr(time.Date(2027, 1, 31, 10, 0, 0, 0, time.UTC)),
		},
		{
			name:       "failure retries in two days",
			status:     ChargeStatusFailure,
			sub:        Subscription{Interval: IntervalMonth, CreatedAt: created, NextPeriodStart: &periodStart},
			wantCharge: now.Add(48 * time.Hour),
		},
		{
			name:       "updated retries next day",
			status:     ChargeStatusUpdated,
			sub:        Subscription{Interval: IntervalMonth, CreatedAt: created},
			wantCharge: now.Add(24 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextChargeAndPeriodStartDates(tt.status, tt.sub, now)
			assert.Equal(t, tt.wantCharge, got.NextChargeDate)
			if tt.wantPeriodStart == nil {
				assert.Nil(t, got.NextPeriodStart)
				return
			}
			require.NotNil(t, got.NextPeriodStart)
			assert.Equal(t, *tt.wantPeriodStart, *got.NextPeriodStart)
		})
	}
}

func TestChargeRetryCount(t *testing.T) {
	sub := Subscription{ChargeRetryCount: 2}
	assert.Equal(t, 3, ChargeRetryCount(ChargeStatusFailure, sub))
	assert.Equal(t, 0, ChargeRetryCount(ChargeStatusSuccess, sub))
	assert.Equal(t, 0, ChargeRetryCount(ChargeStatusUpdated, sub))
	assert.True(t, sub.PastDue())
}

func TestAddIntervalLeapYear(t *testing.T) {
	assert.Equal(t, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), AddInterval(time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC), IntervalMonth))
	assert.Equal(t, time.Date(2029, 2, 28, 0, 0, 0, 0, time.UTC), AddInterval(time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), IntervalYear))
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC), AddInterval(time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC), IntervalMonth))
}

func ptr(t time.Time) *time.Time { return &t }
