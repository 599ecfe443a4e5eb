package domain

import "time"

const (
	failureRetryDelay = 48 * time.Hour
	updatedRetryDelay = 24 * time.Hour
)

// Dates is the schedule computed for a subscription. NextPeriodStart is nil
// when the period does not move.
type Dates struct {
	NextChargeDate  time.Time
	NextPeriodStart *time.Time
}

// NextChargeAndPeriodStartDates computes the schedule after a charge outcome.
// new and success move one interval past the current period start; failure
// retries two days from now; updated (payment method replaced while past due)
// retries one day from now.
func NextChargeAndPeriodStartDates(status ChargeStatus, sub Subscription, now time.Time) Dates {
	base := sub.CreatedAt
	if sub.NextPeriodStart != nil {
		base = *sub.NextPeriodStart
	}

	switch status {
	case ChargeStatusNew, ChargeStatusSuccess:
		next := AddInterval(base, sub.Interval)
		return Dates{NextChargeDate: next, NextPeriodStart: &next}
	case ChargeStatusFailure:
		return Dates{NextChargeDate: now.Add(failureRetryDelay)}
	case ChargeStatusUpdated:
		return Dates{NextChargeDate: now.Add(updatedRetryDelay)}
	default:
		return Dates{NextChargeDate: base}
	}
}

// ChargeRetryCount increments on failure and resets otherwise.
func ChargeRetryCount(status ChargeStatus, sub Subscription) int {
	if status == ChargeStatusFailure {
		return sub.ChargeRetryCount + 1
	}
	return 0
}

// AddInterval adds one month or one year, clamping to the last day of the
// target month (Jan 31 + 1 month = Feb 28).
func AddInterval(t time.Time, interval string) time.Time {
	switch interval {
	case IntervalMonth:
		return addMonths(t, 1)
	case IntervalYear:
		return addMonths(t, 12)
	default:
		return t
	}
}

func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return first.AddDate(0, 0, day-1)
}
