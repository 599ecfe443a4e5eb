package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("status", "PAID"),
		attribute.String("collective_id", "456"),
		attribute.String("dimension", "per_ip"),
	)
	require.Len(t, attrs, 2)

	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("status"))
	assert.Contains(t, keys, attribute.Key("dimension"))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordOrderCreated(ctx, "PAID", "USD", 1000)
		m.RecordOrderLimitDenied(ctx, "per_account")
		m.RecordPaymentEvent(ctx, "stripe", "succeeded")
		m.RecordSpamDetection(ctx, "description")
		m.RecordNotificationFailure(ctx, "slack")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "patronage"}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordOrderCreated(context.Background(), "ACTIVE", "EUR", 500)
		m.RecordOrderCreated(context.Background(), "PAID", "USD", 0)
	})
}
