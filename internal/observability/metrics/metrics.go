package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ordersCreated   metric.Int64Counter
	orderAmounts    metric.Int64Histogram
	orderLimitHits  metric.Int64Counter
	paymentEvents   metric.Int64Counter
	spamDetections  metric.Int64Counter
	notificationErr metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "patronage"
	}
	meter := provider.Meter(name)

	ordersCreated, err := meter.Int64Counter("patronage_orders_created_total")
	if err != nil {
		return nil, err
	}
	orderAmounts, err := meter.Int64Histogram("patronage_order_amount",
		metric.WithDescription("Order totals in the smallest currency unit"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 2500, 5000, 10000, 50000, 100000, 500000),
	)
	if err != nil {
		return nil, err
	}
	orderLimitHits, err := meter.Int64Counter("patronage_order_limit_denied_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("patronage_payment_events_total")
	if err != nil {
		return nil, err
	}
	spamDetections, err := meter.Int64Counter("patronage_spam_detections_total")
	if err != nil {
		return nil, err
	}
	notificationErr, err := meter.Int64Counter("patronage_notification_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ordersCreated:   ordersCreated,
		orderAmounts:    orderAmounts,
		orderLimitHits:  orderLimitHits,
		paymentEvents:   paymentEvents,
		spamDetections:  spamDetections,
		notificationErr: notificationErr,
	}, nil
}

// RecordOrderCreated counts persisted orders by status and records the
// order total per currency. Free orders only count.
func (m *Metrics) RecordOrderCreated(ctx context.Context, status, currency string, totalAmount int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
	if totalAmount > 0 {
		amountAttrs := FilterAttributes(attribute.String("currency", strings.ToUpper(strings.TrimSpace(currency))))
		m.orderAmounts.Record(ctx, totalAmount, metric.WithAttributes(amountAttrs...))
	}
}

// RecordOrderLimitDenied counts rate-limit denials by throttling dimension.
func (m *Metrics) RecordOrderLimitDenied(ctx context.Context, dimension string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("dimension", strings.TrimSpace(dimension)))
	m.orderLimitHits.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSpamDetection(ctx context.Context, field string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("field", strings.TrimSpace(field)))
	m.spamDetections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNotificationFailure(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("channel", strings.TrimSpace(channel)))
	m.notificationErr.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"status":      {},
	"currency":    {},
	"dimension":   {},
	"provider":    {},
	"outcome":     {},
	"field":       {},
	"channel":     {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
