package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/patronage/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "user", "42")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42", fields["actor_id"])
	assert.NotContains(t, fields, "collective_id")
}

func TestDescribeSQL(t *testing.T) {
	op, table := describeSQL(`SELECT * FROM "orders" WHERE "orders"."id" = 1`)
	assert.Equal(t, "SELECT", op)
	assert.Equal(t, "orders", table)

	op, table = describeSQL(`INSERT INTO "payment_events" ("id") VALUES (1)`)
	assert.Equal(t, "INSERT", op)
	assert.Equal(t, "payment_events", table)

	op, table = describeSQL(`UPDATE "subscriptions" SET "is_active"=false`)
	assert.Equal(t, "UPDATE", op)
	assert.Equal(t, "subscriptions", table)

	op, table = describeSQL("")
	assert.Equal(t, "UNKNOWN", op)
	assert.Empty(t, table)
}

func TestGormLoggerConfigFrom(t *testing.T) {
	cfg := GormLoggerConfigFrom("info", 50)
	assert.Equal(t, gormlogger.Info, cfg.Level)
	assert.Equal(t, 50*time.Millisecond, cfg.SlowThreshold)

	cfg = GormLoggerConfigFrom("bogus", 0)
	assert.Equal(t, gormlogger.Warn, cfg.Level)
	assert.Equal(t, defaultSlowQuery, cfg.SlowThreshold)
}

func TestGormTraceSkipsRecordNotFound(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(GormLoggerConfigFrom("error", 0))
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM "users"`, 0
	}, gormlogger.ErrRecordNotFound)
	assert.Empty(t, logs.All())

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM "users"`, 0
	}, errors.New("boom"))
	if assert.Len(t, logs.All(), 1) {
		assert.Equal(t, "users", logs.All()[0].ContextMap()["table"])
	}
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", 200, ""))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/v1/orders", 201, ""))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/v1/orders", 502, "payment_error"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/v1/orders", 429, "rate_limited"))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/v1/orders", 500, "internal_error"))
}

func TestGinMiddlewareLogsResourceAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/v1/orders/:id/confirm", func(c *gin.Context) {
		c.Set(obscontext.ResourceOrder, c.Param("id"))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/orders/77/confirm", nil)
	req.Header.Set("X-Request-Id", "req-abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "77", fields["order_id"])
		assert.Equal(t, "req-abc", fields["request_id"])
		assert.Equal(t, "/v1/orders/:id/confirm", fields["route"])
	}
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Len(t, rec.Header().Get("X-Request-Id"), 26)
}

func TestEncoding(t *testing.T) {
	assert.Equal(t, "console", encoding("", true))
	assert.Equal(t, "json", encoding("", false))
	assert.Equal(t, "json", encoding("JSON", true))
	assert.Equal(t, "console", encoding("console", false))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}
