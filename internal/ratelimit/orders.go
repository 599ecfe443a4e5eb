package ratelimit

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/patronage/internal/apperror"
	"github.com/smallbiznis/patronage/internal/config"
	obsmetrics "github.com/smallbiznis/patronage/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	orderLimitWindow = time.Hour

	keyOrderLimitAccount              = "order_limit_on_account_%s"
	keyOrderLimitAccountForCollective = "order_limit_on_account_%s_and_collective_%s"
	keyOrderLimitEmail                = "order_limit_on_email_%s"
	keyOrderLimitEmailForCollective   = "order_limit_on_email_%s_and_collective_%s"
	keyOrderLimitIP                   = "order_limit_on_ip_%s"

	orderLimitMessage = "Error while processing your request, please try again or contact support"
)

// OrderIdentity is who places an order. Account limits apply when the payer is
// known; otherwise email and IP limits apply.
type OrderIdentity struct {
	FromCollectiveID string
	CollectiveID     string
	Email            string
	IP               string
}

type limitRule struct {
	dimension string
	key       string
	ceiling   int64
}

type OrderLimiterParams struct {
	fx.In

	Config  config.Config
	Limits  *config.LimitsHolder
	Store   CounterStore
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type OrderLimiter struct {
	enabled bool
	verbose bool
	limits  *config.LimitsHolder
	store   CounterStore
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewOrderLimiter(p OrderLimiterParams) *OrderLimiter {
	return &OrderLimiter{
		enabled: !p.Config.IsTestEnv(),
		verbose: p.Config.IsDevelopment(),
		limits:  p.Limits,
		store:   p.Store,
		log:     p.Log.Named("ratelimit.orders"),
		metrics: p.Metrics,
	}
}

// Check counts one order attempt against every applicable key. Every key is
// incremented even when an earlier one is already over its ceiling, so
// rejected attempts keep counting.
func (l *OrderLimiter) Check(ctx context.Context, id OrderIdentity) error {
	if l == nil || !l.enabled {
		return nil
	}

	var reached *limitRule
	for _, rule := range l.rules(id) {
		count, err := l.store.Incr(ctx, rule.key, orderLimitWindow)
		if err != nil {
			l.log.Warn("order limit counter unavailable", zap.String("dimension", rule.dimension), zap.Error(err))
			continue
		}
		before := count - 1
		if before >= rule.ceiling && reached == nil {
			r := rule
			reached = &r
		}
	}

	if reached == nil {
		return nil
	}

	l.metrics.RecordOrderLimitDenied(ctx, reached.dimension)
	l.log.Info("order limit reached", zap.String("dimension", reached.dimension))
	if l.verbose {
		return apperror.RateLimited(orderLimitMessage + " - Orders limit reached")
	}
	return apperror.RateLimited(orderLimitMessage)
}

func (l *OrderLimiter) rules(id OrderIdentity) []limitRule {
	limits := l.limits.Get().OrdersPerHour
	fromCollectiveID := strings.TrimSpace(id.FromCollectiveID)
	collectiveID := strings.TrimSpace(id.CollectiveID)

	var rules []limitRule
	if fromCollectiveID != "" {
		rules = append(rules, limitRule{
			dimension: "account",
			key:       fmt.Sprintf(keyOrderLimitAccount, fromCollectiveID),
			ceiling:   limits.PerAccount,
		})
		if collectiveID != "" {
			rules = append(rules, limitRule{
				dimension: "account_collective",
				key:       fmt.Sprintf(keyOrderLimitAccountForCollective, fromCollectiveID, collectiveID),
				ceiling:   limits.PerAccountForCollective,
			})
		}
		return rules
	}

	if email := strings.TrimSpace(id.Email); email != "" {
		emailHash := md5Hex(email)
		rules = append(rules, limitRule{
			dimension: "email",
			key:       fmt.Sprintf(keyOrderLimitEmail, emailHash),
			ceiling:   limits.PerEmail,
		})
		if collectiveID != "" {
			rules = append(rules, limitRule{
				dimension: "email_collective",
				key:       fmt.Sprintf(keyOrderLimitEmailForCollective, emailHash, collectiveID),
				ceiling:   limits.PerEmailForCollective,
			})
		}
	}
	if ip := strings.TrimSpace(id.IP); ip != "" {
		rules = append(rules, limitRule{
			dimension: "ip",
			key:       fmt.Sprintf(keyOrderLimitIP, md5Hex(ip)),
			ceiling:   limits.PerIP,
		})
	}
	return rules
}

func md5Hex(value string) string {
	sum := md5.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}
