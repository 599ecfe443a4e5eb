package payment

import (
	"github.com/smallbiznis/patronage/internal/clock"
	"github.com/smallbiznis/patronage/internal/config"
	"github.com/smallbiznis/patronage/internal/payment/adapters"
	"github.com/smallbiznis/patronage/internal/payment/adapters/opencollective"
	"github.com/smallbiznis/patronage/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	"github.com/smallbiznis/patronage/internal/payment/repository"
	paymentservice "github.com/smallbiznis/patronage/internal/payment/service"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(paymentservice.NewService),
)

// NewRegistry registers the in-platform processors, plus Stripe when a
// secret key is configured.
func NewRegistry(cfg config.Config, c clock.Clock, transactions transactiondomain.Repository, log *zap.Logger) *adapters.Registry {
	processors := []paymentdomain.Processor{
		opencollective.NewManual(),
		opencollective.NewPrepaid(c, transactions),
	}
	card, err := stripe.NewProcessor(cfg.StripeSecretKey, cfg.StripeAPIBase, nil)
	if err != nil {
		log.Named("payment").Warn("stripe not configured, credit cards are disabled")
	} else {
		processors = append(processors, card)
	}
	return adapters.NewRegistry(processors...)
}
