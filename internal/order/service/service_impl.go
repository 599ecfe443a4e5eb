package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	"github.com/smallbiznis/patronage/internal/apperror"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/authorization"
	"github.com/smallbiznis/patronage/internal/clock"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/internal/config"
	obsmetrics "github.com/smallbiznis/patronage/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	"github.com/smallbiznis/patronage/internal/ratelimit"
	"github.com/smallbiznis/patronage/internal/recaptcha"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/patronage/internal/tax/domain"
	tierdomain "github.com/smallbiznis/patronage/internal/tier/domain"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PledgeVerifier checks the popularity of a GitHub project before accepting
// pledges to it.
type PledgeVerifier interface {
	Verify(ctx context.Context, handle string) error
}

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Config         config.Config
	Repo           orderdomain.Repository
	Collectives    collectivedomain.Service
	CollectiveRepo collectivedomain.Repository
	Tiers          tierdomain.Repository
	Subscriptions  subscriptiondomain.Manager
	PaymentMethods paymentmethoddomain.Repository
	Transactions   transactiondomain.Repository
	Payments       paymentdomain.Service
	Users          authdomain.Service
	Authz          authorization.Service
	Tax            taxdomain.Calculator
	Limiter        *ratelimit.OrderLimiter `optional:"true"`
	Pledges        PledgeVerifier
	Recaptcha      recaptcha.Verifier
	ActivitySvc    activitydomain.Service
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           orderdomain.Repository
	collectives    collectivedomain.Service
	collectiveRepo collectivedomain.Repository
	tiers          tierdomain.Repository
	subscriptions  subscriptiondomain.Manager
	paymentMethods paymentmethoddomain.Repository
	transactions   transactiondomain.Repository
	payments       paymentdomain.Service
	users          authdomain.Service
	authz          authorization.Service
	tax            taxdomain.Calculator
	limiter        *ratelimit.OrderLimiter
	pledges        PledgeVerifier
	recaptcha      recaptcha.Verifier
	activitySvc    activitydomain.Service
	obsMetrics     *obsmetrics.Metrics
}

func NewService(p Params) orderdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("order.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		collectives:    p.Collectives,
		collectiveRepo: p.CollectiveRepo,
		tiers:          p.Tiers,
		subscriptions:  p.Subscriptions,
		paymentMethods: p.PaymentMethods,
		transactions:   p.Transactions,
		payments:       p.Payments,
		users:          p.Users,
		authz:          p.Authz,
		tax:            p.Tax,
		limiter:        p.Limiter,
		pledges:        p.Pledges,
		recaptcha:      p.Recaptcha,
		activitySvc:    p.ActivitySvc,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperror.NotFound("Order not found")
	}
	return order, nil
}

func (s *Service) loadOrder(ctx context.Context, id snowflake.ID, notFound string) (*orderdomain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperror.NotFound(notFound)
	}
	return order, nil
}

func (s *Service) isAdmin(ctx context.Context, user *authdomain.User, collectiveID *snowflake.ID) (bool, error) {
	if user == nil {
		return false, nil
	}
	return s.authz.IsAdmin(ctx, user.CollectiveID, collectiveID)
}

func (s *Service) isRoot(ctx context.Context, user *authdomain.User) (bool, error) {
	if user == nil {
		return false, nil
	}
	return s.authz.IsRoot(ctx, user.CollectiveID)
}

// isHostAdmin reports whether user administers the host of collectiveID.
func (s *Service) isHostAdmin(ctx context.Context, user *authdomain.User, collectiveID snowflake.ID) (bool, error) {
	collective, err := s.collectives.GetByID(ctx, collectiveID)
	if err != nil {
		return false, err
	}
	hostID, err := s.collectives.HostCollectiveID(ctx, collective)
	if err != nil {
		return false, err
	}
	return s.isAdmin(ctx, user, hostID)
}

func (s *Service) checkFeature(user *authdomain.User) error {
	if !user.CanUseFeature(authdomain.FeatureOrder) {
		return apperror.FeatureNotAllowed("You are not allowed to place orders")
	}
	return nil
}

// executeResult runs a payment and turns gateway failures into a result the
// client can display. Any other failure is returned as an error.
func (s *Service) executeResult(ctx context.Context, order *orderdomain.Order, run func() error) (*orderdomain.Result, error) {
	err := run()
	if err == nil {
		return &orderdomain.Result{Order: order}, nil
	}
	gwErr, ok := paymentdomain.AsGatewayError(err)
	if !ok {
		return nil, err
	}
	s.log.Info("payment declined",
		zap.String("order_id", order.ID.String()),
		zap.String("account", gwErr.Account),
		zap.String("message", gwErr.Message),
	)
	return &orderdomain.Result{Order: order, PaymentFailure: paymentFailure(gwErr)}, nil
}

func paymentFailure(gwErr *paymentdomain.GatewayError) *orderdomain.PaymentFailure {
	return &orderdomain.PaymentFailure{
		Message:  gwErr.Message,
		Account:  gwErr.Account,
		Response: gwErr.Response,
	}
}

func (s *Service) reload(ctx context.Context, order *orderdomain.Order) (*orderdomain.Order, error) {
	fresh, err := s.repo.FindByID(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return fresh, nil
}

func isForbidden(err error) bool {
	return errors.Is(err, authorization.ErrForbidden)
}

func userIDOf(user *authdomain.User) *snowflake.ID {
	if user == nil || user.ID == 0 {
		return nil
	}
	id := user.ID
	return &id
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
