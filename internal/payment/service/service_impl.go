package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/clock"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/internal/config"
	obsmetrics "github.com/smallbiznis/patronage/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	"github.com/smallbiznis/patronage/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	"github.com/smallbiznis/patronage/internal/plan"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	tierdomain "github.com/smallbiznis/patronage/internal/tier/domain"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrAlreadyRefunded = errors.New("transaction_already_refunded")

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Config         config.Config
	Registry       *adapters.Registry
	Repo           paymentdomain.Repository
	Orders         orderdomain.Repository
	Transactions   transactiondomain.Repository
	PaymentMethods paymentmethoddomain.Repository
	Collectives    collectivedomain.Repository
	Tiers          tierdomain.Repository
	Subscriptions  subscriptiondomain.Manager
	Plans          *plan.Service
	ActivitySvc    activitydomain.Service
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	fees           feeDefaults
	registry       *adapters.Registry
	repo           paymentdomain.Repository
	orders         orderdomain.Repository
	transactions   transactiondomain.Repository
	paymentMethods paymentmethoddomain.Repository
	collectives    collectivedomain.Repository
	tiers          tierdomain.Repository
	subscriptions  subscriptiondomain.Manager
	plans          *plan.Service
	activitySvc    activitydomain.Service
	obsMetrics     *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		clock: p.Clock,
		fees: feeDefaults{
			hostFeePercent:     p.Config.Platform.HostFeePercent,
			platformFeePercent: p.Config.Platform.PlatformFeePercent,
		},
		registry:       p.Registry,
		repo:           p.Repo,
		orders:         p.Orders,
		transactions:   p.Transactions,
		paymentMethods: p.PaymentMethods,
		collectives:    p.Collectives,
		tiers:          p.Tiers,
		subscriptions:  p.Subscriptions,
		plans:          p.Plans,
		activitySvc:    p.ActivitySvc,
		obsMetrics:     p.ObsMetrics,
	}
}

type parties struct {
	recipient *collectivedomain.Collective
	payer     *collectivedomain.Collective
	host      *collectivedomain.Collective
}

func (s *Service) ExecuteOrder(ctx context.Context, user *authdomain.User, order *orderdomain.Order, method *paymentmethoddomain.PaymentMethod) error {
	if order == nil {
		return orderdomain.ErrOrderNotFound
	}
	method, err := s.resolveMethod(ctx, order, method)
	if err != nil {
		return err
	}
	processor, err := s.registry.Get(method.Key())
	if err != nil {
		return err
	}
	p, err := s.loadParties(ctx, order)
	if err != nil {
		return err
	}

	charge, err := processor.Charge(ctx, s.db, paymentdomain.ChargeRequest{
		Order:       order,
		Method:      method,
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		Description: order.Description,
	})
	if err != nil {
		s.logEvent(ctx, order, processor.Key(), paymentdomain.EventTypeChargeFailed, "", failurePayload(err))
		s.obsMetrics.RecordPaymentEvent(ctx, processor.Key(), "failed")
		return err
	}

	if !charge.Settled {
		order.PaymentMethodID = storedID(method)
		order.UpdatedAt = s.clock.Now().UTC()
		if err := s.orders.Update(ctx, s.db, order); err != nil {
			return err
		}
		s.logEvent(ctx, order, processor.Key(), paymentdomain.EventTypeChargePending, charge.Reference, charge.Raw)
		s.obsMetrics.RecordPaymentEvent(ctx, processor.Key(), "pending")
		return nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.settle(ctx, tx, user, order, method, p, processor.Key(), charge)
	})
	if err != nil {
		return err
	}
	s.obsMetrics.RecordPaymentEvent(ctx, processor.Key(), "succeeded")
	s.log.Info("order executed",
		zap.String("order_id", order.ID.String()),
		zap.String("processor", processor.Key()),
		zap.String("status", string(order.Status)),
	)
	return nil
}

func (s *Service) SetupMethod(ctx context.Context, user *authdomain.User, method *paymentmethoddomain.PaymentMethod) error {
	if method == nil {
		return paymentdomain.ErrMissingPaymentMethod
	}
	processor, err := s.registry.Get(method.Key())
	if err != nil {
		return err
	}
	req := paymentdomain.SetupRequest{Method: method}
	if user != nil {
		req.Email = user.Email
	}
	if err := processor.Setup(ctx, req); err != nil {
		s.log.Info("payment method setup failed",
			zap.String("processor", processor.Key()),
			zap.Error(err),
		)
		s.obsMetrics.RecordPaymentEvent(ctx, processor.Key(), "setup_failed")
		return err
	}
	return nil
}

// settle books a successful charge: ledger pair, order status, membership,
// subscription schedule, plan and activity.
func (s *Service) settle(
	ctx context.Context,
	tx *gorm.DB,
	user *authdomain.User,
	order *orderdomain.Order,
	method *paymentmethoddomain.PaymentMethod,
	p *parties,
	processorKey string,
	charge *paymentdomain.Charge,
) error {
	credit, err := s.recordTransactions(ctx, tx, user, order, method, p, charge)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	order.ProcessedAt = &now
	order.PaymentMethodID = storedID(method)
	order.Status = orderdomain.StatusPaid
	if order.IsRecurring() {
		order.Status = orderdomain.StatusActive
		if err := s.activateSubscription(ctx, tx, order); err != nil {
			return err
		}
	}
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, tx, order); err != nil {
		return err
	}

	if err := s.addBacker(ctx, tx, user, order); err != nil {
		return err
	}
	if order.TierID != nil {
		tier, err := s.tiers.FindByID(ctx, tx, *order.TierID)
		if err != nil {
			return err
		}
		if err := s.plans.HireOrUpgrade(ctx, tx, p.recipient, p.payer, tier); err != nil {
			return err
		}
	}

	if err := s.recordEvent(ctx, tx, order, &credit.ID, processorKey, paymentdomain.EventTypeChargeSucceeded, charge.Reference, charge.Raw); err != nil {
		return err
	}
	return s.activitySvc.Record(ctx, tx, activitydomain.Entry{
		Type:         activitydomain.TypeTransactionCreated,
		CollectiveID: &order.CollectiveID,
		UserID:       userID(user),
		Data: map[string]any{
			"orderId":          order.ID.String(),
			"transactionId":    credit.ID.String(),
			"fromCollectiveId": order.FromCollectiveID.String(),
			"amount":           order.TotalAmount,
			"currency":         order.Currency,
		},
	})
}

func (s *Service) activateSubscription(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
	var sub *subscriptiondomain.Subscription
	if order.SubscriptionID != nil {
		existing, err := s.subscriptions.Get(ctx, tx, *order.SubscriptionID)
		if err != nil {
			return err
		}
		sub = existing
	} else {
		sub = &subscriptiondomain.Subscription{
			Amount:   order.TotalAmount,
			Interval: *order.Interval,
			Currency: order.Currency,
			Quantity: int(order.Quantity),
		}
		if err := s.subscriptions.Create(ctx, tx, sub); err != nil {
			return err
		}
		order.SubscriptionID = &sub.ID
	}
	return s.subscriptions.Activate(ctx, tx, sub)
}

func (s *Service) addBacker(ctx context.Context, tx *gorm.DB, user *authdomain.User, order *orderdomain.Order) error {
	existing, err := s.collectives.FindMember(ctx, tx, order.FromCollectiveID, order.CollectiveID, collectivedomain.RoleBacker)
	if err != nil || existing != nil {
		return err
	}
	now := s.clock.Now().UTC()
	return s.collectives.InsertMember(ctx, tx, &collectivedomain.Member{
		ID:                 s.genID.Generate(),
		MemberCollectiveID: order.FromCollectiveID,
		CollectiveID:       order.CollectiveID,
		Role:               collectivedomain.RoleBacker,
		TierID:             order.TierID,
		CreatedByUserID:    userID(user),
		CreatedAt:          now,
		UpdatedAt:          now,
	})
}

func (s *Service) ProcessOrder(ctx context.Context, order *orderdomain.Order) (*transactiondomain.Transaction, error) {
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	method, err := s.resolveMethod(ctx, order, nil)
	if err != nil {
		return nil, err
	}
	processor, err := s.registry.Get(method.Key())
	if err != nil {
		return nil, err
	}
	p, err := s.loadParties(ctx, order)
	if err != nil {
		return nil, err
	}

	amount := order.TotalAmount
	if order.SubscriptionID != nil {
		sub, err := s.subscriptions.Get(ctx, s.db, *order.SubscriptionID)
		if err != nil {
			return nil, err
		}
		amount = sub.Amount
	}

	charge, err := processor.Charge(ctx, s.db, paymentdomain.ChargeRequest{
		Order:       order,
		Method:      method,
		Amount:      amount,
		Currency:    order.Currency,
		Description: order.Description,
	})
	if err != nil {
		s.logEvent(ctx, order, processor.Key(), paymentdomain.EventTypeChargeFailed, "", failurePayload(err))
		s.obsMetrics.RecordPaymentEvent(ctx, processor.Key(), "failed")
		return nil, err
	}
	if !charge.Settled {
		return nil, &paymentdomain.GatewayError{Message: "Payment is still pending", Account: processor.Key()}
	}

	var credit *transactiondomain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		credit, err = s.recordTransactions(ctx, tx, nil, order, method, p, charge)
		if err != nil {
			return err
		}
		return s.recordEvent(ctx, tx, order, &credit.ID, processor.Key(), paymentdomain.EventTypeChargeSucceeded, charge.Reference, charge.Raw)
	})
	if err != nil {
		return nil, err
	}
	s.obsMetrics.RecordPaymentEvent(ctx, processor.Key(), "succeeded")
	return credit, nil
}

func (s *Service) RefundTransaction(ctx context.Context, transaction *transactiondomain.Transaction, user *authdomain.User) (*transactiondomain.Transaction, error) {
	if transaction == nil {
		return nil, transactiondomain.ErrTransactionNotFound
	}
	counterpart, err := s.transactions.FindCounterpart(ctx, s.db, transaction)
	if err != nil {
		return nil, err
	}
	if counterpart == nil {
		return nil, fmt.Errorf("transaction %s has no counterpart", transaction.ID)
	}
	credit, debit := transaction, counterpart
	if credit.Type != transactiondomain.TypeCredit {
		credit, debit = counterpart, transaction
	}
	if credit.RefundTransactionID != nil || credit.IsRefund {
		return nil, ErrAlreadyRefunded
	}

	processorKey := "none"
	var refund *paymentdomain.Refund
	if credit.PaymentMethodID != nil {
		method, err := s.paymentMethods.FindByID(ctx, s.db, *credit.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		if method != nil {
			processor, err := s.registry.Get(method.Key())
			if err != nil {
				return nil, err
			}
			processorKey = processor.Key()
			refund, err = processor.Refund(ctx, s.db, paymentdomain.RefundRequest{Transaction: credit, Method: method})
			if err != nil {
				return nil, err
			}
		}
	}
	if refund == nil {
		refund = &paymentdomain.Refund{}
	}

	now := s.clock.Now().UTC()
	group := ulid.Make().String()
	description := fmt.Sprintf("Refund of \"%s\"", credit.Description)

	refundCredit := &transactiondomain.Transaction{
		ID:                                s.genID.Generate(),
		Type:                              transactiondomain.TypeCredit,
		TransactionGroup:                  group,
		Description:                       description,
		Amount:                            credit.Amount,
		Currency:                          credit.Currency,
		AmountInHostCurrency:              credit.AmountInHostCurrency,
		HostCurrency:                      credit.HostCurrency,
		PaymentProcessorFeeInHostCurrency: refund.ProcessorFee,
		NetAmountInCollectiveCurrency:     credit.Amount,
		CollectiveID:                      credit.FromCollectiveID,
		FromCollectiveID:                  credit.CollectiveID,
		HostCollectiveID:                  credit.HostCollectiveID,
		OrderID:                           credit.OrderID,
		PaymentMethodID:                   credit.PaymentMethodID,
		CreatedByUserID:                   userID(user),
		RefundTransactionID:               &credit.ID,
		IsRefund:                          true,
		Data:                              datatypes.JSONMap{"refundReference": refund.Reference},
		CreatedAt:                         now,
		UpdatedAt:                         now,
	}
	refundDebit := &transactiondomain.Transaction{
		ID:                                s.genID.Generate(),
		Type:                              transactiondomain.TypeDebit,
		TransactionGroup:                  group,
		Description:                       description,
		Amount:                            -credit.Amount,
		Currency:                          credit.Currency,
		AmountInHostCurrency:              -credit.AmountInHostCurrency,
		HostCurrency:                      credit.HostCurrency,
		PaymentProcessorFeeInHostCurrency: refund.ProcessorFee,
		NetAmountInCollectiveCurrency:     -credit.Amount,
		CollectiveID:                      credit.CollectiveID,
		FromCollectiveID:                  credit.FromCollectiveID,
		HostCollectiveID:                  credit.HostCollectiveID,
		OrderID:                           credit.OrderID,
		PaymentMethodID:                   credit.PaymentMethodID,
		CreatedByUserID:                   userID(user),
		RefundTransactionID:               &debit.ID,
		IsRefund:                          true,
		Data:                              datatypes.JSONMap{"refundReference": refund.Reference},
		CreatedAt:                         now,
		UpdatedAt:                         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transactions.InsertPair(ctx, tx, refundCredit, refundDebit); err != nil {
			return err
		}
		if err := s.transactions.SetRefund(ctx, tx, credit.ID, refundCredit.ID); err != nil {
			return err
		}
		if err := s.transactions.SetRefund(ctx, tx, debit.ID, refundDebit.ID); err != nil {
			return err
		}
		if err := s.recordRefundEvent(ctx, tx, refundCredit, processorKey, refund.Reference); err != nil {
			return err
		}
		return s.activitySvc.Record(ctx, tx, activitydomain.Entry{
			Type:         activitydomain.TypeOrderRefunded,
			CollectiveID: &credit.CollectiveID,
			UserID:       userID(user),
			Data: map[string]any{
				"transactionId":       credit.ID.String(),
				"refundTransactionId": refundCredit.ID.String(),
				"amount":              credit.Amount,
				"currency":            credit.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	credit.RefundTransactionID = &refundCredit.ID
	s.obsMetrics.RecordPaymentEvent(ctx, processorKey, "refunded")
	s.log.Info("transaction refunded",
		zap.String("transaction_id", credit.ID.String()),
		zap.String("refund_transaction_id", refundCredit.ID.String()),
	)
	return refundCredit, nil
}

func (s *Service) resolveMethod(ctx context.Context, order *orderdomain.Order, method *paymentmethoddomain.PaymentMethod) (*paymentmethoddomain.PaymentMethod, error) {
	if method != nil {
		return method, nil
	}
	if order.PaymentMethodID == nil {
		return nil, paymentdomain.ErrMissingPaymentMethod
	}
	stored, err := s.paymentMethods.FindByID(ctx, s.db, *order.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, paymentdomain.ErrMissingPaymentMethod
	}
	return stored, nil
}

func (s *Service) loadParties(ctx context.Context, order *orderdomain.Order) (*parties, error) {
	recipient, err := s.collectives.FindByID(ctx, s.db, order.CollectiveID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, collectivedomain.ErrCollectiveNotFound
	}
	payer, err := s.collectives.FindByID(ctx, s.db, order.FromCollectiveID)
	if err != nil {
		return nil, err
	}
	if payer == nil {
		return nil, collectivedomain.ErrCollectiveNotFound
	}

	p := &parties{recipient: recipient, payer: payer}
	hostID := recipient.HostCollectiveID
	if hostID == nil && recipient.IsHostAccount {
		hostID = &recipient.ID
	}
	if hostID == nil && recipient.ParentCollectiveID != nil {
		parent, err := s.collectives.FindByID(ctx, s.db, *recipient.ParentCollectiveID)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			hostID = parent.HostCollectiveID
		}
	}
	if hostID != nil {
		host, err := s.collectives.FindByID(ctx, s.db, *hostID)
		if err != nil {
			return nil, err
		}
		p.host = host
	}
	return p, nil
}

func (s *Service) recordEvent(
	ctx context.Context,
	db *gorm.DB,
	order *orderdomain.Order,
	transactionID *snowflake.ID,
	processorKey string,
	eventType string,
	reference string,
	payload map[string]any,
) error {
	event := &paymentdomain.EventRecord{
		ID:            s.genID.Generate(),
		OrderID:       &order.ID,
		TransactionID: transactionID,
		Processor:     processorKey,
		EventType:     eventType,
		Reference:     optional(reference),
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		Payload:       datatypes.JSONMap(payload),
		OccurredAt:    s.clock.Now().UTC(),
	}
	if event.Payload == nil {
		event.Payload = datatypes.JSONMap{}
	}
	return s.repo.InsertEvent(ctx, db, event)
}

// logEvent records an event outside of a transaction; a failure only logs.
func (s *Service) logEvent(ctx context.Context, order *orderdomain.Order, processorKey, eventType, reference string, payload map[string]any) {
	if err := s.recordEvent(ctx, s.db, order, nil, processorKey, eventType, reference, payload); err != nil {
		s.log.Warn("failed to record payment event",
			zap.String("order_id", order.ID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func (s *Service) recordRefundEvent(ctx context.Context, db *gorm.DB, refund *transactiondomain.Transaction, processorKey, reference string) error {
	event := &paymentdomain.EventRecord{
		ID:            s.genID.Generate(),
		OrderID:       refund.OrderID,
		TransactionID: &refund.ID,
		Processor:     processorKey,
		EventType:     paymentdomain.EventTypeRefunded,
		Reference:     optional(reference),
		Amount:        refund.Amount,
		Currency:      refund.Currency,
		Payload:       datatypes.JSONMap{},
		OccurredAt:    s.clock.Now().UTC(),
	}
	return s.repo.InsertEvent(ctx, db, event)
}

func failurePayload(err error) map[string]any {
	if gwErr, ok := paymentdomain.AsGatewayError(err); ok {
		return map[string]any{"message": gwErr.Message, "account": gwErr.Account, "response": gwErr.Response}
	}
	return map[string]any{"message": err.Error()}
}

func storedID(method *paymentmethoddomain.PaymentMethod) *snowflake.ID {
	if method == nil || method.ID == 0 {
		return nil
	}
	id := method.ID
	return &id
}

func userID(user *authdomain.User) *snowflake.ID {
	if user == nil || user.ID == 0 {
		return nil
	}
	id := user.ID
	return &id
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
