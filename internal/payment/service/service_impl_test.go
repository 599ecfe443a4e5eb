package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	activityservice "github.com/smallbiznis/patronage/internal/activity/service"
	"github.com/smallbiznis/patronage/internal/apperror"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/clock"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	collectiverepo "github.com/smallbiznis/patronage/internal/collective/repository"
	"github.com/smallbiznis/patronage/internal/config"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	orderrepo "github.com/smallbiznis/patronage/internal/order/repository"
	"github.com/smallbiznis/patronage/internal/payment/adapters"
	"github.com/smallbiznis/patronage/internal/payment/adapters/opencollective"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmock "github.com/smallbiznis/patronage/internal/payment/domain/mock"
	paymentrepo "github.com/smallbiznis/patronage/internal/payment/repository"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	paymentmethodrepo "github.com/smallbiznis/patronage/internal/paymentmethod/repository"
	"github.com/smallbiznis/patronage/internal/plan"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/patronage/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/patronage/internal/subscription/service"
	"github.com/smallbiznis/patronage/internal/testutil"
	tierdomain "github.com/smallbiznis/patronage/internal/tier/domain"
	tierrepo "github.com/smallbiznis/patronage/internal/tier/repository"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	transactionrepo "github.com/smallbiznis/patronage/internal/transaction/repository"
	"github.com/smallbiznis/patronage/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	db        *gorm.DB
	node      *snowflake.Node
	card      *paymentmock.MockProcessor
	host      *collectivedomain.Collective
	recipient *collectivedomain.Collective
	payer     *collectivedomain.Collective
	user      *authdomain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t,
		&collectivedomain.Collective{},
		&collectivedomain.Member{},
		&orderdomain.Order{},
		&transactiondomain.Transaction{},
		&paymentmethoddomain.PaymentMethod{},
		&subscriptiondomain.Subscription{},
		&tierdomain.Tier{},
		&activitydomain.Activity{},
		&paymentdomain.EventRecord{},
	)
	node := testutil.Node(t)
	fake := clock.NewFakeClock(testNow)

	ctrl := gomock.NewController(t)
	card := paymentmock.NewMockProcessor(ctrl)
	card.EXPECT().Key().Return("stripe/creditcard").AnyTimes()

	cfg := config.Config{}
	cfg.Platform.HostFeePercent = 5
	cfg.Platform.PlatformFeePercent = 5
	cfg.Platform.PlansCollectiveSlug = "opencollective"

	collectives := collectiverepo.Provide()
	transactions := transactionrepo.Provide()
	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Config: cfg,
		Registry: adapters.NewRegistry(
			opencollective.NewManual(),
			opencollective.NewPrepaid(fake, transactions),
			card,
		),
		Repo:           paymentrepo.Provide(),
		Orders:         orderrepo.Provide(),
		Transactions:   transactions,
		PaymentMethods: paymentmethodrepo.Provide(),
		Collectives:    collectives,
		Tiers:          tierrepo.Provide(),
		Subscriptions: subscriptionservice.NewManager(subscriptionservice.Params{
			Log:   zap.NewNop(),
			GenID: node,
			Clock: fake,
			Repo:  subscriptionrepo.Provide(),
		}),
		Plans: plan.NewService(plan.Params{Log: zap.NewNop(), Config: cfg, Repo: collectives}),
		ActivitySvc: activityservice.NewService(activityservice.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Clock: fake,
			Store: repository.ProvideStore[activitydomain.Activity](db),
		}),
	})

	f := &fixture{svc: svc.(*Service), db: db, node: node, card: card}
	f.host = f.collective(t, "brussels-host", collectivedomain.TypeOrganization, nil)
	f.host.IsHostAccount = true
	require.NoError(t, db.Save(f.host).Error)
	f.recipient = f.collective(t, "babel", collectivedomain.TypeCollective, &f.host.ID)
	f.payer = f.collective(t, "xdamman", collectivedomain.TypeUser, nil)
	f.user = &authdomain.User{ID: node.Generate(), CollectiveID: f.payer.ID, Email: "xdamman@test.dev"}
	return f
}

func (f *fixture) collective(t *testing.T, slug string, kind collectivedomain.Type, hostID *snowflake.ID) *collectivedomain.Collective {
	t.Helper()
	c := &collectivedomain.Collective{
		ID:               f.node.Generate(),
		Slug:             slug,
		Name:             slug,
		Type:             kind,
		Currency:         "USD",
		IsActive:         true,
		HostCollectiveID: hostID,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
	require.NoError(t, f.db.Create(c).Error)
	return c
}

func (f *fixture) order(t *testing.T, amount int64, interval *string) *orderdomain.Order {
	t.Helper()
	o := &orderdomain.Order{
		ID:               f.node.Generate(),
		FromCollectiveID: f.payer.ID,
		CollectiveID:     f.recipient.ID,
		Quantity:         1,
		TotalAmount:      amount,
		Currency:         "USD",
		Interval:         interval,
		Description:      "Financial contribution to babel",
		Status:           orderdomain.StatusPending,
		Data:             datatypes.JSONMap{},
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
	require.NoError(t, orderrepo.Provide().Insert(context.Background(), f.db, o))
	return o
}

func (f *fixture) method(t *testing.T, service, kind string, data map[string]any) *paymentmethoddomain.PaymentMethod {
	t.Helper()
	pm := &paymentmethoddomain.PaymentMethod{
		ID:        f.node.Generate(),
		UUID:      f.node.Generate().String(),
		Service:   service,
		Type:      kind,
		Currency:  "USD",
		Data:      datatypes.JSONMap(data),
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	require.NoError(t, f.db.Create(pm).Error)
	return pm
}

func (f *fixture) transactions(t *testing.T, orderID snowflake.ID) []transactiondomain.Transaction {
	t.Helper()
	items, err := transactionrepo.Provide().ListByOrder(context.Background(), f.db, orderID)
	require.NoError(t, err)
	return items
}

func TestExecuteOrderManualPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, 1000, nil)
	manual := f.method(t, "opencollective", "manual", map[string]any{"paid": true})

	require.NoError(t, f.svc.ExecuteOrder(ctx, f.user, order, manual))

	stored, err := orderrepo.Provide().FindByID(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, stored.Status)
	require.NotNil(t, stored.ProcessedAt)
	require.NotNil(t, stored.PaymentMethodID)
	assert.Equal(t, manual.ID, *stored.PaymentMethodID)

	items := f.transactions(t, order.ID)
	require.Len(t, items, 2)
	var credit, debit transactiondomain.Transaction
	for _, item := range items {
		if item.Type == transactiondomain.TypeCredit {
			credit = item
		} else {
			debit = item
		}
	}
	assert.Equal(t, credit.TransactionGroup, debit.TransactionGroup)
	assert.Equal(t, int64(1000), credit.Amount)
	assert.Equal(t, int64(50), credit.HostFeeInHostCurrency)
	assert.Equal(t, int64(50), credit.PlatformFeeInHostCurrency)
	assert.Equal(t, int64(900), credit.NetAmountInCollectiveCurrency)
	assert.Equal(t, int64(-900), debit.Amount)
	assert.Equal(t, f.payer.ID, debit.CollectiveID)
	require.NotNil(t, credit.HostCollectiveID)
	assert.Equal(t, f.host.ID, *credit.HostCollectiveID)

	backer, err := collectiverepo.Provide().FindMember(ctx, f.db, f.payer.ID, f.recipient.ID, collectivedomain.RoleBacker)
	require.NoError(t, err)
	assert.NotNil(t, backer)

	var activities int64
	require.NoError(t, f.db.Model(&activitydomain.Activity{}).Where("type = ?", activitydomain.TypeTransactionCreated).Count(&activities).Error)
	assert.Equal(t, int64(1), activities)
}

func TestExecuteOrderManualUnpaidStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, 1000, nil)
	manual := f.method(t, "opencollective", "manual", nil)

	require.NoError(t, f.svc.ExecuteOrder(ctx, f.user, order, manual))

	stored, err := orderrepo.Provide().FindByID(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, stored.Status)
	assert.Nil(t, stored.ProcessedAt)
	assert.Empty(t, f.transactions(t, order.ID))
}

func TestExecuteRecurringOrderActivatesSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	interval := subscriptiondomain.IntervalMonth
	order := f.order(t, 2000, &interval)
	token := "tok_visa"
	card := f.method(t, "stripe", "creditcard", nil)
	card.Token = &token

	f.card.EXPECT().
		Charge(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, db *gorm.DB, req paymentdomain.ChargeRequest) (*paymentdomain.Charge, error) {
			assert.Equal(t, int64(2000), req.Amount)
			assert.Equal(t, "USD", req.Currency)
			return &paymentdomain.Charge{Settled: true, ProcessorFee: 88, Reference: "ch_1"}, nil
		})

	require.NoError(t, f.svc.ExecuteOrder(ctx, f.user, order, card))
	assert.Equal(t, orderdomain.StatusActive, order.Status)
	require.NotNil(t, order.SubscriptionID)

	var sub subscriptiondomain.Subscription
	require.NoError(t, f.db.Where("id = ?", *order.SubscriptionID).Take(&sub).Error)
	assert.True(t, sub.IsActive)
	assert.Equal(t, int64(2000), sub.Amount)
	require.NotNil(t, sub.NextChargeDate)
	assert.True(t, sub.NextChargeDate.Equal(time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)))

	items := f.transactions(t, order.ID)
	require.Len(t, items, 2)
	for _, item := range items {
		if item.Type == transactiondomain.TypeCredit {
			assert.Equal(t, int64(88), item.PaymentProcessorFeeInHostCurrency)
			assert.Equal(t, int64(2000-100-100-88), item.NetAmountInCollectiveCurrency)
			assert.Equal(t, "ch_1", item.Data["chargeId"])
		}
	}
}

func TestExecuteOrderGatewayErrorIsReturned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, 1000, nil)
	card := f.method(t, "stripe", "creditcard", nil)

	f.card.EXPECT().
		Charge(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &paymentdomain.GatewayError{Message: "Your card requires authentication", Account: "stripe", Response: map[string]any{"id": "pi_1"}})

	err := f.svc.ExecuteOrder(ctx, f.user, order, card)
	gwErr, ok := paymentdomain.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, "Your card requires authentication", gwErr.Message)

	events, err := paymentrepo.Provide().ListEventsByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, paymentdomain.EventTypeChargeFailed, events[0].EventType)
	assert.Empty(t, f.transactions(t, order.ID))
}

func TestExecuteOrderPrepaidBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prepaid := f.method(t, "opencollective", "prepaid", nil)
	balance := int64(1500)
	prepaid.InitialBalance = &balance
	require.NoError(t, f.db.Save(prepaid).Error)

	first := f.order(t, 1000, nil)
	require.NoError(t, f.svc.ExecuteOrder(ctx, f.user, first, prepaid))
	assert.Equal(t, orderdomain.StatusPaid, first.Status)

	second := f.order(t, 1000, nil)
	err := f.svc.ExecuteOrder(ctx, f.user, second, prepaid)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestRefundTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, 1000, nil)
	manual := f.method(t, "opencollective", "manual", map[string]any{"paid": true})
	require.NoError(t, f.svc.ExecuteOrder(ctx, f.user, order, manual))

	var credit transactiondomain.Transaction
	for _, item := range f.transactions(t, order.ID) {
		if item.Type == transactiondomain.TypeCredit {
			credit = item
		}
	}

	refund, err := f.svc.RefundTransaction(ctx, &credit, f.user)
	require.NoError(t, err)
	assert.True(t, refund.IsRefund)
	assert.Equal(t, f.payer.ID, refund.CollectiveID)
	assert.Equal(t, int64(1000), refund.Amount)

	original, err := transactionrepo.Provide().FindByID(ctx, f.db, credit.ID)
	require.NoError(t, err)
	require.NotNil(t, original.RefundTransactionID)
	assert.Equal(t, refund.ID, *original.RefundTransactionID)
	assert.Len(t, f.transactions(t, order.ID), 4)

	_, err = f.svc.RefundTransaction(ctx, original, f.user)
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
}

func TestProcessOrderChargesSubscriptionAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	interval := subscriptiondomain.IntervalMonth
	order := f.order(t, 500, &interval)
	card := f.method(t, "stripe", "creditcard", nil)

	f.card.EXPECT().
		Charge(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&paymentdomain.Charge{Settled: true, Reference: "ch_1"}, nil)
	require.NoError(t, f.svc.ExecuteOrder(ctx, f.user, order, card))

	f.card.EXPECT().
		Charge(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, db *gorm.DB, req paymentdomain.ChargeRequest) (*paymentdomain.Charge, error) {
			assert.Equal(t, int64(500), req.Amount)
			return &paymentdomain.Charge{Settled: true, Reference: "ch_2"}, nil
		})
	credit, err := f.svc.ProcessOrder(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, transactiondomain.TypeCredit, credit.Type)
	assert.Len(t, f.transactions(t, order.ID), 4)
}

func TestSetupMethodPassesPayerEmail(t *testing.T) {
	f := newFixture(t)
	token := "tok_visa"
	card := &paymentmethoddomain.PaymentMethod{Service: "stripe", Type: "creditcard", Token: &token, Currency: "USD"}

	f.card.EXPECT().
		Setup(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req paymentdomain.SetupRequest) error {
			assert.Equal(t, "xdamman@test.dev", req.Email)
			customer := "cus_1"
			req.Method.CustomerID = &customer
			return nil
		})

	require.NoError(t, f.svc.SetupMethod(context.Background(), f.user, card))
	require.NotNil(t, card.CustomerID)
	assert.Equal(t, "cus_1", *card.CustomerID)
}

func TestSetupMethodReturnsGatewayRefusal(t *testing.T) {
	f := newFixture(t)
	token := "tok_bad"
	card := &paymentmethoddomain.PaymentMethod{Service: "stripe", Type: "creditcard", Token: &token, Currency: "USD"}

	f.card.EXPECT().
		Setup(gomock.Any(), gomock.Any()).
		Return(&paymentdomain.GatewayError{Message: "Your card was declined.", Account: "stripe"})

	err := f.svc.SetupMethod(context.Background(), f.user, card)
	gwErr, ok := paymentdomain.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, "Your card was declined.", gwErr.Message)
}

func TestSetupMethodUnknownProcessor(t *testing.T) {
	f := newFixture(t)
	method := &paymentmethoddomain.PaymentMethod{Service: "paypal", Type: "payment", Currency: "USD"}

	err := f.svc.SetupMethod(context.Background(), f.user, method)
	assert.ErrorIs(t, err, paymentdomain.ErrProcessorNotFound)
}
