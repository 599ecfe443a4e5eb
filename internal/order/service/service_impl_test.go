package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	activityservice "github.com/smallbiznis/patronage/internal/activity/service"
	"github.com/smallbiznis/patronage/internal/apperror"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/authorization"
	"github.com/smallbiznis/patronage/internal/clock"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	collectiverepo "github.com/smallbiznis/patronage/internal/collective/repository"
	collectiveservice "github.com/smallbiznis/patronage/internal/collective/service"
	"github.com/smallbiznis/patronage/internal/config"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	orderrepo "github.com/smallbiznis/patronage/internal/order/repository"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	paymentmethodrepo "github.com/smallbiznis/patronage/internal/paymentmethod/repository"
	"github.com/smallbiznis/patronage/internal/recaptcha"
	"github.com/smallbiznis/patronage/internal/spam"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/patronage/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/patronage/internal/subscription/service"
	taxservice "github.com/smallbiznis/patronage/internal/tax/service"
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

// fakePayments settles orders without a processor. err, when set, is
// returned by every charge and setupErr by every method setup.
type fakePayments struct {
	db       *gorm.DB
	clock    clock.Clock
	err      error
	setupErr error
	setups   int
	executed []*paymentmethoddomain.PaymentMethod
	refunded []snowflake.ID
}

func (p *fakePayments) SetupMethod(ctx context.Context, user *authdomain.User, method *paymentmethoddomain.PaymentMethod) error {
	p.setups++
	return p.setupErr
}

func (p *fakePayments) ExecuteOrder(ctx context.Context, user *authdomain.User, order *orderdomain.Order, method *paymentmethoddomain.PaymentMethod) error {
	p.executed = append(p.executed, method)
	if p.err != nil {
		return p.err
	}
	now := p.clock.Now().UTC()
	order.Status = orderdomain.StatusPaid
	if order.IsRecurring() {
		order.Status = orderdomain.StatusActive
	}
	order.ProcessedAt = &now
	return orderrepo.Provide().Update(ctx, p.db, order)
}

func (p *fakePayments) ProcessOrder(ctx context.Context, order *orderdomain.Order) (*transactiondomain.Transaction, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &transactiondomain.Transaction{OrderID: &order.ID}, nil
}

func (p *fakePayments) RefundTransaction(ctx context.Context, transaction *transactiondomain.Transaction, user *authdomain.User) (*transactiondomain.Transaction, error) {
	p.refunded = append(p.refunded, transaction.ID)
	return &transactiondomain.Transaction{ID: transaction.ID + 1, IsRefund: true}, nil
}

type fakeUsers struct {
	authdomain.Service
	byEmail map[string]*authdomain.User
	created []authdomain.CreateUserRequest
	node    *snowflake.Node
}

func (u *fakeUsers) FindByEmail(ctx context.Context, email string) (*authdomain.User, error) {
	return u.byEmail[email], nil
}

func (u *fakeUsers) CreateUserWithCollective(ctx context.Context, req authdomain.CreateUserRequest) (*authdomain.User, error) {
	u.created = append(u.created, req)
	return &authdomain.User{ID: u.node.Generate(), CollectiveID: u.node.Generate(), Email: req.Email}, nil
}

type fakePledges struct{ err error }

func (p fakePledges) Verify(ctx context.Context, handle string) error { return p.err }

type fixture struct {
	svc       *Service
	db        *gorm.DB
	node      *snowflake.Node
	payments  *fakePayments
	users     *fakeUsers
	host      *collectivedomain.Collective
	recipient *collectivedomain.Collective
	payer     *collectivedomain.Collective
	user      *authdomain.User
	hostAdmin *authdomain.User
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
	)
	node := testutil.Node(t)
	fake := clock.NewFakeClock(testNow)

	collectives := collectiverepo.Provide()
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		DB:             db,
		Log:            zap.NewNop(),
		Config:         config.Config{},
		Enforcer:       enforcer,
		CollectiveRepo: collectives,
	})
	payments := &fakePayments{db: db, clock: fake}
	users := &fakeUsers{byEmail: map[string]*authdomain.User{}, node: node}

	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Config: config.Config{},
		Repo:   orderrepo.Provide(),
		Collectives: collectiveservice.NewService(collectiveservice.Params{
			DB:      db,
			Log:     zap.NewNop(),
			GenID:   node,
			Clock:   fake,
			Repo:    collectives,
			Authz:   authz,
			Scanner: spam.NewScanner(spam.Params{Log: zap.NewNop()}),
		}),
		CollectiveRepo: collectives,
		Tiers:          tierrepo.Provide(),
		Subscriptions: subscriptionservice.NewManager(subscriptionservice.Params{
			Log:   zap.NewNop(),
			GenID: node,
			Clock: fake,
			Repo:  subscriptionrepo.Provide(),
		}),
		PaymentMethods: paymentmethodrepo.Provide(),
		Transactions:   transactionrepo.Provide(),
		Payments:       payments,
		Users:          users,
		Authz:          authz,
		Tax:            taxservice.NewCalculator(),
		Pledges:        fakePledges{},
		Recaptcha:      recaptcha.NoOpVerifier{},
		ActivitySvc: activityservice.NewService(activityservice.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Clock: fake,
			Store: repository.ProvideStore[activitydomain.Activity](db),
		}),
	})

	f := &fixture{svc: svc.(*Service), db: db, node: node, payments: payments, users: users}
	f.host = f.collective(t, "brussels-host", collectivedomain.TypeOrganization, nil)
	f.host.IsHostAccount = true
	require.NoError(t, db.Save(f.host).Error)
	f.recipient = f.collective(t, "babel", collectivedomain.TypeCollective, &f.host.ID)
	f.payer = f.collective(t, "xdamman", collectivedomain.TypeUser, nil)
	f.user = &authdomain.User{ID: node.Generate(), CollectiveID: f.payer.ID, Email: "xdamman@test.dev"}

	adminProfile := f.collective(t, "piamancini", collectivedomain.TypeUser, nil)
	f.hostAdmin = &authdomain.User{ID: node.Generate(), CollectiveID: adminProfile.ID, Email: "pia@test.dev"}
	f.member(t, adminProfile.ID, f.host.ID, collectivedomain.RoleAdmin)
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

func (f *fixture) member(t *testing.T, memberID, collectiveID snowflake.ID, role collectivedomain.Role) {
	t.Helper()
	require.NoError(t, f.db.Create(&collectivedomain.Member{
		ID:                 f.node.Generate(),
		MemberCollectiveID: memberID,
		CollectiveID:       collectiveID,
		Role:               role,
		CreatedAt:          testNow,
		UpdatedAt:          testNow,
	}).Error)
}

func (f *fixture) tier(t *testing.T, kind string, amount int64, mutate func(*tierdomain.Tier)) *tierdomain.Tier {
	t.Helper()
	tier := &tierdomain.Tier{
		ID:           f.node.Generate(),
		CollectiveID: f.recipient.ID,
		Slug:         "backer",
		Name:         "Backer",
		Type:         kind,
		Amount:       &amount,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if mutate != nil {
		mutate(tier)
	}
	require.NoError(t, f.db.Create(tier).Error)
	return tier
}

func (f *fixture) storedOrder(t *testing.T, status orderdomain.Status, amount int64, interval *string) *orderdomain.Order {
	t.Helper()
	o := &orderdomain.Order{
		ID:               f.node.Generate(),
		CreatedByUserID:  &f.user.ID,
		FromCollectiveID: f.payer.ID,
		CollectiveID:     f.recipient.ID,
		Quantity:         1,
		TotalAmount:      amount,
		Currency:         "USD",
		Interval:         interval,
		Description:      "Financial contribution to babel",
		Status:           status,
		Data:             datatypes.JSONMap{},
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
	require.NoError(t, orderrepo.Provide().Insert(context.Background(), f.db, o))
	return o
}

// subscribed stores an ACTIVE monthly order backed by an active subscription.
func (f *fixture) subscribed(t *testing.T, amount int64) (*orderdomain.Order, *subscriptiondomain.Subscription) {
	t.Helper()
	ctx := context.Background()
	sub := &subscriptiondomain.Subscription{Amount: amount, Interval: "month", Currency: "USD", Quantity: 1}
	require.NoError(t, f.svc.subscriptions.Create(ctx, f.db, sub))
	require.NoError(t, f.svc.subscriptions.Activate(ctx, f.db, sub))

	o := f.storedOrder(t, orderdomain.StatusActive, amount, ptr("month"))
	o.SubscriptionID = &sub.ID
	require.NoError(t, orderrepo.Provide().Update(ctx, f.db, o))
	return o, sub
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *orderdomain.Order {
	t.Helper()
	o, err := orderrepo.Provide().FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func ptr[T any](v T) *T { return &v }

func card() *paymentmethoddomain.Input {
	return &paymentmethoddomain.Input{Token: "tok_123456781234567812345678", Service: "stripe", Type: "creditcard"}
}

func TestCreateOrderRequiresLogin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), nil, orderdomain.CreateOrderRequest{})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestCreateOrderRejectsMissingRecipient(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{TotalAmount: ptr(int64(1000))})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "No collective id/website/githubHandle provided", apperror.MessageOf(err))
}

func TestCreateOrderRejectsDisabledFeature(t *testing.T) {
	f := newFixture(t)
	f.user.Data = datatypes.JSONMap{"features": map[string]any{"ORDER": false}}
	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:  &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount: ptr(int64(1000)),
	})
	assert.ErrorIs(t, err, apperror.ErrFeatureNotAllowed)
}

func TestCreateOrderRejectsSameCollective(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:     &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		FromCollective: &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount:    ptr(int64(1000)),
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Orders cannot be created for a collective by that same collective.", apperror.MessageOf(err))
}

func TestCreateOrderOnBehalfNeedsRole(t *testing.T) {
	f := newFixture(t)
	other := f.collective(t, "acme", collectivedomain.TypeOrganization, nil)

	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:     &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		FromCollective: &orderdomain.CollectiveRef{ID: &other.ID},
		TotalAmount:    ptr(int64(1000)),
		PaymentMethod:  card(),
	})
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Contains(t, apperror.MessageOf(err), "on behalf of the acme organization")
}

func TestCreateOrderFromUnknownCollective(t *testing.T) {
	f := newFixture(t)
	missing := f.node.Generate()
	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:     &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		FromCollective: &orderdomain.CollectiveRef{ID: &missing},
		TotalAmount:    ptr(int64(1000)),
	})
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Contains(t, apperror.MessageOf(err), "From collective id")
}

func TestCreateOrderFixedTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tier := f.tier(t, "TIER", 1000, nil)

	_, err := f.svc.CreateOrder(ctx, f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TierID:        &tier.ID,
		TotalAmount:   ptr(int64(500)),
		PaymentMethod: card(),
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, apperror.MessageOf(err), "This tier uses a fixed amount. Order total must be")

	result, err := f.svc.CreateOrder(ctx, f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TierID:        &tier.ID,
		Quantity:      2,
		PaymentMethod: card(),
	})
	require.NoError(t, err)
	assert.Nil(t, result.PaymentFailure)
	assert.Equal(t, int64(2000), result.Order.TotalAmount)
	assert.Equal(t, orderdomain.StatusPaid, result.Order.Status)
	assert.Equal(t, "Financial contribution to babel (Backer)", result.Order.Description)
}

func TestCreateOrderBelowMinimum(t *testing.T) {
	f := newFixture(t)
	tier := f.tier(t, "TIER", 0, func(tier *tierdomain.Tier) {
		tier.Amount = nil
		tier.MinimumAmount = ptr(int64(500))
	})

	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TierID:        &tier.ID,
		TotalAmount:   ptr(int64(300)),
		PaymentMethod: card(),
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, apperror.MessageOf(err), "below minimum tier value")
}

func TestCreateOrderTierOfAnotherCollective(t *testing.T) {
	f := newFixture(t)
	tier := f.tier(t, "TIER", 1000, func(tier *tierdomain.Tier) { tier.CollectiveID = f.host.ID })

	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TierID:        &tier.ID,
		PaymentMethod: card(),
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, apperror.MessageOf(err), "doesn't belong to the given Collective")
}

func TestCreateOrderComputesVAT(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recipient.CountryISO = ptr("BE")
	f.recipient.Settings = datatypes.JSONMap{"VAT": map[string]any{"type": "OWN"}}
	require.NoError(t, f.db.Save(f.recipient).Error)
	tier := f.tier(t, "SERVICE", 1000, nil)

	_, err := f.svc.CreateOrder(ctx, f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TierID:        &tier.ID,
		PaymentMethod: card(),
	})
	require.Error(t, err, "buyer country is required")

	result, err := f.svc.CreateOrder(ctx, f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TierID:        &tier.ID,
		CountryISO:    "BE",
		PaymentMethod: card(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1210), result.Order.TotalAmount)
	require.NotNil(t, result.Order.TaxAmount)
	assert.Equal(t, int64(210), *result.Order.TaxAmount)
	assert.Equal(t, int64(1000), result.Order.NetAmount())
}

func TestCreateOrderRejectsUnexpectedTax(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount:   ptr(int64(1000)),
		TaxAmount:     ptr(int64(100)),
		PaymentMethod: card(),
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Contains(t, apperror.MessageOf(err), "should not have any tax attached")
}

func TestCreateOrderRequiresPaymentMethod(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:  &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount: ptr(int64(1000)),
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "This order requires a payment method", apperror.MessageOf(err))
}

func TestCreateFreeOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateOrder(ctx, f.user, orderdomain.CreateOrderRequest{
		Collective:  &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount: ptr(int64(0)),
	})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, result.Order.Status)
	assert.NotNil(t, result.Order.ProcessedAt)
	assert.Empty(t, f.payments.executed)

	recurring, err := f.svc.CreateOrder(ctx, f.user, orderdomain.CreateOrderRequest{
		Collective:  &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount: ptr(int64(0)),
		Interval:    "month",
	})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusActive, recurring.Order.Status)
}

func TestCreateOrderRejectsBadInterval(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:  &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount: ptr(int64(1000)),
		Interval:    "week",
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCreateOrderGatewayFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.payments.err = &paymentdomain.GatewayError{Message: "Your card was declined.", Account: "stripe"}

	result, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount:   ptr(int64(1000)),
		PaymentMethod: card(),
	})
	require.NoError(t, err)
	require.NotNil(t, result.PaymentFailure)
	assert.Equal(t, "Your card was declined.", result.PaymentFailure.Message)
	assert.Equal(t, orderdomain.StatusPending, result.Order.Status)
	require.NotNil(t, result.Order.PaymentMethodID)

	method, err := paymentmethodrepo.Provide().FindByID(context.Background(), f.db, *result.Order.PaymentMethodID)
	require.NoError(t, err)
	assert.NotNil(t, method)
}

func TestCreateOrderFailureMarksError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payments.err = errors.New("ledger unavailable")

	_, err := f.svc.CreateOrder(ctx, f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount:   ptr(int64(1000)),
		PaymentMethod: card(),
	})
	require.EqualError(t, err, "ledger unavailable")

	var stored orderdomain.Order
	require.NoError(t, f.db.Where("collective_id = ?", f.recipient.ID).Take(&stored).Error)
	assert.Equal(t, orderdomain.StatusError, stored.Status)
	assert.Contains(t, stored.Data, orderdomain.DataError)

	var live int64
	require.NoError(t, f.db.Model(&paymentmethoddomain.PaymentMethod{}).Count(&live).Error)
	assert.Zero(t, live)
}

func TestCreatePledgeForInactiveCollective(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recipient.IsActive = false
	require.NoError(t, f.db.Save(f.recipient).Error)

	result, err := f.svc.CreateOrder(ctx, f.user, orderdomain.CreateOrderRequest{
		Collective:  &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount: ptr(int64(1000)),
		Interval:    "month",
	})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, result.Order.Status)
	assert.Nil(t, result.Order.ProcessedAt)
	require.NotNil(t, result.Order.SubscriptionID)

	sub, err := f.svc.subscriptions.Get(ctx, f.db, *result.Order.SubscriptionID)
	require.NoError(t, err)
	assert.False(t, sub.IsActive)
	assert.Equal(t, int64(1000), sub.Amount)
}

func TestCreateOrderRejectsPledgeToUnpopularRepo(t *testing.T) {
	f := newFixture(t)
	f.svc.pledges = fakePledges{err: apperror.Validation("The repository octo/widgets doesn't have enough stars to be pledged.")}

	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:  &orderdomain.CollectiveRef{GithubHandle: "octo/widgets"},
		TotalAmount: ptr(int64(1000)),
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestCreateOrderTicketSoldOut(t *testing.T) {
	f := newFixture(t)
	tier := f.tier(t, "TICKET", 0, func(tier *tierdomain.Tier) {
		tier.Amount = nil
		tier.MaxQuantityPerUser = ptr(int64(2))
	})

	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:  &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TierID:      &tier.ID,
		Quantity:    3,
		TotalAmount: ptr(int64(0)),
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "You can buy up to 2 tickets per person", apperror.MessageOf(err))
}

func TestConfirmOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.storedOrder(t, orderdomain.StatusError, 1000, nil)

	_, err := f.svc.ConfirmOrder(ctx, f.hostAdmin, order.ID)
	require.ErrorIs(t, err, apperror.ErrUnauthorized)

	result, err := f.svc.ConfirmOrder(ctx, f.user, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, result.Order.Status)

	_, err = f.svc.ConfirmOrder(ctx, f.user, order.ID)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Order can only be confirmed if its status is ERROR or PENDING.", apperror.MessageOf(err))
}

func TestConfirmOrderRenewsSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, sub := f.subscribed(t, 1000)
	order.Status = orderdomain.StatusError
	order.ProcessedAt = &testNow
	require.NoError(t, orderrepo.Provide().Update(ctx, f.db, order))

	result, err := f.svc.ConfirmOrder(ctx, f.user, order.ID)
	require.NoError(t, err)
	assert.Nil(t, result.PaymentFailure)
	assert.Equal(t, orderdomain.StatusActive, f.reload(t, order.ID).Status)

	renewed, err := f.svc.subscriptions.Get(ctx, f.db, sub.ID)
	require.NoError(t, err)
	assert.Zero(t, renewed.ChargeRetryCount)
	require.NotNil(t, renewed.NextChargeDate)
}

func TestCompletePledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.storedOrder(t, orderdomain.StatusPending, 0, nil)

	_, err := f.svc.CompletePledge(ctx, f.user, orderdomain.CompletePledgeRequest{ID: order.ID, TotalAmount: 2000})
	require.ErrorIs(t, err, apperror.ErrValidation)

	result, err := f.svc.CompletePledge(ctx, f.user, orderdomain.CompletePledgeRequest{
		ID:            order.ID,
		TotalAmount:   2000,
		Interval:      "month",
		PaymentMethod: card(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), result.Order.TotalAmount)
	assert.Equal(t, orderdomain.StatusActive, result.Order.Status)

	_, err = f.svc.CompletePledge(ctx, f.user, orderdomain.CompletePledgeRequest{ID: order.ID, TotalAmount: 2000, PaymentMethod: card()})
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "This pledge has already been completed", apperror.MessageOf(err))
}

func TestCancelSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, sub := f.subscribed(t, 1000)

	_, err := f.svc.CancelSubscription(ctx, nil, order.ID)
	require.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = f.svc.CancelSubscription(ctx, f.hostAdmin, order.ID)
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "You don't have permission to cancel this subscription", apperror.MessageOf(err))

	cancelled, err := f.svc.CancelSubscription(ctx, f.user, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCancelled, cancelled.Status)

	stored, err := f.svc.subscriptions.Get(ctx, f.db, sub.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	var activities []activitydomain.Activity
	require.NoError(t, f.db.Where("type = ?", activitydomain.TypeSubscriptionCanceled).Find(&activities).Error)
	assert.Len(t, activities, 1)

	_, err = f.svc.CancelSubscription(ctx, f.user, order.ID)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Subscription already canceled", apperror.MessageOf(err))
}

func TestCancelSubscriptionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CancelSubscription(context.Background(), f.user, f.node.Generate())
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "Subscription not found", apperror.MessageOf(err))
}

func TestUpdateSubscriptionAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, sub := f.subscribed(t, 1000)

	_, err := f.svc.UpdateSubscription(ctx, f.user, orderdomain.UpdateSubscriptionRequest{ID: order.ID, Amount: ptr(int64(1000))})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Same amount", apperror.MessageOf(err))

	_, err = f.svc.UpdateSubscription(ctx, f.user, orderdomain.UpdateSubscriptionRequest{ID: order.ID, Amount: ptr(int64(1550))})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Invalid amount", apperror.MessageOf(err))

	result, err := f.svc.UpdateSubscription(ctx, f.user, orderdomain.UpdateSubscriptionRequest{ID: order.ID, Amount: ptr(int64(2500))})
	require.NoError(t, err)
	next := result.Order
	assert.NotEqual(t, order.ID, next.ID)
	assert.Equal(t, int64(2500), next.TotalAmount)
	assert.Equal(t, orderdomain.StatusActive, next.Status)
	require.NotNil(t, next.SubscriptionID)
	assert.NotEqual(t, sub.ID, *next.SubscriptionID)

	assert.Equal(t, orderdomain.StatusCancelled, f.reload(t, order.ID).Status)
	old, err := f.svc.subscriptions.Get(ctx, f.db, sub.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	var active int64
	require.NoError(t, f.db.Model(&orderdomain.Order{}).Where("status = ?", orderdomain.StatusActive).Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestUpdateSubscriptionPaymentMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.subscribed(t, 1000)

	_, err := f.svc.UpdateSubscription(ctx, f.user, orderdomain.UpdateSubscriptionRequest{
		ID:            order.ID,
		PaymentMethod: &paymentmethoddomain.Input{UUID: "00000000-0000-0000-0000-000000000000"},
	})
	require.ErrorIs(t, err, apperror.ErrNotFound)

	result, err := f.svc.UpdateSubscription(ctx, f.user, orderdomain.UpdateSubscriptionRequest{ID: order.ID, PaymentMethod: card()})
	require.NoError(t, err)
	require.NotNil(t, result.Order.PaymentMethodID)

	method, err := paymentmethodrepo.Provide().FindByID(ctx, f.db, *result.Order.PaymentMethodID)
	require.NoError(t, err)
	require.NotNil(t, method.CollectiveID)
	assert.Equal(t, f.payer.ID, *method.CollectiveID)
}

func TestUpdateInactiveSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.subscribed(t, 1000)
	_, err := f.svc.CancelSubscription(ctx, f.user, order.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateSubscription(ctx, f.user, orderdomain.UpdateSubscriptionRequest{ID: order.ID, Amount: ptr(int64(2000))})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Subscription must be active to be updated", apperror.MessageOf(err))
}

func TestMarkAsPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.storedOrder(t, orderdomain.StatusPending, 1000, nil)

	_, err := f.svc.MarkAsPaid(ctx, f.user, order.ID)
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "You must be logged in as an admin of the host of the collective", apperror.MessageOf(err))

	paid, err := f.svc.MarkAsPaid(ctx, f.hostAdmin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, paid.Status)
	require.Len(t, f.payments.executed, 1)
	assert.Equal(t, paymentmethoddomain.TypeManual, f.payments.executed[0].Type)
	assert.Equal(t, true, f.payments.executed[0].Data["paid"])

	_, err = f.svc.MarkAsPaid(ctx, f.hostAdmin, order.ID)
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "The order's status must be PENDING", apperror.MessageOf(err))
}

func TestMarkAsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.storedOrder(t, orderdomain.StatusPending, 1000, nil)

	expired, err := f.svc.MarkAsExpired(ctx, f.hostAdmin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusExpired, expired.Status)
	assert.Equal(t, orderdomain.StatusExpired, f.reload(t, order.ID).Status)
}

func TestAddFundsToCollective(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddFundsToCollective(ctx, f.user, orderdomain.AddFundsRequest{
		CollectiveID:  f.recipient.ID,
		TotalAmount:   5000,
		PaymentMethod: &paymentmethoddomain.Input{Service: "opencollective", Type: "manual"},
	})
	require.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = f.svc.AddFundsToCollective(ctx, f.hostAdmin, orderdomain.AddFundsRequest{CollectiveID: f.recipient.ID, TotalAmount: -1})
	require.ErrorIs(t, err, apperror.ErrValidation)

	order, err := f.svc.AddFundsToCollective(ctx, f.hostAdmin, orderdomain.AddFundsRequest{
		CollectiveID:   f.recipient.ID,
		FromCollective: &orderdomain.CollectiveRef{Name: "Acme Corp"},
		User:           &orderdomain.GuestUser{Email: "donor@acme.test", FirstName: "Ada"},
		TotalAmount:    5000,
		HostFeePercent: ptr(0.0),
		PaymentMethod:  &paymentmethoddomain.Input{Service: "opencollective", Type: "manual"},
	})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, order.Status)
	assert.Equal(t, "USD", order.Currency)
	pct, ok := order.FeePercent(orderdomain.DataHostFeePercent)
	assert.True(t, ok)
	assert.Zero(t, pct)
	require.Len(t, f.users.created, 1)
	assert.Equal(t, "donor@acme.test", f.users.created[0].Email)

	from, err := f.svc.collectives.GetByID(ctx, order.FromCollectiveID)
	require.NoError(t, err)
	assert.Equal(t, collectivedomain.TypeOrganization, from.Type)
}

func TestAddFundsFromForeignCollective(t *testing.T) {
	f := newFixture(t)
	otherHost := f.collective(t, "other-host", collectivedomain.TypeOrganization, nil)
	foreign := f.collective(t, "foreign", collectivedomain.TypeCollective, &otherHost.ID)

	_, err := f.svc.AddFundsToCollective(context.Background(), f.hostAdmin, orderdomain.AddFundsRequest{
		CollectiveID:   f.recipient.ID,
		FromCollective: &orderdomain.CollectiveRef{ID: &foreign.ID},
		TotalAmount:    5000,
		PaymentMethod:  &paymentmethoddomain.Input{Service: "opencollective", Type: "manual"},
	})
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "You don't have the permission to add funds from collectives you don't own or host.", apperror.MessageOf(err))
}

func TestAddFundsToOrgRequiresRoot(t *testing.T) {
	f := newFixture(t)
	org := f.collective(t, "acme", collectivedomain.TypeOrganization, nil)

	_, err := f.svc.AddFundsToOrg(context.Background(), f.hostAdmin, orderdomain.AddFundsToOrgRequest{
		CollectiveID:     org.ID,
		HostCollectiveID: f.host.ID,
		TotalAmount:      10000,
	})
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "Only site admins can perform this operation", apperror.MessageOf(err))
}

func TestRefundTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	credit := &transactiondomain.Transaction{
		ID:               f.node.Generate(),
		Type:             transactiondomain.TypeCredit,
		TransactionGroup: "group-1",
		Amount:           1000,
		Currency:         "USD",
		CollectiveID:     f.recipient.ID,
		FromCollectiveID: f.payer.ID,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
	require.NoError(t, f.db.Create(credit).Error)

	_, err := f.svc.RefundTransaction(ctx, f.user, f.node.Generate())
	require.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.RefundTransaction(ctx, f.user, credit.ID)
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "Not a site admin or host collective admin", apperror.MessageOf(err))

	refund, err := f.svc.RefundTransaction(ctx, f.hostAdmin, credit.ID)
	require.NoError(t, err)
	assert.True(t, refund.IsRefund)
	assert.Equal(t, []snowflake.ID{credit.ID}, f.payments.refunded)
}

// failingUpdates breaks order updates while inserts and reads still work.
type failingUpdates struct {
	orderdomain.Repository
	err error
}

func (r failingUpdates) Update(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return r.err
}

func (f *fixture) savedMethod(t *testing.T, ownerID snowflake.ID) *paymentmethoddomain.PaymentMethod {
	t.Helper()
	token := "tok_saved"
	customer := "cus_saved"
	pm := &paymentmethoddomain.PaymentMethod{
		ID:           f.node.Generate(),
		UUID:         uuid.NewString(),
		Service:      paymentmethoddomain.ServiceStripe,
		Type:         paymentmethoddomain.TypeCreditCard,
		Token:        &token,
		CustomerID:   &customer,
		CollectiveID: &ownerID,
		Currency:     "USD",
		Saved:        true,
		Data:         datatypes.JSONMap{},
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	require.NoError(t, paymentmethodrepo.Provide().Insert(context.Background(), f.db, pm))
	return pm
}

func TestCreateOrderWithSavedPaymentMethodOfPayer(t *testing.T) {
	f := newFixture(t)
	pm := f.savedMethod(t, f.payer.ID)

	result, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount:   ptr(int64(1000)),
		PaymentMethod: &paymentmethoddomain.Input{UUID: pm.UUID},
	})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, result.Order.Status)
	require.Len(t, f.payments.executed, 1)
	assert.Equal(t, pm.ID, f.payments.executed[0].ID)
	assert.Zero(t, f.payments.setups)
}

func TestCreateOrderRejectsPaymentMethodOfAnotherCollective(t *testing.T) {
	f := newFixture(t)
	owner := f.collective(t, "pia", collectivedomain.TypeUser, nil)
	pm := f.savedMethod(t, owner.ID)

	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount:   ptr(int64(1000)),
		PaymentMethod: &paymentmethoddomain.Input{UUID: pm.UUID},
	})
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "You don't have sufficient permissions to access this payment method", apperror.MessageOf(err))
	assert.Empty(t, f.payments.executed)

	var stored orderdomain.Order
	require.NoError(t, f.db.Where("collective_id = ?", f.recipient.ID).Take(&stored).Error)
	assert.Equal(t, orderdomain.StatusError, stored.Status)
	assert.Nil(t, stored.PaymentMethodID)
}

func TestCreateOrderCardSetupFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.payments.setupErr = &paymentdomain.GatewayError{Message: "Your card was declined.", Account: "stripe"}

	result, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount:   ptr(int64(1000)),
		PaymentMethod: card(),
	})
	require.NoError(t, err)
	require.NotNil(t, result.PaymentFailure)
	assert.Equal(t, "Your card was declined.", result.PaymentFailure.Message)
	assert.Equal(t, orderdomain.StatusPending, result.Order.Status)
	assert.Equal(t, 1, f.payments.setups)
	assert.Empty(t, f.payments.executed)

	var stored int64
	require.NoError(t, f.db.Model(&paymentmethoddomain.PaymentMethod{}).Count(&stored).Error)
	assert.Zero(t, stored)
}

func TestCreateOrderAttachFailureDiscardsNewMethod(t *testing.T) {
	f := newFixture(t)
	f.svc.repo = failingUpdates{Repository: f.svc.repo, err: errors.New("database is locked")}

	_, err := f.svc.CreateOrder(context.Background(), f.user, orderdomain.CreateOrderRequest{
		Collective:    &orderdomain.CollectiveRef{ID: &f.recipient.ID},
		TotalAmount:   ptr(int64(1000)),
		PaymentMethod: card(),
	})
	require.EqualError(t, err, "database is locked")
	assert.Equal(t, 1, f.payments.setups)
	assert.Empty(t, f.payments.executed)

	var stored int64
	require.NoError(t, f.db.Model(&paymentmethoddomain.PaymentMethod{}).Count(&stored).Error)
	assert.Zero(t, stored)
}

func TestUpdateSubscriptionRejectsPaymentMethodOfAnotherCollective(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.subscribed(t, 1000)
	owner := f.collective(t, "pia", collectivedomain.TypeUser, nil)
	pm := f.savedMethod(t, owner.ID)

	_, err := f.svc.UpdateSubscription(ctx, f.user, orderdomain.UpdateSubscriptionRequest{
		ID:            order.ID,
		PaymentMethod: &paymentmethoddomain.Input{UUID: pm.UUID},
	})
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Nil(t, f.reload(t, order.ID).PaymentMethodID)

	own := f.savedMethod(t, f.payer.ID)
	result, err := f.svc.UpdateSubscription(ctx, f.user, orderdomain.UpdateSubscriptionRequest{
		ID:            order.ID,
		PaymentMethod: &paymentmethoddomain.Input{UUID: own.UUID},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Order.PaymentMethodID)
	assert.Equal(t, own.ID, *result.Order.PaymentMethodID)
}

func TestUpdateSubscriptionCardSetupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.subscribed(t, 1000)
	f.payments.setupErr = &paymentdomain.GatewayError{Message: "Your card was declined.", Account: "stripe"}

	result, err := f.svc.UpdateSubscription(ctx, f.user, orderdomain.UpdateSubscriptionRequest{ID: order.ID, PaymentMethod: card()})
	require.NoError(t, err)
	require.NotNil(t, result.PaymentFailure)
	assert.Equal(t, "Your card was declined.", result.PaymentFailure.Message)
	assert.Equal(t, order.ID, result.Order.ID)
	assert.Nil(t, f.reload(t, order.ID).PaymentMethodID)

	var stored int64
	require.NoError(t, f.db.Model(&paymentmethoddomain.PaymentMethod{}).Count(&stored).Error)
	assert.Zero(t, stored)
}

func TestOrderIdentityKeysLoggedInUserByAccount(t *testing.T) {
	user := &authdomain.User{ID: 1, CollectiveID: 42, Email: "xdamman@test.dev"}

	id := orderIdentity(user, orderdomain.CreateOrderRequest{RemoteIP: "1.2.3.4"})
	assert.Equal(t, "42", id.FromCollectiveID)
	assert.Empty(t, id.Email)

	from := snowflake.ID(7)
	recipient := snowflake.ID(9)
	id = orderIdentity(user, orderdomain.CreateOrderRequest{
		FromCollective: &orderdomain.CollectiveRef{ID: &from},
		Collective:     &orderdomain.CollectiveRef{ID: &recipient},
	})
	assert.Equal(t, "7", id.FromCollectiveID)
	assert.Equal(t, "9", id.CollectiveID)
	assert.Empty(t, id.Email)
}
