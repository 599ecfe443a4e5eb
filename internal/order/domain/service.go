package domain

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
)

var (
	ErrOrderNotFound   = errors.New("order_not_found")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrInvalidInterval = errors.New("invalid_interval")
)

// CollectiveRef points at a collective by id, or describes one to find or
// create by website, GitHub handle or name.
type CollectiveRef struct {
	ID           *snowflake.ID `json:"id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Website      string        `json:"website,omitempty"`
	GithubHandle string        `json:"githubHandle,omitempty"`
}

func (r *CollectiveRef) HasID() bool {
	return r != nil && r.ID != nil && *r.ID != 0
}

func (r *CollectiveRef) IsEmpty() bool {
	return r == nil || (!r.HasID() && strings.TrimSpace(r.Website) == "" && strings.TrimSpace(r.GithubHandle) == "")
}

type CreateOrderRequest struct {
	Collective         *CollectiveRef             `json:"collective"`
	FromCollective     *CollectiveRef             `json:"fromCollective,omitempty"`
	TierID             *snowflake.ID              `json:"tierId,omitempty"`
	Quantity           int64                      `json:"quantity"`
	TotalAmount        *int64                     `json:"totalAmount"`
	TaxAmount          *int64                     `json:"taxAmount,omitempty"`
	Currency           string                     `json:"currency,omitempty"`
	Interval           string                     `json:"interval,omitempty"`
	Description        string                     `json:"description,omitempty"`
	PublicMessage      string                     `json:"publicMessage,omitempty"`
	PrivateMessage     string                     `json:"privateMessage,omitempty"`
	PaymentMethod      *paymentmethoddomain.Input `json:"paymentMethod,omitempty"`
	HostFeePercent     *float64                   `json:"hostFeePercent,omitempty"`
	PlatformFeePercent *float64                   `json:"platformFeePercent,omitempty"`
	CountryISO         string                     `json:"countryISO,omitempty"`
	TaxIDNumber        string                     `json:"taxIDNumber,omitempty"`
	RecaptchaToken     string                     `json:"recaptchaToken,omitempty"`
	CustomData         map[string]any             `json:"customData,omitempty"`

	// RemoteIP is filled from the request, never from the body.
	RemoteIP string `json:"-"`
}

type CompletePledgeRequest struct {
	ID            snowflake.ID               `json:"-"`
	TotalAmount   int64                      `json:"totalAmount"`
	Interval      string                     `json:"interval,omitempty"`
	Currency      string                     `json:"currency,omitempty"`
	PaymentMethod *paymentmethoddomain.Input `json:"paymentMethod,omitempty"`
}

type UpdateSubscriptionRequest struct {
	ID            snowflake.ID               `json:"-"`
	Amount        *int64                     `json:"amount,omitempty"`
	PaymentMethod *paymentmethoddomain.Input `json:"paymentMethod,omitempty"`
}

// GuestUser identifies the person funds are added for, created when unknown.
type GuestUser struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type AddFundsRequest struct {
	CollectiveID       snowflake.ID               `json:"-"`
	FromCollective     *CollectiveRef             `json:"fromCollective"`
	User               *GuestUser                 `json:"user,omitempty"`
	TotalAmount        int64                      `json:"totalAmount"`
	Description        string                     `json:"description,omitempty"`
	HostFeePercent     *float64                   `json:"hostFeePercent,omitempty"`
	PlatformFeePercent *float64                   `json:"platformFeePercent,omitempty"`
	PaymentMethod      *paymentmethoddomain.Input `json:"paymentMethod"`
}

type AddFundsToOrgRequest struct {
	CollectiveID     snowflake.ID `json:"-"`
	HostCollectiveID snowflake.ID `json:"hostCollectiveId"`
	TotalAmount      int64        `json:"totalAmount"`
	Description      string       `json:"description,omitempty"`
}

// PaymentFailure is the gateway detail returned to clients when a charge
// fails in a way the contributor can fix.
type PaymentFailure struct {
	Message  string         `json:"message"`
	Account  string         `json:"account,omitempty"`
	Response map[string]any `json:"response,omitempty"`
}

// Result is an order plus the gateway failure, if any, that left it pending.
type Result struct {
	Order          *Order          `json:"order"`
	PaymentFailure *PaymentFailure `json:"paymentFailure,omitempty"`
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Order, error)
	CreateOrder(ctx context.Context, user *authdomain.User, req CreateOrderRequest) (*Result, error)
	ConfirmOrder(ctx context.Context, user *authdomain.User, id snowflake.ID) (*Result, error)
	CompletePledge(ctx context.Context, user *authdomain.User, req CompletePledgeRequest) (*Result, error)
	CancelSubscription(ctx context.Context, user *authdomain.User, id snowflake.ID) (*Order, error)
	UpdateSubscription(ctx context.Context, user *authdomain.User, req UpdateSubscriptionRequest) (*Result, error)
	MarkAsPaid(ctx context.Context, user *authdomain.User, id snowflake.ID) (*Order, error)
	MarkAsExpired(ctx context.Context, user *authdomain.User, id snowflake.ID) (*Order, error)
	AddFundsToCollective(ctx context.Context, user *authdomain.User, req AddFundsRequest) (*Order, error)
	AddFundsToOrg(ctx context.Context, user *authdomain.User, req AddFundsToOrgRequest) (*paymentmethoddomain.PaymentMethod, error)
	RefundTransaction(ctx context.Context, user *authdomain.User, transactionID snowflake.ID) (*transactiondomain.Transaction, error)
}
