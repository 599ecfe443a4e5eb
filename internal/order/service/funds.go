package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	"github.com/smallbiznis/patronage/internal/apperror"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/internal/money"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// AddFundsToCollective records money a host received for one of its
// collectives outside the platform.
func (s *Service) AddFundsToCollective(ctx context.Context, user *authdomain.User, req orderdomain.AddFundsRequest) (*orderdomain.Order, error) {
	if user == nil {
		return nil, apperror.Unauthorized("You need to be logged in to add fund to collective")
	}
	if req.TotalAmount < 0 {
		return nil, apperror.Validation("Total amount cannot be a negative value")
	}
	collective, err := s.collectives.GetByID(ctx, req.CollectiveID)
	if err != nil {
		return nil, err
	}
	if req.FromCollective.HasID() && *req.FromCollective.ID == collective.ID {
		return nil, apperror.Validation("Orders cannot be created for a collective by that same collective.")
	}

	hostID, err := s.collectives.HostCollectiveID(ctx, collective)
	if err != nil {
		return nil, err
	}
	hostAdmin, err := s.isAdmin(ctx, user, hostID)
	if err != nil {
		return nil, err
	}
	root, err := s.isRoot(ctx, user)
	if err != nil {
		return nil, err
	}
	if !hostAdmin && !root {
		return nil, apperror.Unauthorized("Only an site admin or collective host admin can add fund")
	}

	contributor, err := s.contributingUser(ctx, user, req.User, collective.Currency)
	if err != nil {
		return nil, err
	}
	fromCollective, err := s.fundingCollective(ctx, user, contributor, req.FromCollective, hostID, root, collective.Currency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Funds added to %s", collective.Name)
	}
	order := &orderdomain.Order{
		ID:               s.genID.Generate(),
		CreatedByUserID:  userIDOf(contributor),
		FromCollectiveID: fromCollective.ID,
		CollectiveID:     collective.ID,
		Quantity:         1,
		TotalAmount:      req.TotalAmount,
		Currency:         collective.Currency,
		Description:      description,
		Status:           orderdomain.StatusPending,
		Data:             datatypes.JSONMap{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.HostFeePercent != nil {
		order.SetData(orderdomain.DataHostFeePercent, *req.HostFeePercent)
	}
	if req.PlatformFeePercent != nil {
		order.SetData(orderdomain.DataPlatformFeePercent, *req.PlatformFeePercent)
	}

	source, err := s.resolveFunding(ctx, s.db, user, req.PaymentMethod, order.Currency, fromCollective.ID)
	if err != nil {
		return nil, err
	}
	if source.method.ID != 0 {
		order.PaymentMethodID = &source.method.ID
	}
	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		s.discardFresh(ctx, source)
		return nil, err
	}
	if err := s.payments.ExecuteOrder(ctx, user, order, source.method); err != nil {
		s.discardFresh(ctx, source)
		return nil, err
	}

	s.log.Info("funds added to collective",
		zap.String("order_id", order.ID.String()),
		zap.String("collective_id", collective.ID.String()),
		zap.Int64("total_amount", order.TotalAmount),
	)
	return s.reload(ctx, order)
}

// contributingUser resolves the person the funds come from: a guest found or
// created by email, or the logged in user.
func (s *Service) contributingUser(ctx context.Context, user *authdomain.User, guest *orderdomain.GuestUser, currency string) (*authdomain.User, error) {
	if guest == nil || strings.TrimSpace(guest.Email) == "" {
		return user, nil
	}
	existing, err := s.users.FindByEmail(ctx, guest.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.users.CreateUserWithCollective(ctx, authdomain.CreateUserRequest{
		Email:           guest.Email,
		FirstName:       guest.FirstName,
		LastName:        guest.LastName,
		Currency:        currency,
		CreatedByUserID: user.ID,
	})
}

// fundingCollective returns the payer of added funds. Funds may only come
// from a collective or event the user administers or hosts.
func (s *Service) fundingCollective(
	ctx context.Context,
	user, contributor *authdomain.User,
	ref *orderdomain.CollectiveRef,
	hostID *snowflake.ID,
	root bool,
	currency string,
) (*collectivedomain.Collective, error) {
	if !ref.HasID() {
		if ref == nil || strings.TrimSpace(ref.Name) == "" {
			return s.collectives.GetByID(ctx, contributor.CollectiveID)
		}
		return s.collectives.CreateOrganization(ctx, collectivedomain.CreateOrganizationInput{
			Name:              ref.Name,
			Website:           ref.Website,
			Currency:          currency,
			AdminCollectiveID: contributor.CollectiveID,
			CreatedByUserID:   user.ID,
		})
	}

	fromCollective, err := s.collectives.GetByID(ctx, *ref.ID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound(fmt.Sprintf("From collective id %s not found", ref.ID))
	}
	if err != nil {
		return nil, err
	}
	if fromCollective.Type != collectivedomain.TypeCollective && fromCollective.Type != collectivedomain.TypeEvent {
		return fromCollective, nil
	}
	if root {
		return fromCollective, nil
	}
	admin, err := s.isAdmin(ctx, user, &fromCollective.ID)
	if err != nil {
		return nil, err
	}
	if admin || sameID(fromCollective.HostCollectiveID, hostID) {
		return fromCollective, nil
	}
	fromHostAdmin, err := s.isAdmin(ctx, user, fromCollective.HostCollectiveID)
	if err != nil {
		return nil, err
	}
	if !fromHostAdmin {
		return nil, apperror.Unauthorized("You don't have the permission to add funds from collectives you don't own or host.")
	}
	return fromCollective, nil
}

// AddFundsToOrg gives an organization a prepaid balance backed by a host.
func (s *Service) AddFundsToOrg(ctx context.Context, user *authdomain.User, req orderdomain.AddFundsToOrgRequest) (*paymentmethoddomain.PaymentMethod, error) {
	root, err := s.isRoot(ctx, user)
	if err != nil {
		return nil, err
	}
	if !root {
		return nil, apperror.Unauthorized("Only site admins can perform this operation")
	}
	if req.TotalAmount <= 0 {
		return nil, apperror.Validation("Total amount must be positive")
	}
	org, err := s.collectives.GetByID(ctx, req.CollectiveID)
	if err != nil {
		return nil, err
	}
	host, err := s.collectives.GetByID(ctx, req.HostCollectiveID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	name := strings.TrimSpace(req.Description)
	if name == "" {
		name = "Host funds"
	}
	balance := req.TotalAmount
	expiry := now.AddDate(1, 0, 0)
	customerID := org.Slug
	method := &paymentmethoddomain.PaymentMethod{
		ID:              s.genID.Generate(),
		UUID:            uuid.NewString(),
		Name:            &name,
		Service:         paymentmethoddomain.ServiceOpenCollective,
		Type:            paymentmethoddomain.TypePrepaid,
		CustomerID:      &customerID,
		CollectiveID:    &org.ID,
		CreatedByUserID: userIDOf(user),
		Currency:        host.Currency,
		InitialBalance:  &balance,
		ExpiryDate:      &expiry,
		Saved:           true,
		Data:            datatypes.JSONMap{"HostCollectiveId": host.ID.String()},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.paymentMethods.Insert(ctx, s.db, method); err != nil {
		return nil, err
	}

	err = s.activitySvc.Record(ctx, nil, activitydomain.Entry{
		Type:         activitydomain.TypeAddedFundToOrg,
		CollectiveID: &org.ID,
		UserID:       userIDOf(user),
		Data: map[string]any{
			"paymentMethodId":  method.ID.String(),
			"hostCollectiveId": host.ID.String(),
			"totalAmount":      balance,
			"currency":         host.Currency,
			"formattedAmount":  money.Format(balance, host.Currency, 2),
		},
	})
	if err != nil {
		s.log.Warn("failed to record added funds activity",
			zap.String("payment_method_id", method.ID.String()),
			zap.Error(err),
		)
	}
	return method, nil
}

// RefundTransaction reverses a movement. Only host admins and site admins can.
func (s *Service) RefundTransaction(ctx context.Context, user *authdomain.User, transactionID snowflake.ID) (*transactiondomain.Transaction, error) {
	transaction, err := s.transactions.FindByID(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, apperror.NotFound("Transaction not found")
	}
	collective, err := s.collectives.GetByID(ctx, transaction.CollectiveID)
	if err != nil {
		return nil, err
	}

	hostID := &collective.ID
	if !collective.IsHostAccount {
		hostID, err = s.collectives.HostCollectiveID(ctx, collective)
		if err != nil {
			return nil, err
		}
	}
	admin, err := s.isAdmin(ctx, user, hostID)
	if err != nil {
		return nil, err
	}
	if !admin {
		root, err := s.isRoot(ctx, user)
		if err != nil {
			return nil, err
		}
		if !root {
			return nil, apperror.Unauthorized("Not a site admin or host collective admin")
		}
	}
	return s.payments.RefundTransaction(ctx, transaction, user)
}

func sameID(a, b *snowflake.ID) bool {
	return a != nil && b != nil && *a == *b
}
