package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	activitydomain "github.com/smallbiznis/patronage/internal/activity/domain"
	"github.com/smallbiznis/patronage/internal/apperror"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/authorization"
	collectivedomain "github.com/smallbiznis/patronage/internal/collective/domain"
	"github.com/smallbiznis/patronage/internal/money"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	"github.com/smallbiznis/patronage/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/patronage/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/patronage/internal/tax/domain"
	tierdomain "github.com/smallbiznis/patronage/internal/tier/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// taxContext is the VAT derived for one order.
type taxContext struct {
	originCountry string
	percentage    decimal.Decimal
	vatNumberFrom string
}

func (t taxContext) applies() bool { return t.originCountry != "" }

func (s *Service) CreateOrder(ctx context.Context, user *authdomain.User, req orderdomain.CreateOrderRequest) (*orderdomain.Result, error) {
	if user == nil {
		return nil, apperror.Unauthorized("You need to be logged in to create an order")
	}
	if err := s.limiter.Check(ctx, orderIdentity(user, req)); err != nil {
		return nil, err
	}
	recaptchaResponse := s.checkRecaptcha(ctx, req)
	if err := s.checkFeature(user); err != nil {
		return nil, err
	}

	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	taxAmount := int64(0)
	if req.TaxAmount != nil {
		taxAmount = *req.TaxAmount
	}
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval != "" && interval != subscriptiondomain.IntervalMonth && interval != subscriptiondomain.IntervalYear {
		return nil, apperror.Validationf("Invalid interval: %s", req.Interval)
	}

	collective, err := s.resolveRecipient(ctx, user, req)
	if err != nil {
		return nil, err
	}
	if req.FromCollective.HasID() && *req.FromCollective.ID == collective.ID {
		return nil, apperror.Validation("Orders cannot be created for a collective by that same collective.")
	}
	if req.HostFeePercent != nil {
		hostID, err := s.collectives.HostCollectiveID(ctx, collective)
		if err != nil {
			return nil, err
		}
		ok, err := s.isAdmin(ctx, user, hostID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.Unauthorized("Only an admin of the host can change the hostFeePercent")
		}
	}

	tier, err := s.resolveTier(ctx, req, collective)
	if err != nil {
		return nil, err
	}

	fromCollective, err := s.resolvePayer(ctx, user, req, collective)
	if err != nil {
		return nil, err
	}

	currency := collective.Currency
	if tier != nil && tier.Currency != nil && *tier.Currency != "" {
		currency = *tier.Currency
	}
	if req.Currency != "" && !strings.EqualFold(req.Currency, currency) {
		return nil, apperror.Validationf("Invalid currency. Expected %s.", currency)
	}

	if err := s.checkInventory(ctx, tier, req.Quantity); err != nil {
		return nil, err
	}

	taxes, err := s.computeTax(ctx, req, collective, tier)
	if err != nil {
		return nil, err
	}
	if taxAmount < 0 {
		return nil, apperror.Validation("Tax amount cannot be negative")
	}
	if taxes.percentage.IsZero() && taxAmount != 0 {
		return nil, apperror.Validationf("This order should not have any tax attached. Received tax amount %s", money.Format(taxAmount, currency, 0))
	}

	totalAmount, taxAmount, err := reconcileAmounts(req, tier, taxes.percentage, taxAmount, currency)
	if err != nil {
		return nil, err
	}

	paymentRequired := (totalAmount > 0 || (tier != nil && tier.Amount != nil && *tier.Amount > 0)) && collective.IsActive
	if paymentRequired && !req.PaymentMethod.Usable() {
		return nil, apperror.Validation("This order requires a payment method")
	}

	order := s.buildOrder(user, req, collective, fromCollective, tier, currency, totalAmount, taxAmount, interval, taxes, recaptchaResponse, paymentRequired)
	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}
	s.obsMetrics.RecordOrderCreated(ctx, string(order.Status), order.Currency, order.TotalAmount)
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("collective_id", collective.ID.String()),
		zap.String("from_collective_id", fromCollective.ID.String()),
		zap.Int64("total_amount", order.TotalAmount),
		zap.Bool("payment_required", paymentRequired),
	)

	result, err := s.fulfil(ctx, user, req, order, collective, fromCollective, tier, paymentRequired)
	if err != nil {
		return s.recordFailure(ctx, order, err)
	}
	return result, nil
}

// fulfil runs whatever follows a stored order: payment, pledge subscription
// or free ticket.
func (s *Service) fulfil(
	ctx context.Context,
	user *authdomain.User,
	req orderdomain.CreateOrderRequest,
	order *orderdomain.Order,
	collective, fromCollective *collectivedomain.Collective,
	tier *tierdomain.Tier,
	paymentRequired bool,
) (*orderdomain.Result, error) {
	switch {
	case paymentRequired:
		source, err := s.resolveFunding(ctx, s.db, user, req.PaymentMethod, order.Currency, order.FromCollectiveID)
		if err != nil {
			return nil, err
		}
		if source.method.ID != 0 {
			order.PaymentMethodID = &source.method.ID
			if err := s.repo.Update(ctx, s.db, order); err != nil {
				s.discardFresh(ctx, source)
				return nil, err
			}
		}
		if err := s.payments.ExecuteOrder(ctx, user, order, source.method); err != nil {
			if _, ok := paymentdomain.AsGatewayError(err); !ok {
				s.discardFresh(ctx, source)
			}
			return nil, err
		}

	case order.IsRecurring() && collective.Type == collectivedomain.TypeCollective:
		sub := &subscriptiondomain.Subscription{
			Amount:   order.TotalAmount,
			Interval: *order.Interval,
			Currency: order.Currency,
			Quantity: int(order.Quantity),
		}
		if err := s.subscriptions.Create(ctx, s.db, sub); err != nil {
			return nil, err
		}
		order.SubscriptionID = &sub.ID
		if err := s.repo.Update(ctx, s.db, order); err != nil {
			return nil, err
		}

	case collective.Type == collectivedomain.TypeEvent:
		if err := s.confirmTicket(ctx, user, order, fromCollective, tier); err != nil {
			return nil, err
		}
	}

	fresh, err := s.reload(ctx, order)
	if err != nil {
		return nil, err
	}
	return &orderdomain.Result{Order: fresh}, nil
}

// recordFailure stores the failure on an unprocessed order. Gateway failures
// leave it PENDING for a retry and are returned as part of the result.
func (s *Service) recordFailure(ctx context.Context, order *orderdomain.Order, cause error) (*orderdomain.Result, error) {
	gwErr, isGateway := paymentdomain.AsGatewayError(cause)

	if current, err := s.repo.FindByID(ctx, s.db, order.ID); err == nil && current != nil {
		order = current
	}
	if order.ProcessedAt == nil {
		order.Status = orderdomain.StatusError
		if isGateway {
			order.Status = orderdomain.StatusPending
		}
		order.SetData(orderdomain.DataError, map[string]any{"message": cause.Error()})
		order.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, s.db, order); err != nil {
			s.log.Error("failed to record order failure", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}

	if !isGateway {
		return nil, cause
	}
	return &orderdomain.Result{Order: order, PaymentFailure: paymentFailure(gwErr)}, nil
}

// orderIdentity keys a logged in user by account, the payer defaulting to the
// user's own profile. Email and IP limits are left to guest orders.
func orderIdentity(user *authdomain.User, req orderdomain.CreateOrderRequest) ratelimit.OrderIdentity {
	id := ratelimit.OrderIdentity{IP: req.RemoteIP}
	switch {
	case req.FromCollective.HasID():
		id.FromCollectiveID = req.FromCollective.ID.String()
	case user != nil && user.CollectiveID != 0:
		id.FromCollectiveID = user.CollectiveID.String()
	}
	if req.Collective.HasID() {
		id.CollectiveID = req.Collective.ID.String()
	}
	return id
}

// checkRecaptcha verifies the token when one is sent. The response is kept on
// the order; it does not block it.
func (s *Service) checkRecaptcha(ctx context.Context, req orderdomain.CreateOrderRequest) map[string]any {
	token := strings.TrimSpace(req.RecaptchaToken)
	if token == "" || s.recaptcha == nil {
		return nil
	}
	response, err := s.recaptcha.Verify(ctx, token, req.RemoteIP)
	if err != nil {
		s.log.Warn("recaptcha verification failed", zap.Error(err))
		return nil
	}
	return response
}

func (s *Service) resolveRecipient(ctx context.Context, user *authdomain.User, req orderdomain.CreateOrderRequest) (*collectivedomain.Collective, error) {
	ref := req.Collective
	if ref.IsEmpty() {
		return nil, apperror.Validation("No collective id/website/githubHandle provided")
	}

	handle := strings.TrimSpace(ref.GithubHandle)
	if handle != "" {
		if err := s.pledges.Verify(ctx, handle); err != nil {
			return nil, err
		}
	}

	if req.PlatformFeePercent != nil {
		root, err := s.isRoot(ctx, user)
		if err != nil {
			return nil, err
		}
		if !root {
			return nil, apperror.Unauthorized("Only a root can change the platformFeePercent")
		}
	}

	input := collectivedomain.RecipientInput{
		Name:            ref.Name,
		Website:         ref.Website,
		GithubHandle:    handle,
		CreatedByUserID: user.ID,
	}
	switch {
	case ref.HasID():
		return s.collectives.GetByID(ctx, *ref.ID)
	case strings.TrimSpace(ref.Website) != "":
		return s.collectives.FindOrCreateByWebsite(ctx, input)
	default:
		return s.collectives.FindOrCreatePledged(ctx, input)
	}
}

func (s *Service) resolveTier(ctx context.Context, req orderdomain.CreateOrderRequest, collective *collectivedomain.Collective) (*tierdomain.Tier, error) {
	if req.TierID == nil || *req.TierID == 0 {
		return nil, nil
	}
	tier, err := s.tiers.FindByID(ctx, s.db, *req.TierID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, apperror.NotFound(fmt.Sprintf("No tier found with tier id: %s for collective slug %s", req.TierID, collective.Slug))
	}
	if tier.CollectiveID != collective.ID {
		return nil, apperror.Validationf("This tier (#%s) doesn't belong to the given Collective (%s #%s)", tier.ID, collective.Name, collective.ID)
	}
	return tier, nil
}

// resolvePayer returns the collective paying the order. Acting for another
// collective needs a role on it, or admin rights on the recipient's host.
func (s *Service) resolvePayer(ctx context.Context, user *authdomain.User, req orderdomain.CreateOrderRequest, collective *collectivedomain.Collective) (*collectivedomain.Collective, error) {
	ref := req.FromCollective
	if ref.HasID() {
		fromCollective, err := s.collectives.GetByID(ctx, *ref.ID)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound(fmt.Sprintf("From collective id %s not found", ref.ID))
		}
		if err != nil {
			return nil, err
		}
		err = s.authz.Authorize(ctx, user.CollectiveID, fromCollective, authorization.ActionOrderOnBehalf)
		if err == nil {
			return fromCollective, nil
		}
		if !isForbidden(err) {
			return nil, err
		}
		hostID, err := s.collectives.HostCollectiveID(ctx, collective)
		if err != nil {
			return nil, err
		}
		ok, err := s.isAdmin(ctx, user, hostID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperror.Unauthorized(fmt.Sprintf(
				"You don't have sufficient permissions to create an order on behalf of the %s %s",
				fromCollective.Name, strings.ToLower(string(fromCollective.Type)),
			))
		}
		return fromCollective, nil
	}

	if ref != nil && strings.TrimSpace(ref.Name) != "" {
		return s.collectives.CreateOrganization(ctx, collectivedomain.CreateOrganizationInput{
			Name:              ref.Name,
			Website:           ref.Website,
			Currency:          collective.Currency,
			AdminCollectiveID: user.CollectiveID,
			CreatedByUserID:   user.ID,
		})
	}
	return s.collectives.GetByID(ctx, user.CollectiveID)
}

func (s *Service) checkInventory(ctx context.Context, tier *tierdomain.Tier, quantity int64) error {
	if tier == nil {
		return nil
	}
	if tier.MaxQuantityPerUser != nil && *tier.MaxQuantityPerUser > 0 && quantity > *tier.MaxQuantityPerUser {
		return apperror.Validationf("You can buy up to %d %s per person", *tier.MaxQuantityPerUser, pluralize("ticket", *tier.MaxQuantityPerUser))
	}
	if tier.MaxQuantity == nil {
		return nil
	}
	sold, err := s.tiers.SoldQuantity(ctx, s.db, tier.ID)
	if err != nil {
		return err
	}
	if sold+quantity > *tier.MaxQuantity {
		return apperror.Validationf("No more tickets left for %s", tier.Name)
	}
	return nil
}

// computeTax resolves the VAT mode from the collective or its parent and the
// taxing country from the collective or its host.
func (s *Service) computeTax(ctx context.Context, req orderdomain.CreateOrderRequest, collective *collectivedomain.Collective, tier *tierdomain.Tier) (taxContext, error) {
	none := taxContext{percentage: decimal.Zero}
	if tier == nil || (req.TotalAmount != nil && *req.TotalAmount == 0) || !s.tax.IsTierTypeSubjectToVAT(tier.Type) {
		return none, nil
	}

	var host, parent *collectivedomain.Collective
	if collective.HostCollectiveID != nil {
		found, err := s.collectiveRepo.FindByID(ctx, s.db, *collective.HostCollectiveID)
		if err != nil {
			return none, err
		}
		host = found
	}
	if collective.ParentCollectiveID != nil {
		found, err := s.collectiveRepo.FindByID(ctx, s.db, *collective.ParentCollectiveID)
		if err != nil {
			return none, err
		}
		parent = found
		if parent != nil && host == nil && parent.HostCollectiveID != nil {
			found, err := s.collectiveRepo.FindByID(ctx, s.db, *parent.HostCollectiveID)
			if err != nil {
				return none, err
			}
			host = found
		}
	}

	vatType, vatNumber := collective.VATSettings()
	if vatType == "" && parent != nil {
		vatType, vatNumber = parent.VATSettings()
	}
	baseCountry := collective.Country()
	if baseCountry == "" && parent != nil {
		baseCountry = parent.Country()
	}

	in := taxdomain.Input{
		TierType:          tier.Type,
		TotalAmount:       1,
		VATType:           taxdomain.VATType(vatType),
		CollectiveCountry: baseCountry,
		BuyerCountry:      req.CountryISO,
		TaxIDNumber:       req.TaxIDNumber,
	}
	if req.TotalAmount != nil {
		in.TotalAmount = *req.TotalAmount
	}
	if taxdomain.VATType(vatType) == taxdomain.VATTypeHost {
		vatNumber = ""
		if host != nil {
			in.HostCountry = host.Country()
			_, vatNumber = host.VATSettings()
		}
	}

	result, err := s.tax.Compute(in)
	if err != nil {
		return none, err
	}
	if !result.Applies() {
		return none, nil
	}
	return taxContext{originCountry: result.OriginCountry, percentage: result.Percentage, vatNumberFrom: vatNumber}, nil
}

// reconcileAmounts checks the total against the tier. A fixed tier without
// presets fills in a missing total and tax; a minimum applies per unit.
func reconcileAmounts(req orderdomain.CreateOrderRequest, tier *tierdomain.Tier, pct decimal.Decimal, taxAmount int64, currency string) (int64, int64, error) {
	if req.TotalAmount != nil && *req.TotalAmount < 0 {
		return 0, 0, apperror.Validation("Total amount cannot be a negative value")
	}

	var total int64
	if req.TotalAmount != nil {
		total = *req.TotalAmount
	}

	if tier != nil {
		if fixed, ok := tier.FixedAmount(); ok {
			expectedNet := req.Quantity * fixed
			expectedTax := taxdomain.TaxAmount(expectedNet, pct)
			if req.TotalAmount == nil {
				total = taxdomain.GrossAmount(expectedNet, pct)
				if req.TaxAmount == nil {
					taxAmount = expectedTax
				}
			}
			if total-taxAmount != expectedNet || taxAmount != expectedTax {
				taxInfo := ""
				if expectedTax != 0 {
					taxInfo = " + " + money.Format(expectedTax, currency, 2) + " tax"
				}
				return 0, 0, apperror.Validationf(
					"This tier uses a fixed amount. Order total must be %s%s. You set: %s",
					money.Format(expectedNet, currency, 2), taxInfo, money.Format(total, currency, 2),
				)
			}
		}

		if tier.MinimumAmount != nil && *tier.MinimumAmount > 0 {
			minAmount := *tier.MinimumAmount * req.Quantity
			minTotal := minAmount
			if !pct.IsZero() {
				minTotal = taxdomain.GrossAmount(minAmount, pct)
			}
			if total < minTotal {
				return 0, 0, apperror.Validationf("The amount you set is below minimum tier value, it should be at least %s", money.Format(minTotal, currency, 0))
			}
		}
	}
	return total, taxAmount, nil
}

func (s *Service) buildOrder(
	user *authdomain.User,
	req orderdomain.CreateOrderRequest,
	collective, fromCollective *collectivedomain.Collective,
	tier *tierdomain.Tier,
	currency string,
	totalAmount, taxAmount int64,
	interval string,
	taxes taxContext,
	recaptchaResponse map[string]any,
	paymentRequired bool,
) *orderdomain.Order {
	now := s.clock.Now().UTC()
	order := &orderdomain.Order{
		ID:               s.genID.Generate(),
		CreatedByUserID:  userIDOf(user),
		FromCollectiveID: fromCollective.ID,
		CollectiveID:     collective.ID,
		Quantity:         req.Quantity,
		TotalAmount:      totalAmount,
		Currency:         strings.ToUpper(currency),
		Interval:         optionalString(interval),
		Description:      strings.TrimSpace(req.Description),
		PublicMessage:    optionalString(strings.TrimSpace(req.PublicMessage)),
		PrivateMessage:   optionalString(strings.TrimSpace(req.PrivateMessage)),
		Status:           orderdomain.StatusPending,
		Data:             datatypes.JSONMap{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if tier != nil {
		order.TierID = &tier.ID
	}
	if order.Description == "" {
		order.Description = defaultDescription(collective, tier, interval, totalAmount)
	}
	if taxes.applies() {
		order.TaxAmount = &taxAmount
		pct, _ := taxes.percentage.Float64()
		order.SetData(orderdomain.DataTax, map[string]any{
			"id":              taxdomain.TaxIDVAT,
			"taxerCountry":    taxes.originCountry,
			"taxedCountry":    strings.ToUpper(strings.TrimSpace(req.CountryISO)),
			"percentage":      pct,
			"taxIDNumber":     strings.TrimSpace(req.TaxIDNumber),
			"taxIDNumberFrom": taxes.vatNumberFrom,
		})
	}
	if !paymentRequired && collective.IsActive {
		order.ProcessedAt = &now
	}

	if req.RemoteIP != "" {
		order.SetData(orderdomain.DataReqIP, req.RemoteIP)
	}
	if recaptchaResponse != nil {
		order.SetData(orderdomain.DataRecaptchaResponse, recaptchaResponse)
	}
	if len(req.CustomData) > 0 {
		order.SetData(orderdomain.DataCustomData, req.CustomData)
	}
	order.SetData(orderdomain.DataSavePaymentMethod, req.PaymentMethod != nil && req.PaymentMethod.Save)

	if req.HostFeePercent != nil {
		order.SetData(orderdomain.DataHostFeePercent, *req.HostFeePercent)
	} else if tier != nil {
		if pct, ok := tier.FeeOverride(orderdomain.DataHostFeePercent); ok {
			order.SetData(orderdomain.DataHostFeePercent, pct)
		}
	}
	if req.PlatformFeePercent != nil {
		order.SetData(orderdomain.DataPlatformFeePercent, *req.PlatformFeePercent)
	} else if tier != nil {
		if pct, ok := tier.FeeOverride(orderdomain.DataPlatformFeePercent); ok {
			order.SetData(orderdomain.DataPlatformFeePercent, pct)
		}
	}

	if totalAmount == 0 {
		order.Status = orderdomain.StatusPaid
		if interval != "" {
			order.Status = orderdomain.StatusActive
		}
	}
	return order
}

func defaultDescription(collective *collectivedomain.Collective, tier *tierdomain.Tier, interval string, totalAmount int64) string {
	tierInfo := ""
	if tier != nil && tier.Name != "" {
		tierInfo = " (" + tier.Name + ")"
	}
	if interval != "" {
		return fmt.Sprintf("%sly financial contribution to %s%s", capitalize(interval), collective.Name, tierInfo)
	}
	if totalAmount == 0 || collective.Type == collectivedomain.TypeEvent {
		return fmt.Sprintf("Registration to %s%s", collective.Name, tierInfo)
	}
	return fmt.Sprintf("Financial contribution to %s%s", collective.Name, tierInfo)
}

// confirmTicket registers a free ticket: the order is paid and the payer
// attends the event.
func (s *Service) confirmTicket(
	ctx context.Context,
	user *authdomain.User,
	order *orderdomain.Order,
	fromCollective *collectivedomain.Collective,
	tier *tierdomain.Tier,
) error {
	now := s.clock.Now().UTC()
	order.Status = orderdomain.StatusPaid
	order.ProcessedAt = &now
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, order); err != nil {
		return err
	}

	attendee, err := s.collectiveRepo.FindMember(ctx, s.db, order.FromCollectiveID, order.CollectiveID, collectivedomain.RoleAttendee)
	if err != nil {
		return err
	}
	if attendee == nil {
		err := s.collectiveRepo.InsertMember(ctx, s.db, &collectivedomain.Member{
			ID:                 s.genID.Generate(),
			MemberCollectiveID: order.FromCollectiveID,
			CollectiveID:       order.CollectiveID,
			Role:               collectivedomain.RoleAttendee,
			TierID:             order.TierID,
			CreatedByUserID:    userIDOf(user),
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return err
		}
	}

	data := map[string]any{
		"eventCollectiveId": order.CollectiveID.String(),
		"userId":            user.ID.String(),
		"recipient":         map[string]any{"name": fromCollective.Name},
		"orderId":           order.ID.String(),
	}
	if tier != nil {
		data["tier"] = map[string]any{"id": tier.ID.String(), "name": tier.Name}
	}
	return s.activitySvc.Record(ctx, nil, activitydomain.Entry{
		Type:         activitydomain.TypeTicketConfirmed,
		CollectiveID: &order.CollectiveID,
		UserID:       userIDOf(user),
		Data:         data,
	})
}
