package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/patronage/internal/apperror"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const uuidLength = 36

// fundingSource is the method paying for an order. fresh marks a method
// created by the current request.
type fundingSource struct {
	method *paymentmethoddomain.PaymentMethod
	fresh  bool
}

// manualMethod is never stored. Only hosts can flag it paid.
func manualMethod(currency string, paid bool) *paymentmethoddomain.PaymentMethod {
	return &paymentmethoddomain.PaymentMethod{
		Service:  paymentmethoddomain.ServiceOpenCollective,
		Type:     paymentmethoddomain.TypeManual,
		Currency: currency,
		Data:     datatypes.JSONMap{"paid": paid},
	}
}

// resolveFunding finds the stored method referenced by uuid or creates one
// from a gateway token. ownerID is set on new methods the user wants saved.
func (s *Service) resolveFunding(
	ctx context.Context,
	db *gorm.DB,
	user *authdomain.User,
	in *paymentmethoddomain.Input,
	currency string,
	ownerID snowflake.ID,
) (*fundingSource, error) {
	switch {
	case in == nil:
		return nil, apperror.Validation("This order requires a payment method")
	case in.IsManual():
		return &fundingSource{method: manualMethod(currency, false)}, nil
	case strings.TrimSpace(in.UUID) != "":
		method, err := s.paymentMethods.FindByUUID(ctx, db, strings.TrimSpace(in.UUID))
		if err != nil {
			return nil, err
		}
		if method == nil {
			return nil, apperror.NotFound("Payment method not found with this uuid")
		}
		if err := s.authorizeMethod(ctx, user, method); err != nil {
			return nil, err
		}
		return &fundingSource{method: method}, nil
	case strings.TrimSpace(in.Token) != "":
		method, err := s.createMethod(ctx, db, user, in, currency, ownerID)
		if err != nil {
			return nil, err
		}
		return &fundingSource{method: method, fresh: true}, nil
	default:
		return nil, apperror.Validation("This order requires a payment method")
	}
}

func (s *Service) createMethod(
	ctx context.Context,
	db *gorm.DB,
	user *authdomain.User,
	in *paymentmethoddomain.Input,
	currency string,
	ownerID snowflake.ID,
) (*paymentmethoddomain.PaymentMethod, error) {
	service := strings.ToLower(strings.TrimSpace(in.Service))
	if service == "" {
		service = paymentmethoddomain.ServiceStripe
	}
	kind := strings.ToLower(strings.TrimSpace(in.Type))
	if kind == "" {
		kind = paymentmethoddomain.TypeCreditCard
	}
	token := strings.TrimSpace(in.Token)
	now := s.clock.Now().UTC()

	method := &paymentmethoddomain.PaymentMethod{
		ID:              s.genID.Generate(),
		UUID:            uuid.NewString(),
		Name:            optionalString(strings.TrimSpace(in.Name)),
		Service:         service,
		Type:            kind,
		Token:           &token,
		CreatedByUserID: userIDOf(user),
		Currency:        currency,
		Saved:           in.Save,
		Data:            datatypes.JSONMap(in.Data),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if method.Data == nil {
		method.Data = datatypes.JSONMap{}
	}
	if in.Save && ownerID != 0 {
		method.CollectiveID = &ownerID
	}
	if err := s.payments.SetupMethod(ctx, user, method); err != nil {
		if errors.Is(err, paymentdomain.ErrProcessorNotFound) {
			return nil, apperror.Validationf("Unsupported payment method: %s", method.Key())
		}
		return nil, err
	}
	if err := s.paymentMethods.Insert(ctx, db, method); err != nil {
		return nil, err
	}
	return method, nil
}

// authorizeMethod lets admins of the owning collective, or root, spend a
// stored method. A method saved without a collective belongs to its creator.
func (s *Service) authorizeMethod(ctx context.Context, user *authdomain.User, method *paymentmethoddomain.PaymentMethod) error {
	if user == nil {
		return apperror.Unauthorized("You don't have sufficient permissions to access this payment method")
	}
	if method.CollectiveID != nil {
		ok, err := s.isAdmin(ctx, user, method.CollectiveID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	} else if method.CreatedByUserID != nil && *method.CreatedByUserID == user.ID {
		return nil
	}
	ok, err := s.isRoot(ctx, user)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Unauthorized("You don't have sufficient permissions to access this payment method")
	}
	return nil
}

// discardFresh removes a method created for an order whose payment failed.
func (s *Service) discardFresh(ctx context.Context, source *fundingSource) {
	if source == nil || !source.fresh {
		return
	}
	if err := s.paymentMethods.Delete(ctx, s.db, source.method.ID); err != nil {
		s.log.Warn("failed to delete unused payment method",
			zap.String("payment_method_id", source.method.ID.String()),
			zap.Error(err),
		)
	}
}
