package scheduler

import (
	"context"
	"errors"

	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	"github.com/smallbiznis/patronage/internal/providers/email"
	"go.uber.org/zap"
)

const JobExpiringCards = "expiring_cards"

var (
	errCardWithoutCollective    = errors.New("payment method has no collective")
	errCollectiveWithoutCreator = errors.New("collective has no creator")
)

// expiringCardsJob emails the owner of every credit card that expires this
// month. In production it only does so on the first day of the month.
func (s *Scheduler) expiringCardsJob(ctx context.Context, run *jobRun) error {
	now := s.clock.Now().UTC()
	if s.appCfg.IsProduction() && now.Day() != 1 {
		s.logger(ctx).Info("expiring cards skipped, today is not the first of the month")
		return nil
	}

	month, year := int(now.Month()), now.Year()
	cards, err := s.paymentMethods.ListExpiringCreditCards(ctx, s.db, month, year)
	if err != nil {
		return err
	}

	for i := range cards {
		if err := ctx.Err(); err != nil {
			return err
		}
		card := &cards[i]
		if err := s.notifyExpiringCard(ctx, card); err != nil {
			s.logItemError(ctx, run, "expiring card reminder failed", err,
				zap.String("payment_method_id", card.ID.String()),
			)
			continue
		}
		run.AddProcessed(1)
	}

	s.logger(ctx).Info("credit card update emails sent",
		zap.Int("month", month),
		zap.Int("year", year),
		zap.Int("cards", len(cards)),
	)
	return nil
}

func (s *Scheduler) notifyExpiringCard(ctx context.Context, card *paymentmethoddomain.PaymentMethod) error {
	if card.CollectiveID == nil {
		return errCardWithoutCollective
	}
	collective, err := s.collectives.GetByID(ctx, *card.CollectiveID)
	if err != nil {
		return err
	}
	if collective.CreatedByUserID == nil {
		return errCollectiveWithoutCreator
	}
	user, err := s.users.GetByID(ctx, *collective.CreatedByUserID)
	if err != nil {
		return err
	}

	data := map[string]any{
		"id":             card.ID.String(),
		"userId":         user.ID.String(),
		"collectiveId":   collective.ID.String(),
		"slug":           collective.Slug,
		"firstName":      stringValue(user.FirstName),
		"email":          user.Email,
		"cardLast4":      stringValue(card.Name),
		"collectiveName": collective.Name,
		"websiteUrl":     s.appCfg.Platform.WebsiteURL,
	}
	return s.email.SendTemplate(ctx, []string{user.Email}, email.TemplatePaymentMethodExpiring, data)
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
