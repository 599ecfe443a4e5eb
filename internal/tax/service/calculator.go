package service

import (
	"strings"

	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/patronage/internal/tax/domain"
)

type calculator struct{}

func NewCalculator() taxdomain.Calculator {
	return calculator{}
}

func (calculator) IsTierTypeSubjectToVAT(tierType string) bool {
	switch strings.ToUpper(tierType) {
	case taxdomain.TierTypeService, taxdomain.TierTypeProduct, taxdomain.TierTypeTicket, taxdomain.TierTypeMembership:
		return true
	default:
		return false
	}
}

func (calculator) CheckVATNumberFormat(number string) bool {
	return checkVATNumberFormat(number)
}

func (c calculator) Compute(in taxdomain.Input) (taxdomain.Result, error) {
	none := taxdomain.Result{Percentage: decimal.Zero}
	if in.TotalAmount == 0 || !c.IsTierTypeSubjectToVAT(in.TierType) {
		return none, nil
	}

	collectiveCountry := normalizeCountry(in.CollectiveCountry)
	var origin string
	switch in.VATType {
	case taxdomain.VATTypeOwn:
		origin = originCountry(in.TierType, collectiveCountry, collectiveCountry)
	case taxdomain.VATTypeHost:
		origin = originCountry(in.TierType, normalizeCountry(in.HostCountry), collectiveCountry)
	}
	if origin == "" {
		return none, nil
	}

	buyerCountry := normalizeCountry(in.BuyerCountry)
	if buyerCountry == "" {
		return none, taxdomain.ErrMissingCountry
	}
	hasVATNumber := strings.TrimSpace(in.TaxIDNumber) != ""
	if hasVATNumber && !checkVATNumberFormat(in.TaxIDNumber) {
		return none, taxdomain.ErrInvalidVATNumber
	}

	return taxdomain.Result{
		OriginCountry: origin,
		Percentage:    percentage(in.TierType, origin, buyerCountry, hasVATNumber),
	}, nil
}

// originCountry picks the taxing country: the event's own country for tickets,
// otherwise the host's. Non-EU origins are not taxed.
func originCountry(tierType, hostCountry, collectiveCountry string) string {
	if strings.EqualFold(tierType, taxdomain.TierTypeTicket) && isEUCountry(collectiveCountry) {
		return collectiveCountry
	}
	if isEUCountry(hostCountry) {
		return hostCountry
	}
	return ""
}

func percentage(tierType, origin, destination string, hasVATNumber bool) decimal.Decimal {
	switch {
	case !isEUCountry(origin):
		return decimal.Zero
	case strings.EqualFold(tierType, taxdomain.TierTypeTicket):
		return standardRate(origin)
	case !isEUCountry(destination):
		return decimal.Zero
	case origin == destination:
		return standardRate(origin)
	case hasVATNumber:
		// intra-community reverse charge
		return decimal.Zero
	default:
		return standardRate(destination)
	}
}

func standardRate(country string) decimal.Decimal {
	return decimal.NewFromFloat(euStandardRates[country])
}

func normalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}
