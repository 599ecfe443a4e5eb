package domain

import "github.com/shopspring/decimal"

// VATType is the collective setting choosing whose country taxes its sales.
type VATType string

const (
	VATTypeOwn  VATType = "OWN"
	VATTypeHost VATType = "HOST"
)

// Tier types that are subject to VAT.
const (
	TierTypeService    = "SERVICE"
	TierTypeProduct    = "PRODUCT"
	TierTypeTicket     = "TICKET"
	TierTypeMembership = "MEMBERSHIP"
)

const TaxIDVAT = "VAT"

// Input gathers everything needed to tax one order. It is built per request.
type Input struct {
	TierType          string
	TotalAmount       int64
	VATType           VATType
	CollectiveCountry string
	HostCountry       string
	BuyerCountry      string
	TaxIDNumber       string
}

// Result is the derived tax context of an order. OriginCountry is empty when
// no tax applies.
type Result struct {
	OriginCountry string
	Percentage    decimal.Decimal
}

func (r Result) Applies() bool { return r.OriginCountry != "" }

func (r Result) IsZero() bool { return r.Percentage.IsZero() }

// Calculator derives VAT for orders.
type Calculator interface {
	Compute(in Input) (Result, error)
	IsTierTypeSubjectToVAT(tierType string) bool
	CheckVATNumberFormat(number string) bool
}
