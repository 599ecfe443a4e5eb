package domain

import "github.com/smallbiznis/patronage/internal/apperror"

var (
	ErrMissingCountry   = apperror.Validation("This order has a tax attached, you must set a country")
	ErrInvalidVATNumber = apperror.Validation("Invalid VAT number")
)
