// Package money formats amounts held in minor units.
package money

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Format renders minor units the way contributors see prices, e.g.
// Format(1050, "USD", 2) == "$10.50". precision 0 drops the cents.
func Format(amount int64, code string, precision int) string {
	value := float64(amount) / 100
	number := printer.Sprintf("%.*f", precision, value)

	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fmt.Sprintf("%s %s", number, code)
	}
	symbol := printer.Sprint(currency.Symbol(unit))
	if strings.HasPrefix(number, "-") {
		return "-" + symbol + strings.TrimPrefix(number, "-")
	}
	return symbol + number
}
