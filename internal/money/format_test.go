package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	assert.Contains(t, Format(1050, "USD", 2), "10.50")
	assert.Contains(t, Format(123456789, "EUR", 2), "1,234,567.89")
	assert.NotContains(t, Format(1000, "USD", 0), ".")
	assert.Equal(t, "10.00 XXQ", Format(1000, "XXQ", 2))
}

func TestFormatNegative(t *testing.T) {
	formatted := Format(-500, "USD", 2)
	assert.True(t, len(formatted) > 0 && formatted[0] == '-')
	assert.Contains(t, formatted, "5.00")
}
