package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorUnwrapsToKind(t *testing.T) {
	err := fmt.Errorf("create order: %w", Validationf("Invalid quantity %d", 0))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "Invalid quantity 0", MessageOf(err))
}

func TestErrorWithoutMessageUsesKind(t *testing.T) {
	err := Unauthorized("")
	assert.Equal(t, "unauthorized", err.Error())
	assert.Equal(t, "", MessageOf(nil))
	assert.Equal(t, "boom", MessageOf(errors.New("boom")))
}
