package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "tok_****", MaskSecret("tok_abc"))
	assert.Equal(t, "tok_****7890", MaskSecret("tok_1234567890"))
	assert.Equal(t, "****cdef", MaskSecret("abcdef"))
}

func TestMaskSensitiveKeepsOtherValues(t *testing.T) {
	masked := MaskSensitive(map[string]any{
		"amount": 1000,
		"token":  "tok_1234567890",
		"tax": map[string]any{
			"taxIDNumber": "FRXX999999999",
			"percentage":  20,
		},
		"items": []any{map[string]any{"email": "someone@example.com"}},
	})

	assert.Equal(t, 1000, masked["amount"])
	assert.Equal(t, "tok_****7890", masked["token"])
	tax := masked["tax"].(map[string]any)
	assert.Equal(t, "****9999", tax["taxIDNumber"])
	assert.Equal(t, 20, tax["percentage"])
	items := masked["items"].([]any)
	assert.Equal(t, "****.com", items[0].(map[string]any)["email"])
	assert.NotNil(t, MaskSensitive(nil))
}
