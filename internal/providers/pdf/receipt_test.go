package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceiptProducesPDF(t *testing.T) {
	reader, err := New().GenerateReceipt(context.Background(), ReceiptData{
		ReceiptNumber:  "1234",
		DatePaid:       "2026-01-02",
		FromName:       "Jane Doe",
		CollectiveName: "Webpack",
		HostName:       "Open Source Collective",
		Description:    "Monthly financial contribution to Webpack (Backers)",
		Quantity:       1,
		UnitPrice:      "$10.00",
		Subtotal:       "$10.00",
		TaxLabel:       "VAT 21%",
		TaxAmount:      "$2.10",
		Total:          "$12.10",
	})
	require.NoError(t, err)

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}
