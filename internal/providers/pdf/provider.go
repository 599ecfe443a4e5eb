package pdf

import (
	"context"
	"io"
)

// Provider renders documents handed to contributors.
type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}
