package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTemplateRendersAndSends(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	p := NewSMTP(Config{Host: "smtp.local", Port: 2525, From: "info@patronage.local"})
	p.sendMail = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"jane@example.com"}, TemplatePaymentMethodExpiring, map[string]any{
		"firstName":      "Jane",
		"cardLast4":      "4242",
		"collectiveName": "Webpack",
		"websiteUrl":     "https://patronage.local",
		"slug":           "jane",
		"id":             "12",
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.local:2525", gotAddr)
	assert.Equal(t, []string{"jane@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your credit card is about to expire")
	assert.Contains(t, gotMsg, "Hi Jane,")
	assert.Contains(t, gotMsg, "https://patronage.local/jane/paymentmethod/12/update")
}

func TestSendRejectsCancelledContext(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.local", Port: 25})
	p.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("should not send")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Send(ctx, []string{"a@b.c"}, "s", "b"), context.Canceled)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("missing", nil)
	assert.Error(t, err)
}
