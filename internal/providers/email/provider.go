package email

import (
	"context"

	"go.uber.org/zap"
)

// Provider delivers transactional emails. Templates are looked up by name
// among the embedded HTML templates.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error
}

// LogProvider stands in when SMTP is not configured. Mail is dropped and a
// debug line records what would have been sent.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log.Named("email")}
}

func (p *LogProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.log.Debug("smtp not configured, email dropped",
		zap.String("subject", subject),
		zap.Int("recipients", len(to)),
	)
	return nil
}

func (p *LogProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	p.log.Debug("smtp not configured, email dropped",
		zap.String("template", templateName),
		zap.Int("recipients", len(to)),
	)
	return nil
}
