// Package recaptcha verifies bot-protection tokens sent with orders.
package recaptcha

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/smallbiznis/patronage/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

var Module = fx.Module("recaptcha",
	fx.Provide(NewFromConfig),
)

// Verifier returns the raw verification response. Callers store it; they do
// not reject orders on it.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (map[string]any, error)
}

type NoOpVerifier struct{}

func (NoOpVerifier) Verify(ctx context.Context, token, remoteIP string) (map[string]any, error) {
	return nil, nil
}

type Client struct {
	secret    string
	verifyURL string
	http      *http.Client
}

func NewClient(secret, verifyURL string, client *http.Client) *Client {
	if verifyURL == "" {
		verifyURL = defaultVerifyURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{secret: secret, verifyURL: verifyURL, http: client}
}

func NewFromConfig(cfg config.Config, log *zap.Logger) Verifier {
	if cfg.IsTestEnv() || cfg.RecaptchaSecret == "" {
		log.Named("recaptcha").Debug("recaptcha verification disabled")
		return NoOpVerifier{}
	}
	return NewClient(cfg.RecaptchaSecret, "", nil)
}

func (c *Client) Verify(ctx context.Context, token, remoteIP string) (map[string]any, error) {
	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP = strings.TrimSpace(remoteIP); remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("recaptcha returned %d", resp.StatusCode)
	}

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
