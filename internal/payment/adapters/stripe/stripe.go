package stripe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	paymentdomain "github.com/smallbiznis/patronage/internal/payment/domain"
	paymentmethoddomain "github.com/smallbiznis/patronage/internal/paymentmethod/domain"
	"gorm.io/gorm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultAPIBase = "https://api.stripe.com"
	account        = "stripe"
)

// Processor charges credit cards through the Stripe REST API.
type Processor struct {
	secretKey string
	apiBase   string
	client    *http.Client
}

func NewProcessor(secretKey, apiBase string, client *http.Client) (*Processor, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Processor{secretKey: secretKey, apiBase: apiBase, client: client}, nil
}

func (p *Processor) Key() string {
	return paymentmethoddomain.ServiceStripe + "/" + paymentmethoddomain.TypeCreditCard
}

type stripeCharge struct {
	ID                 string                    `json:"id"`
	Amount             int64                     `json:"amount"`
	Currency           string                    `json:"currency"`
	Status             string                    `json:"status"`
	Paid               bool                      `json:"paid"`
	BalanceTransaction *stripeBalanceTransaction `json:"balance_transaction"`
}

type stripeBalanceTransaction struct {
	ID  string `json:"id"`
	Fee int64  `json:"fee"`
}

type stripeRefund struct {
	ID                 string                    `json:"id"`
	Status             string                    `json:"status"`
	BalanceTransaction *stripeBalanceTransaction `json:"balance_transaction"`
}

type stripeCustomer struct {
	ID string `json:"id"`
}

type stripeErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Setup attaches the card token to a new Stripe customer so the method can
// be charged again, e.g. for every cycle of a subscription.
func (p *Processor) Setup(ctx context.Context, req paymentdomain.SetupRequest) error {
	method := req.Method
	if method == nil {
		return paymentdomain.ErrMissingPaymentMethod
	}
	if method.CustomerID != nil && *method.CustomerID != "" {
		return nil
	}
	if method.Token == nil || *method.Token == "" {
		return paymentdomain.ErrMissingPaymentMethod
	}

	form := url.Values{}
	form.Set("source", *method.Token)
	if email := strings.TrimSpace(req.Email); email != "" {
		form.Set("email", email)
	}

	var customer stripeCustomer
	if _, err := p.post(ctx, "/v1/customers", form, &customer); err != nil {
		return err
	}
	method.CustomerID = &customer.ID
	return nil
}

func (p *Processor) Charge(ctx context.Context, db *gorm.DB, req paymentdomain.ChargeRequest) (*paymentdomain.Charge, error) {
	method := req.Method
	if method == nil {
		return nil, paymentdomain.ErrMissingPaymentMethod
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("description", req.Description)
	form.Add("expand[]", "balance_transaction")
	switch {
	case method.CustomerID != nil && *method.CustomerID != "":
		form.Set("customer", *method.CustomerID)
	case method.Token != nil && *method.Token != "":
		form.Set("source", *method.Token)
	default:
		return nil, paymentdomain.ErrMissingPaymentMethod
	}
	if req.Order != nil {
		form.Set("metadata[order_id]", req.Order.ID.String())
		form.Set("metadata[from_collective_id]", req.Order.FromCollectiveID.String())
		form.Set("metadata[collective_id]", req.Order.CollectiveID.String())
	}

	var charge stripeCharge
	raw, err := p.post(ctx, "/v1/charges", form, &charge)
	if err != nil {
		return nil, err
	}

	result := &paymentdomain.Charge{
		Settled:   charge.Paid && charge.Status == "succeeded",
		Reference: charge.ID,
		Raw:       raw,
	}
	if charge.BalanceTransaction != nil {
		result.ProcessorFee = charge.BalanceTransaction.Fee
	}
	if !result.Settled {
		return nil, &paymentdomain.GatewayError{
			Message:  fmt.Sprintf("Charge %s is %s", charge.ID, charge.Status),
			Account:  account,
			Response: raw,
		}
	}
	return result, nil
}

func (p *Processor) Refund(ctx context.Context, db *gorm.DB, req paymentdomain.RefundRequest) (*paymentdomain.Refund, error) {
	if req.Transaction == nil {
		return nil, paymentdomain.ErrRefundUnsupported
	}
	chargeID, _ := req.Transaction.Data["chargeId"].(string)
	if strings.TrimSpace(chargeID) == "" {
		return nil, paymentdomain.ErrRefundUnsupported
	}

	form := url.Values{}
	form.Set("charge", chargeID)
	form.Add("expand[]", "balance_transaction")

	var refund stripeRefund
	if _, err := p.post(ctx, "/v1/refunds", form, &refund); err != nil {
		return nil, err
	}
	result := &paymentdomain.Refund{Reference: refund.ID}
	if refund.BalanceTransaction != nil {
		result.ProcessorFee = refund.BalanceTransaction.Fee
	}
	return result, nil
}

// post sends a form request and decodes the response into out. Stripe error
// payloads come back as *GatewayError with the raw response attached.
func (p *Processor) post(ctx context.Context, path string, form url.Values, out any) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.secretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("stripe returned %d with an unreadable body", resp.StatusCode)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope stripeErrorEnvelope
		_ = json.Unmarshal(body, &envelope)
		message := strings.TrimSpace(envelope.Error.Message)
		if message == "" {
			message = fmt.Sprintf("stripe returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("stripe: %s", message)
		}
		return nil, &paymentdomain.GatewayError{Message: message, Account: account, Response: raw}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, err
	}
	return raw, nil
}
