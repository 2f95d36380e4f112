// Package paypal talks to the PayPal REST API for the order/capture flow and
// for capture refunds.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
)

const (
	StatusCompleted = "COMPLETED"
	StatusPending   = "PENDING"
)

// ProviderError describes a call PayPal rejected or answered unusably.
type ProviderError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "paypal %s failed", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, ": status %s", e.Status)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

type Client struct {
	cfg   config.PayPalConfig
	http  *http.Client
	creds clientcredentials.Config
}

// New builds a client. httpClient may be nil.
func New(cfg config.PayPalConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	cfg.BaseURL = base
	return &Client{
		cfg:  cfg,
		http: httpClient,
		creds: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     base + "/v1/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
	}
}

// accessToken runs a fresh client-credentials exchange. Tokens are not kept
// between calls.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.creds.Token(ctx)
	if err != nil {
		return "", &ProviderError{Op: "token", Body: err.Error()}
	}
	if tok.AccessToken == "" {
		return "", &ProviderError{Op: "token", Body: "empty access token"}
	}
	return tok.AccessToken, nil
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type orderRequest struct {
	Intent             string             `json:"intent"`
	ApplicationContext applicationContext `json:"application_context"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
}

type applicationContext struct {
	ShippingPreference string        `json:"shipping_preference"`
	UserAction         string        `json:"user_action"`
	PaymentMethod      paymentMethod `json:"payment_method"`
}

type paymentMethod struct {
	PayerSelected  string `json:"payer_selected"`
	PayeePreferred string `json:"payee_preferred"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Amount      amount `json:"amount"`
}

type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateOrder opens an order for the full local-currency amount.
func (c *Client) CreateOrder(ctx context.Context, total domain.Money, referenceID string) (*Order, error) {
	body := orderRequest{
		Intent: "CAPTURE",
		ApplicationContext: applicationContext{
			ShippingPreference: "NO_SHIPPING",
			UserAction:         "PAY_NOW",
			PaymentMethod: paymentMethod{
				PayerSelected:  "PAYPAL",
				PayeePreferred: "IMMEDIATE_PAYMENT_REQUIRED",
			},
		},
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: referenceID,
			Amount:      amount{CurrencyCode: c.cfg.Currency, Value: total.String()},
		}},
	}

	var order Order
	if err := c.do(ctx, "create order", "/v2/checkout/orders", body, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, &ProviderError{Op: "create order", Body: "missing order id"}
	}
	return &order, nil
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type Capture struct {
	OrderID   string
	Status    string
	CaptureID string
}

// CaptureOrder settles an approved order. Only a COMPLETED order carrying a
// capture id counts as success.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	var resp captureResponse
	path := "/v2/checkout/orders/" + orderID + "/capture"
	if err := c.do(ctx, "capture", path, struct{}{}, &resp); err != nil {
		return nil, err
	}
	if resp.Status != StatusCompleted {
		return nil, &ProviderError{Op: "capture", Status: resp.Status}
	}
	if len(resp.PurchaseUnits) == 0 || len(resp.PurchaseUnits[0].Payments.Captures) == 0 ||
		resp.PurchaseUnits[0].Payments.Captures[0].ID == "" {
		return nil, &ProviderError{Op: "capture", Status: resp.Status, Body: "missing capture id"}
	}
	return &Capture{
		OrderID:   resp.ID,
		Status:    resp.Status,
		CaptureID: resp.PurchaseUnits[0].Payments.Captures[0].ID,
	}, nil
}

type refundRequest struct {
	Amount *amount `json:"amount,omitempty"`
}

type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RefundCapture reverses a capture. A nil amount refunds the full captured
// value; otherwise amount is already in the settlement currency.
func (c *Client) RefundCapture(ctx context.Context, captureID string, settlement *domain.Money) (*Refund, error) {
	var body refundRequest
	if settlement != nil {
		body.Amount = &amount{CurrencyCode: c.cfg.SettlementCurrency, Value: settlement.String()}
	}

	var refund Refund
	path := "/v2/payments/captures/" + captureID + "/refund"
	if err := c.do(ctx, "refund", path, body, &refund); err != nil {
		return nil, err
	}
	if refund.Status != StatusCompleted && refund.Status != StatusPending {
		return nil, &ProviderError{Op: "refund", Status: refund.Status}
	}
	if refund.ID == "" {
		return nil, &ProviderError{Op: "refund", Status: refund.Status, Body: "missing refund id"}
	}
	return &refund, nil
}

func (c *Client) do(ctx context.Context, op, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Body: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: "unreadable response"}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
