// Package paypal adapts the PayPal Orders v2 API to the payment gateway
// contract. PayPal needs an explicit capture call after the customer
// approves the order; the capture result arrives as a separate webhook.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"counterserve/internal/domain"
	"counterserve/internal/payment"
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
}

type Gateway struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config, client *http.Client) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	return &Gateway{cfg: cfg, client: client}
}

func (g *Gateway) Provider() domain.PaymentProvider {
	return domain.ProviderPayPal
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type purchaseUnit struct {
	Amount amount `json:"amount"`
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

func (g *Gateway) CreateSession(ctx context.Context, order *domain.Order) (string, error) {
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{
			{Amount: amount{CurrencyCode: g.cfg.Currency, Value: centsToValue(order.Total())}},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v2/checkout/orders", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &domain.UpstreamError{Provider: g.Provider(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &domain.UpstreamError{Provider: g.Provider(), Err: fmt.Errorf("create order returned status %d", resp.StatusCode)}
	}

	var created createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &domain.UpstreamError{Provider: g.Provider(), Err: fmt.Errorf("decode create order response: %w", err)}
	}
	if created.ID == "" {
		return "", &domain.UpstreamError{Provider: g.Provider(), Err: fmt.Errorf("create order response missing id")}
	}

	return created.ID, nil
}

func (g *Gateway) HostedCheckoutURL(ref string) string {
	return g.cfg.BaseURL + "/checkoutnow?token=" + ref
}

func (g *Gateway) Capture(ctx context.Context, ref string) error {
	url := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", g.cfg.BaseURL, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.cfg.ClientID, g.cfg.ClientSecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return &domain.UpstreamError{Provider: g.Provider(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &domain.UpstreamError{Provider: g.Provider(), Err: fmt.Errorf("capture returned status %d", resp.StatusCode)}
	}

	return nil
}

type webhookPayload struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// ParseWebhook maps PayPal webhook events onto the gateway contract.
// Approval events carry the order id directly; capture events reference it
// through the capture resource's supplementary data.
func (g *Gateway) ParseWebhook(payload []byte, _ string) (payment.WebhookEvent, error) {
	var event webhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return payment.WebhookEvent{}, fmt.Errorf("malformed paypal webhook: %w", err)
	}

	switch event.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		return payment.WebhookEvent{Kind: payment.KindApproved, ProviderRef: event.Resource.ID}, nil
	case "PAYMENT.CAPTURE.COMPLETED":
		ref := event.Resource.SupplementaryData.RelatedIDs.OrderID
		if ref == "" {
			ref = event.Resource.ID
		}
		return payment.WebhookEvent{Kind: payment.KindCaptured, ProviderRef: ref}, nil
	default:
		return payment.WebhookEvent{Kind: payment.KindIgnored}, nil
	}
}

// centsToValue renders an amount in cents as the decimal string PayPal
// expects, e.g. 1998 -> "19.98".
func centsToValue(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
