// Package stripe adapts Stripe Checkout to the payment gateway contract.
// Stripe captures funds on its own once a session completes, so Capture is
// a no-op; the settlement signal is the async payment succeeded webhook.
// Webhook deliveries must carry a valid Stripe-Signature header.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"counterserve/internal/domain"
	"counterserve/internal/payment"
)

// signatureTolerance bounds how old a signed webhook timestamp may be before
// the delivery is rejected as a replay.
const signatureTolerance = 5 * time.Minute

type Config struct {
	BaseURL       string
	CheckoutURL   string
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type Gateway struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

func New(cfg Config, client *http.Client, now func() time.Time) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	if now == nil {
		now = time.Now
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	return &Gateway{cfg: cfg, client: client, now: now}
}

func (g *Gateway) Provider() domain.PaymentProvider {
	return domain.ProviderStripe
}

type createSessionResponse struct {
	ID string `json:"id"`
}

func (g *Gateway) CreateSession(ctx context.Context, order *domain.Order) (string, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", order.ID)
	for i, item := range order.Items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
		form.Set(prefix+"[price_data][currency]", g.cfg.Currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitPrice, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &domain.UpstreamError{Provider: g.Provider(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &domain.UpstreamError{Provider: g.Provider(), Err: fmt.Errorf("create checkout session returned status %d", resp.StatusCode)}
	}

	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &domain.UpstreamError{Provider: g.Provider(), Err: fmt.Errorf("decode checkout session response: %w", err)}
	}
	if created.ID == "" {
		return "", &domain.UpstreamError{Provider: g.Provider(), Err: fmt.Errorf("checkout session response missing id")}
	}

	return created.ID, nil
}

func (g *Gateway) HostedCheckoutURL(ref string) string {
	return g.cfg.CheckoutURL + "/c/pay/" + ref
}

// Capture is a no-op: Stripe Checkout captures automatically on completion.
func (g *Gateway) Capture(_ context.Context, _ string) error {
	return nil
}

type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func (g *Gateway) ParseWebhook(payload []byte, signature string) (payment.WebhookEvent, error) {
	if err := g.verifySignature(payload, signature); err != nil {
		return payment.WebhookEvent{}, err
	}

	var event webhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return payment.WebhookEvent{}, fmt.Errorf("malformed stripe webhook: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return payment.WebhookEvent{Kind: payment.KindApproved, ProviderRef: event.Data.Object.ID}, nil
	case "checkout.session.async_payment_succeeded":
		return payment.WebhookEvent{Kind: payment.KindCaptured, ProviderRef: event.Data.Object.ID}, nil
	default:
		return payment.WebhookEvent{Kind: payment.KindIgnored}, nil
	}
}

// verifySignature checks a "t=<unix>,v1=<hex hmac>" header against the
// webhook secret. The signed message is "<t>.<payload>".
func (g *Gateway) verifySignature(payload []byte, signature string) error {
	var timestamp string
	var candidates []string

	for _, part := range strings.Split(signature, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}

	if timestamp == "" || len(candidates) == 0 {
		return domain.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	age := g.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

// Sign builds a valid Stripe-Signature header for the payload. Exported for
// tests and local webhook replay tooling.
func Sign(secret string, payload []byte, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return "t=" + timestamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
