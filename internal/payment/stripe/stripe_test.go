package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"counterserve/internal/domain"
	"counterserve/internal/payment"
)

const webhookSecret = "whsec_test"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testGateway(baseURL string, client *http.Client) *Gateway {
	return New(Config{
		BaseURL:       baseURL,
		CheckoutURL:   "https://checkout.stripe.com",
		SecretKey:     "sk_test_123",
		WebhookSecret: webhookSecret,
	}, client, func() time.Time { return testNow })
}

func TestGateway_CreateSession(t *testing.T) {
	t.Run("posts line items and returns the session id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/checkout/sessions" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sk_test_123" {
				t.Errorf("unexpected authorization header %q", got)
			}

			if err := r.ParseForm(); err != nil {
				t.Fatalf("failed to parse form: %v", err)
			}
			if r.PostForm.Get("mode") != "payment" {
				t.Errorf("expected mode payment, got %q", r.PostForm.Get("mode"))
			}
			if r.PostForm.Get("line_items[0][quantity]") != "2" {
				t.Errorf("expected quantity 2, got %q", r.PostForm.Get("line_items[0][quantity]"))
			}
			if r.PostForm.Get("line_items[0][price_data][unit_amount]") != "999" {
				t.Errorf("expected unit amount 999, got %q", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"cs_test_1"}`))
		}))
		defer server.Close()

		gw := testGateway(server.URL, server.Client())
		order := &domain.Order{
			ID:    "order-1",
			Items: []domain.OrderItem{{ItemRef: "margherita", Name: "Pizza Margherita", Quantity: 2, UnitPrice: 999}},
		}

		ref, err := gw.CreateSession(context.Background(), order)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ref != "cs_test_1" {
			t.Errorf("expected cs_test_1, got %s", ref)
		}
	})

	t.Run("provider error surfaces as upstream failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
		}))
		defer server.Close()

		gw := testGateway(server.URL, server.Client())

		_, err := gw.CreateSession(context.Background(), &domain.Order{})
		var upstream *domain.UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected upstream error, got %v", err)
		}
	})
}

func TestGateway_HostedCheckoutURL(t *testing.T) {
	gw := testGateway("https://api.stripe.com", nil)

	want := "https://checkout.stripe.com/c/pay/cs_test_1"
	if got := gw.HostedCheckoutURL("cs_test_1"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestGateway_ParseWebhook(t *testing.T) {
	gw := testGateway("https://api.stripe.com", nil)

	sign := func(payload []byte) string {
		return Sign(webhookSecret, payload, testNow)
	}

	t.Run("completed session maps to approved", func(t *testing.T) {
		payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_1"}}}`)

		event, err := gw.ParseWebhook(payload, sign(payload))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Kind != payment.KindApproved || event.ProviderRef != "cs_test_1" {
			t.Errorf("unexpected event %+v", event)
		}
	})

	t.Run("async payment succeeded maps to captured", func(t *testing.T) {
		payload := []byte(`{"type":"checkout.session.async_payment_succeeded","data":{"object":{"id":"cs_test_1"}}}`)

		event, err := gw.ParseWebhook(payload, sign(payload))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Kind != payment.KindCaptured || event.ProviderRef != "cs_test_1" {
			t.Errorf("unexpected event %+v", event)
		}
	})

	t.Run("unknown event type is ignored", func(t *testing.T) {
		payload := []byte(`{"type":"invoice.created","data":{"object":{"id":"in_1"}}}`)

		event, err := gw.ParseWebhook(payload, sign(payload))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if event.Kind != payment.KindIgnored {
			t.Errorf("expected ignored, got %+v", event)
		}
	})

	t.Run("missing signature is rejected", func(t *testing.T) {
		payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_1"}}}`)

		if _, err := gw.ParseWebhook(payload, ""); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_1"}}}`)
		signature := Sign("whsec_other", payload, testNow)

		if _, err := gw.ParseWebhook(payload, signature); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("tampered payload is rejected", func(t *testing.T) {
		payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_1"}}}`)
		signature := sign(payload)
		tampered := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_evil_9"}}}`)

		if _, err := gw.ParseWebhook(tampered, signature); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("stale timestamp is rejected", func(t *testing.T) {
		payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_1"}}}`)
		signature := Sign(webhookSecret, payload, testNow.Add(-10*time.Minute))

		if _, err := gw.ParseWebhook(payload, signature); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Errorf("expected ErrInvalidSignature, got %v", err)
		}
	})
}
