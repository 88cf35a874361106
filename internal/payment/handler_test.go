package payment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"counterserve/internal/domain"
)

func newTestMux(s *Settlement) *http.ServeMux {
	handler := NewHandler(s, nil, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders/{id}/payments/{provider}", handler.HandleStartPayment)
	mux.HandleFunc("GET /pay/{provider}/{ref}", handler.HandleApprove)
	mux.HandleFunc("POST /webhooks/{provider}", handler.HandleWebhook)
	return mux
}

func TestHandler_StartPayment(t *testing.T) {
	t.Run("returns the approval artifact", func(t *testing.T) {
		repo := newMemRepo(checkoutOrder())
		gw := &fakeGateway{provider: domain.ProviderPayPal, sessionRef: "PP-REF-1"}
		mux := newTestMux(newSettlement(gw, repo, nil))

		req := httptest.NewRequest(http.MethodPost, "/orders/order-1/payments/paypal", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var artifact PaymentArtifact
		if err := json.NewDecoder(rec.Body).Decode(&artifact); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if artifact.ApprovalURL != "https://store.example/pay/paypal/PP-REF-1" {
			t.Errorf("unexpected approval url %s", artifact.ApprovalURL)
		}
	})

	t.Run("unknown provider yields 400", func(t *testing.T) {
		mux := newTestMux(newSettlement(&fakeGateway{provider: domain.ProviderPayPal}, newMemRepo(), nil))

		req := httptest.NewRequest(http.MethodPost, "/orders/order-1/payments/applepay", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("paid order yields 409", func(t *testing.T) {
		order := checkoutOrder()
		order.Status = domain.OrderStatusPaid
		mux := newTestMux(newSettlement(&fakeGateway{provider: domain.ProviderPayPal}, newMemRepo(order), nil))

		req := httptest.NewRequest(http.MethodPost, "/orders/order-1/payments/paypal", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("provider outage yields 502", func(t *testing.T) {
		gw := &fakeGateway{
			provider:   domain.ProviderPayPal,
			sessionErr: &domain.UpstreamError{Provider: domain.ProviderPayPal, Err: http.ErrHandlerTimeout},
		}
		mux := newTestMux(newSettlement(gw, newMemRepo(checkoutOrder()), nil))

		req := httptest.NewRequest(http.MethodPost, "/orders/order-1/payments/paypal", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})
}

func TestHandler_Approve(t *testing.T) {
	t.Run("redirects to the hosted checkout", func(t *testing.T) {
		order := checkoutOrder()
		order.PayPalRef = "PP-REF-1"
		mux := newTestMux(newSettlement(&fakeGateway{provider: domain.ProviderPayPal}, newMemRepo(order), nil))

		req := httptest.NewRequest(http.MethodGet, "/pay/paypal/PP-REF-1", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		if got := rec.Header().Get("Location"); got != "https://provider.example/checkout/PP-REF-1" {
			t.Errorf("unexpected redirect target %s", got)
		}
	})

	t.Run("unknown ref yields 404", func(t *testing.T) {
		mux := newTestMux(newSettlement(&fakeGateway{provider: domain.ProviderPayPal}, newMemRepo(), nil))

		req := httptest.NewRequest(http.MethodGet, "/pay/paypal/missing", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("paid order yields 409", func(t *testing.T) {
		order := checkoutOrder()
		order.Status = domain.OrderStatusPaid
		order.PayPalRef = "PP-REF-1"
		mux := newTestMux(newSettlement(&fakeGateway{provider: domain.ProviderPayPal}, newMemRepo(order), nil))

		req := httptest.NewRequest(http.MethodGet, "/pay/paypal/PP-REF-1", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})
}

func TestHandler_Webhook(t *testing.T) {
	t.Run("settles the order", func(t *testing.T) {
		order := checkoutOrder()
		order.PayPalRef = "PP-REF-1"
		gw := &fakeGateway{
			provider: domain.ProviderPayPal,
			event:    WebhookEvent{Kind: KindCaptured, ProviderRef: "PP-REF-1"},
		}
		mux := newTestMux(newSettlement(gw, newMemRepo(order), nil))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var result domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result.Status != domain.OrderStatusPaid {
			t.Errorf("expected paid, got %s", result.Status)
		}
	})

	t.Run("ignored event is acknowledged with 200", func(t *testing.T) {
		gw := &fakeGateway{provider: domain.ProviderPayPal, event: WebhookEvent{Kind: KindIgnored}}
		mux := newTestMux(newSettlement(gw, newMemRepo(), nil))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["status"] != "ignored" {
			t.Errorf("expected ignored acknowledgement, got %+v", resp)
		}
	})

	t.Run("bad signature yields 400", func(t *testing.T) {
		gw := &fakeGateway{provider: domain.ProviderStripe, eventErr: domain.ErrInvalidSignature}
		mux := newTestMux(newSettlement(gw, newMemRepo(), nil))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
		req.Header.Set("Stripe-Signature", "t=1,v1=bad")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}
