package payment

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"counterserve/internal/domain"
	"counterserve/internal/telemetry"
)

// maxWebhookBody caps webhook payload size; providers send small JSON
// documents and anything larger is garbage.
const maxWebhookBody = 1 << 20

type Handler struct {
	settlement *Settlement
	metrics    *telemetry.OrderMetrics
	logger     *slog.Logger
}

func NewHandler(settlement *Settlement, metrics *telemetry.OrderMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		settlement: settlement,
		metrics:    metrics,
		logger:     logger,
	}
}

func (h *Handler) HandleStartPayment(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	provider := domain.PaymentProvider(r.PathValue("provider"))
	if orderID == "" || !provider.Valid() {
		h.writeError(w, http.StatusBadRequest, "missing order id or unknown provider")
		return
	}

	artifact, err := h.settlement.StartPayment(r.Context(), orderID, provider)
	if err != nil {
		h.writeDomainError(w, err, "failed to start payment")
		return
	}

	h.writeJSON(w, http.StatusCreated, artifact)
}

// HandleApprove is where the scanned QR code lands: it records the approval
// attempt and bounces the customer to the provider's hosted checkout.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	provider := domain.PaymentProvider(r.PathValue("provider"))
	ref := r.PathValue("ref")
	if !provider.Valid() || ref == "" {
		h.writeError(w, http.StatusBadRequest, "unknown provider or missing reference")
		return
	}

	checkoutURL, err := h.settlement.Approve(r.Context(), provider, ref)
	if err != nil {
		h.writeDomainError(w, err, "failed to approve order")
		return
	}

	http.Redirect(w, r, checkoutURL, http.StatusFound)
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := domain.PaymentProvider(r.PathValue("provider"))
	if !provider.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read payload")
		return
	}

	signature := r.Header.Get("Stripe-Signature")

	order, err := h.settlement.HandleWebhook(r.Context(), provider, payload, signature)
	if err != nil {
		h.writeDomainError(w, err, "failed to process webhook")
		return
	}

	if h.metrics != nil {
		h.metrics.WebhooksProcessed.Add(r.Context(), 1, telemetry.ProviderAttr(string(provider)))
		if order != nil && order.Status == domain.OrderStatusPaid {
			h.metrics.PaymentsSettled.Add(r.Context(), 1, telemetry.ProviderAttr(string(provider)))
		}
	}

	if order == nil {
		// unknown event type or reference, acknowledged so the provider
		// stops redelivering
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, logMsg string) {
	var conflict *domain.ConflictError
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrInvalidSignature):
		h.logger.Warn("webhook rejected", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid signature")
	case errors.As(err, &conflict):
		h.writeError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &upstream):
		h.logger.Error(logMsg, "error", err, "provider", upstream.Provider)
		h.writeError(w, http.StatusBadGateway, "payment provider unavailable")
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
