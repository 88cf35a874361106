package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"counterserve/internal/domain"
	"counterserve/internal/telemetry"
)

const sessionCookie = "counterserve_session"

type Handler struct {
	service *Service
	metrics *telemetry.OrderMetrics
	logger  *slog.Logger
}

func NewHandler(service *Service, metrics *telemetry.OrderMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// sessionID reads the browser's session cookie, issuing a fresh one on
// first contact. The cookie is the only thing tying a browser to its cart.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (h *Handler) HandleGetCart(w http.ResponseWriter, r *http.Request) {
	order := h.service.Cart(h.sessionID(w, r))
	h.writeJSON(w, http.StatusOK, order)
}

type addItemRequest struct {
	ItemRef  string `json:"item_ref"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ItemRef == "" || req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "item_ref and a positive quantity are required")
		return
	}

	order, err := h.service.AddItem(r.Context(), h.sessionID(w, r), req.ItemRef, req.Quantity)
	if err != nil {
		h.writeDomainError(w, err, "failed to add item")
		return
	}

	h.logger.Info("item added to cart", "item_ref", req.ItemRef, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.PlaceOrder(r.Context(), h.sessionID(w, r))
	if err != nil {
		h.writeDomainError(w, err, "failed to place order")
		return
	}

	if h.metrics != nil {
		h.metrics.OrdersPlaced.Add(r.Context(), 1)
	}
	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleRemoveOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.RemoveOrder(r.Context(), h.sessionID(w, r))
	if err != nil {
		h.writeDomainError(w, err, "failed to remove order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleListFulfillment(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListFulfillmentOrders(r.Context())
	if err != nil {
		h.logger.Error("failed to list fulfillment orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleAdvanceStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	order, err := h.service.AdvanceStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeDomainError(w, err, "failed to advance order status")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, logMsg string) {
	var conflict *domain.ConflictError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrMenuItemNotFound):
		h.writeError(w, http.StatusNotFound, "menu item not found")
	case errors.Is(err, domain.ErrEmptyOrder):
		h.writeError(w, http.StatusBadRequest, "order has no items")
	case errors.As(err, &conflict):
		h.writeError(w, http.StatusConflict, conflict.Error())
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
