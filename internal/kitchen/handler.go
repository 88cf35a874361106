// Package kitchen consumes settled orders and turns them into tickets for
// the line. Accepting a ticket moves the order to in_progress through the
// orders API; the remaining progression (ready, delivered) is driven by
// staff from the kitchen view.
package kitchen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"counterserve/internal/domain"
)

type TicketHandler struct {
	ordersServiceURL string
	httpClient       *http.Client
	logger           *slog.Logger
}

func NewTicketHandler(ordersServiceURL string, client *http.Client, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{
		ordersServiceURL: ordersServiceURL,
		httpClient:       client,
		logger:           logger,
	}
}

func (h *TicketHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderPaidEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order paid event: %w", err)
	}

	h.logger.Info("ticket received",
		"order_id", event.OrderID,
		"order_number", event.OrderNumber,
		"items", len(event.Items),
		"total", event.Total,
	)

	if err := h.acceptTicket(ctx, event.OrderID); err != nil {
		h.logger.Error("failed to accept ticket", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("accept ticket: %w", err)
	}

	h.logger.Info("ticket accepted onto the line", "order_id", event.OrderID, "order_number", event.OrderNumber)
	return nil
}

func (h *TicketHandler) acceptTicket(ctx context.Context, orderID string) error {
	body := map[string]string{
		"status": string(domain.OrderStatusInProgress),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/kitchen/orders/%s/status", h.ordersServiceURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// a conflict means the ticket was already accepted, e.g. after a
	// redelivered event; that is not a failure
	if resp.StatusCode == http.StatusConflict {
		h.logger.Info("ticket already accepted", "order_id", orderID)
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}

	return nil
}
