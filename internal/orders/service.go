package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"counterserve/internal/domain"
	"counterserve/internal/session"
)

// Repository is the durable store for orders, satisfied by OrderRepository.
type Repository interface {
	Save(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByProviderRef(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Order, error)
	Delete(ctx context.Context, id string) error
	TopOrderNumberSince(ctx context.Context, since time.Time) (int, error)
	ListByStatusUpdatedAfter(ctx context.Context, statuses []domain.OrderStatus, after time.Time) ([]domain.Order, error)
	GetMenuItem(ctx context.Context, itemRef string) (*domain.OrderItem, error)
}

// EventPublisher emits lifecycle events; satisfied by messaging.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Service drives the order lifecycle: cart mutations inside the customer
// session, placement, cancellation and the kitchen view.
type Service struct {
	sessions  *session.Manager
	repo      Repository
	sequencer *Sequencer
	publisher EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(sessions *session.Manager, repo Repository, sequencer *Sequencer, publisher EventPublisher, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		sessions:  sessions,
		repo:      repo,
		sequencer: sequencer,
		publisher: publisher,
		now:       now,
		logger:    logger,
	}
}

// Cart returns the current draft order, creating the session and an empty
// pending draft if needed.
func (s *Service) Cart(sessionID string) *domain.Order {
	sess := s.sessions.Get(sessionID)
	if sess.Order != nil {
		return sess.Order
	}

	order, _ := s.sessions.UpdateOrder(sessionID, func(order *domain.Order) {
		if order.Status == "" {
			order.Status = domain.OrderStatusPending
		}
	})
	return order
}

// currentStatus returns the authoritative status for a session order.
// Settlement webhooks write to the repository directly and never see the
// session, so a placed order's session snapshot can be behind the store.
func (s *Service) currentStatus(ctx context.Context, order *domain.Order) (domain.OrderStatus, error) {
	if order == nil {
		return domain.OrderStatusPending, nil
	}
	if order.ID == "" {
		return order.Status, nil
	}

	current, err := s.repo.GetByID(ctx, order.ID)
	if err != nil {
		return "", fmt.Errorf("load order: %w", err)
	}
	if current == nil {
		return order.Status, nil
	}
	return current.Status, nil
}

// AddItem resolves the menu item, snapshots its current price and appends it
// to the draft order. The snapshot is immune to later menu price changes.
func (s *Service) AddItem(ctx context.Context, sessionID, itemRef string, quantity int) (*domain.Order, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	item, err := s.repo.GetMenuItem(ctx, itemRef)
	if err != nil {
		return nil, fmt.Errorf("resolve menu item: %w", err)
	}
	if item == nil {
		return nil, domain.ErrMenuItemNotFound
	}
	item.Quantity = quantity

	sess := s.sessions.Get(sessionID)
	status, err := s.currentStatus(ctx, sess.Order)
	if err != nil {
		return nil, err
	}
	if status.Immutable() {
		return nil, &domain.ConflictError{Status: status}
	}

	order, ok := s.sessions.UpdateOrder(sessionID, func(order *domain.Order) {
		if order.Status == "" {
			order.Status = domain.OrderStatusPending
		}
		order.Items = append(order.Items, *item)
	})
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return order, nil
}

// PlaceOrder turns the session's draft cart into a durable, numbered order
// in checkout status. The persisted order is written back into the session
// so the payment step sees the same record.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string) (*domain.Order, error) {
	sess := s.sessions.Renew(sessionID)
	if sess == nil || sess.Order == nil {
		return nil, domain.ErrSessionNotFound
	}

	order := sess.Order
	if order.ID != "" {
		// already placed: a double-submitted request must not mint a
		// second row or number for the same cart
		current, err := s.repo.GetByID(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("load order: %w", err)
		}
		if current != nil {
			s.sessions.StoreOrder(sessionID, current)
			return current, nil
		}
	}

	if len(order.Items) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	now := s.now()
	order.ID = uuid.New().String()
	order.OrderNumber = s.sequencer.Next(ctx)
	order.Status = domain.OrderStatusCheckout
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := s.repo.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	s.sessions.StoreOrder(sessionID, order)

	if s.publisher != nil {
		event := domain.OrderPlacedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Items:       order.Items,
			Total:       order.Total(),
			Timestamp:   now,
		}
		if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
			s.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
		}
	}

	s.logger.Info("order placed", "order_id", order.ID, "order_number", order.OrderNumber, "total", order.Total())
	return order, nil
}

// RemoveOrder cancels the session's order. Orders are only deletable before
// payment; afterwards the record is permanent and removal fails with a
// conflict naming the current status. Immutability is judged against the
// persisted record, not the session snapshot: a capture webhook may have
// settled the order since the session last saw it. The returned order is
// reset to a fresh pending draft so the session can start over.
func (s *Service) RemoveOrder(ctx context.Context, sessionID string) (*domain.Order, error) {
	sess := s.sessions.Renew(sessionID)
	if sess == nil || sess.Order == nil {
		return nil, domain.ErrSessionNotFound
	}

	order := sess.Order
	status, err := s.currentStatus(ctx, order)
	if err != nil {
		return nil, err
	}
	if status.Immutable() {
		return nil, &domain.ConflictError{Status: status}
	}

	if order.ID != "" {
		if err := s.repo.Delete(ctx, order.ID); err != nil {
			return nil, fmt.Errorf("delete order: %w", err)
		}
	}

	removedID := order.ID
	order.ID = ""
	order.OrderNumber = 0
	order.PayPalRef = ""
	order.StripeRef = ""
	order.Items = nil
	order.Status = domain.OrderStatusPending
	s.sessions.StoreOrder(sessionID, order)

	s.logger.Info("order removed", "order_id", removedID)
	return order, nil
}

// ListFulfillmentOrders returns the kitchen view: paid, in-progress and
// ready orders touched within the rolling fulfillment day.
func (s *Service) ListFulfillmentOrders(ctx context.Context) ([]domain.Order, error) {
	after := s.now().Add(-24 * time.Hour)
	return s.repo.ListByStatusUpdatedAfter(ctx, domain.FulfillmentStatuses(), after)
}

// AdvanceStatus applies a kitchen-driven transition (paid -> in_progress ->
// ready -> delivered). Anything the state machine refuses surfaces as a
// conflict with the order's current status.
func (s *Service) AdvanceStatus(ctx context.Context, orderID string, next domain.OrderStatus) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	if !order.Status.CanTransition(next) {
		return nil, &domain.ConflictError{Status: order.Status}
	}

	order.Status = next
	order.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	s.logger.Info("order status advanced", "order_id", order.ID, "status", order.Status)
	return order, nil
}
