package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"counterserve/internal/domain"
)

// Repository is the slice of the order store the settlement flow needs.
type Repository interface {
	Save(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByProviderRef(ctx context.Context, provider domain.PaymentProvider, ref string) (*domain.Order, error)
}

// EventPublisher emits the order paid event once funds are captured.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Settlement drives an order from checkout through provider approval to
// paid. Every entry point re-reads the current order before writing, so
// user retries and duplicate webhook deliveries against a settled order
// collapse into no-ops or conflicts instead of double captures.
type Settlement struct {
	registry  Registry
	repo      Repository
	publisher EventPublisher
	publicURL string
	now       func() time.Time
	logger    *slog.Logger
}

func NewSettlement(registry Registry, repo Repository, publisher EventPublisher, publicURL string, now func() time.Time, logger *slog.Logger) *Settlement {
	if now == nil {
		now = time.Now
	}
	return &Settlement{
		registry:  registry,
		repo:      repo,
		publisher: publisher,
		publicURL: publicURL,
		now:       now,
		logger:    logger,
	}
}

// PaymentArtifact is the scannable payload handed back to the storefront;
// the QR rendering itself happens client-side.
type PaymentArtifact struct {
	Provider    domain.PaymentProvider `json:"provider"`
	ProviderRef string                 `json:"provider_ref"`
	ApprovalURL string                 `json:"approval_url"`
}

// StartPayment creates a remote payment session for the order and returns
// the approval artifact. A provider failure leaves the order exactly as it
// was.
func (s *Settlement) StartPayment(ctx context.Context, orderID string, provider domain.PaymentProvider) (*PaymentArtifact, error) {
	gw, ok := s.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q", provider)
	}

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.Status.Immutable() {
		return nil, &domain.ConflictError{Status: order.Status}
	}

	ref := order.ProviderRef(provider)
	if ref == "" {
		ref, err = gw.CreateSession(ctx, order)
		if err != nil {
			return nil, err
		}

		order.SetProviderRef(provider, ref)
		order.UpdatedAt = s.now()
		if err := s.repo.Save(ctx, order); err != nil {
			return nil, fmt.Errorf("persist provider ref: %w", err)
		}
	}

	s.logger.Info("payment session created", "order_id", order.ID, "provider", provider, "provider_ref", ref)
	return s.artifact(provider, ref), nil
}

// artifact builds the redirect target encoded into the QR code. It points
// back at this service's approve endpoint, which records the approval
// attempt before bouncing to the provider's hosted page.
func (s *Settlement) artifact(provider domain.PaymentProvider, ref string) *PaymentArtifact {
	return &PaymentArtifact{
		Provider:    provider,
		ProviderRef: ref,
		ApprovalURL: fmt.Sprintf("%s/pay/%s/%s", s.publicURL, provider, ref),
	}
}

// Approve handles the customer landing on the scanned link: the order moves
// to approving and the customer is sent to the provider's hosted checkout.
// Re-scans of a settled order fail with a conflict instead of reopening it.
func (s *Settlement) Approve(ctx context.Context, provider domain.PaymentProvider, ref string) (string, error) {
	gw, ok := s.registry.Get(provider)
	if !ok {
		return "", fmt.Errorf("unknown payment provider %q", provider)
	}

	order, err := s.repo.GetByProviderRef(ctx, provider, ref)
	if err != nil {
		return "", fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return "", domain.ErrOrderNotFound
	}
	if order.Status.Immutable() {
		return "", &domain.ConflictError{Status: order.Status}
	}

	order.Status = domain.OrderStatusApproving
	order.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, order); err != nil {
		return "", fmt.Errorf("persist order: %w", err)
	}

	s.logger.Info("order approval started", "order_id", order.ID, "provider", provider)
	return gw.HostedCheckoutURL(ref), nil
}

// HandleWebhook applies a provider webhook delivery to the matching order.
// Unknown event types and unknown references return (nil, nil): webhook
// senders redeliver aggressively and harmless events must not page anyone.
// Deliveries that fail authentication are rejected with no side effects.
// Re-delivered capture events against an already paid order are a safe
// no-op; the current status is always re-read before any write.
func (s *Settlement) HandleWebhook(ctx context.Context, provider domain.PaymentProvider, payload []byte, signature string) (*domain.Order, error) {
	gw, ok := s.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q", provider)
	}

	event, err := gw.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	if event.Kind == KindIgnored || event.ProviderRef == "" {
		return nil, nil
	}

	order, err := s.repo.GetByProviderRef(ctx, provider, event.ProviderRef)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		s.logger.Warn("webhook for unknown provider ref", "provider", provider, "provider_ref", event.ProviderRef)
		return nil, nil
	}

	switch event.Kind {
	case KindApproved:
		return s.applyApproved(ctx, gw, order, event.ProviderRef)
	case KindCaptured:
		return s.applyCaptured(ctx, provider, order)
	}
	return nil, nil
}

func (s *Settlement) applyApproved(ctx context.Context, gw Gateway, order *domain.Order, ref string) (*domain.Order, error) {
	if order.Status.Immutable() {
		// duplicate approval after settlement, nothing to do
		return order, nil
	}

	order.Status = domain.OrderStatusApproved
	order.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := gw.Capture(ctx, ref); err != nil {
		return nil, err
	}

	s.logger.Info("order approved, capture requested", "order_id", order.ID, "provider", gw.Provider())
	return order, nil
}

func (s *Settlement) applyCaptured(ctx context.Context, provider domain.PaymentProvider, order *domain.Order) (*domain.Order, error) {
	if order.Status.Immutable() {
		// redelivered capture event, already settled
		return order, nil
	}

	order.Status = domain.OrderStatusPaid
	order.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if s.publisher != nil {
		event := domain.OrderPaidEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Provider:    provider,
			Items:       order.Items,
			Total:       order.Total(),
			Timestamp:   order.UpdatedAt,
		}
		if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
			s.logger.Error("failed to publish order paid event", "error", err, "order_id", order.ID)
		}
	}

	s.logger.Info("order settled", "order_id", order.ID, "order_number", order.OrderNumber, "provider", provider)
	return order, nil
}
