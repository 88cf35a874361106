package payment

import (
	"context"

	"counterserve/internal/domain"
)

// EventKind classifies the webhook events this engine models. Everything
// else a provider sends is KindIgnored: providers retry aggressively, so
// unknown-but-harmless events must stay a silent no-op.
type EventKind int

const (
	KindIgnored EventKind = iota
	KindApproved
	KindCaptured
)

// WebhookEvent is the provider-neutral view of a webhook delivery.
type WebhookEvent struct {
	Kind        EventKind
	ProviderRef string
}

// Gateway is the per-provider adapter contract. Both providers honor the
// same shape; callers dispatch through the registry and never branch on the
// concrete type.
type Gateway interface {
	Provider() domain.PaymentProvider

	// CreateSession registers the order with the provider and returns the
	// provider's reference. Failures leave the order untouched.
	CreateSession(ctx context.Context, order *domain.Order) (string, error)

	// HostedCheckoutURL is the provider page a customer lands on after
	// scanning the approval artifact.
	HostedCheckoutURL(ref string) string

	// Capture asks the provider to capture funds for an approved session.
	// Providers that capture automatically implement this as a no-op.
	Capture(ctx context.Context, ref string) error

	// ParseWebhook authenticates and decodes a raw webhook delivery.
	// Unrecognized event types come back as KindIgnored with no error.
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// Registry holds one gateway per provider.
type Registry map[domain.PaymentProvider]Gateway

func NewRegistry(gateways ...Gateway) Registry {
	reg := make(Registry, len(gateways))
	for _, gw := range gateways {
		reg[gw.Provider()] = gw
	}
	return reg
}

func (r Registry) Get(provider domain.PaymentProvider) (Gateway, bool) {
	gw, ok := r[provider]
	return gw, ok
}
