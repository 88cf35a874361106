package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("session not found or expired")
	ErrOrderNotFound    = errors.New("order not found")
	ErrMenuItemNotFound = errors.New("menu item not found")

	// ErrEmptyOrder is returned when placement is attempted on a cart with
	// no items.
	ErrEmptyOrder = errors.New("order has no items")

	// ErrInvalidSignature is returned when a webhook payload fails its
	// authenticity check. The payload is always discarded without side
	// effects.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ConflictError is returned when an operation would mutate an order whose
// status no longer allows it, e.g. cancelling or re-approving a paid order.
type ConflictError struct {
	Status OrderStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order is %s and can no longer be modified", e.Status)
}

// UpstreamError wraps a failed call to an external payment provider. The
// order is left untouched; the caller may retry the whole step.
type UpstreamError struct {
	Provider PaymentProvider
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
