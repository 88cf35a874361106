package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusCheckout   OrderStatus = "checkout"
	OrderStatusApproving  OrderStatus = "approving"
	OrderStatusApproved   OrderStatus = "approved"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusReady      OrderStatus = "ready"
	OrderStatusDelivered  OrderStatus = "delivered"
)

// statusRank orders the lifecycle so "at or past paid" checks stay cheap.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusCheckout:   1,
	OrderStatusApproving:  2,
	OrderStatusApproved:   3,
	OrderStatusPaid:       4,
	OrderStatusInProgress: 5,
	OrderStatusReady:      6,
	OrderStatusDelivered:  7,
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Immutable reports whether funds have been captured for an order in this
// status. From paid onward the record may change status only, and may never
// be deleted.
func (s OrderStatus) Immutable() bool {
	return s.Valid() && statusRank[s] >= statusRank[OrderStatusPaid]
}

// CanTransition reports whether the state machine allows moving from s to
// next. Pre-payment statuses may shuffle freely between checkout, approving
// and approved (the approval flow is retried at will); paid is reachable
// from any pre-payment status via a capture event; after paid only the
// forward-only kitchen progression remains.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	switch {
	case s == OrderStatusPending:
		return next == OrderStatusCheckout
	case !s.Immutable():
		if next == OrderStatusPaid {
			return true
		}
		return next == OrderStatusCheckout || next == OrderStatusApproving || next == OrderStatusApproved
	default:
		return statusRank[next] == statusRank[s]+1
	}
}

type PaymentProvider string

const (
	ProviderPayPal PaymentProvider = "paypal"
	ProviderStripe PaymentProvider = "stripe"
)

func (p PaymentProvider) Valid() bool {
	return p == ProviderPayPal || p == ProviderStripe
}

// OrderItem is a snapshot taken when the item was added to the cart; later
// menu price changes never affect it.
type OrderItem struct {
	ItemRef   string `json:"item_ref"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type Order struct {
	ID          string      `json:"id,omitempty"`
	OrderNumber int         `json:"order_number,omitempty"`
	Items       []OrderItem `json:"items"`
	Status      OrderStatus `json:"status"`
	PayPalRef   string      `json:"paypal_ref,omitempty"`
	StripeRef   string      `json:"stripe_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty"`
}

// Total is the order price in cents.
func (o *Order) Total() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Quantity) * item.UnitPrice
	}
	return total
}

// ProviderRef returns the reference assigned by the given provider, empty if
// that provider was never engaged for this order.
func (o *Order) ProviderRef(p PaymentProvider) string {
	switch p {
	case ProviderPayPal:
		return o.PayPalRef
	case ProviderStripe:
		return o.StripeRef
	}
	return ""
}

func (o *Order) SetProviderRef(p PaymentProvider, ref string) {
	switch p {
	case ProviderPayPal:
		o.PayPalRef = ref
	case ProviderStripe:
		o.StripeRef = ref
	}
}

// Clone returns a deep copy of the order, items included.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	out := *o
	out.Items = append([]OrderItem(nil), o.Items...)
	return &out
}

// FulfillmentStatuses is the kitchen-relevant status set: orders being
// actively fulfilled. Delivered orders drop out of the kitchen view.
func FulfillmentStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPaid, OrderStatusInProgress, OrderStatusReady}
}
