package domain

import "time"

type OrderPlacedEvent struct {
	OrderID     string      `json:"order_id"`
	OrderNumber int         `json:"order_number"`
	Items       []OrderItem `json:"items"`
	Total       int64       `json:"total"`
	Timestamp   time.Time   `json:"timestamp"`
}

type OrderPaidEvent struct {
	OrderID     string          `json:"order_id"`
	OrderNumber int             `json:"order_number"`
	Provider    PaymentProvider `json:"provider"`
	Items       []OrderItem     `json:"items"`
	Total       int64           `json:"total"`
	Timestamp   time.Time       `json:"timestamp"`
}
