package models

import "time"

// Event types published on the order lifecycle topic
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderPaid      = "ORDER_PAID"
	EventTypeOrderFailed    = "ORDER_FAILED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypeOrderShipped   = "ORDER_SHIPPED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when checkout creates a pending order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID         string          `json:"order_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Email           string          `json:"email"`
	AmountMinor     int64           `json:"amount_minor"`
	Items           []OrderItemData `json:"items"`
}

// OrderPaidEvent published when the reconciler applies the paid transition
type OrderPaidEvent struct {
	BaseEvent
	OrderID         string          `json:"order_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Items           []OrderItemData `json:"items"`
}

// OrderFailedEvent published when a payment fails
type OrderFailedEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Reason          string `json:"reason"`
}

// OrderCancelledEvent published when a payment intent is canceled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// OrderShippedEvent published by the fulfillment worker
type OrderShippedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
}

// OrderItemData represents item data carried in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}
