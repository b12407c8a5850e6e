package models

import (
	"math"
	"time"
)

// Product represents a catalog product
type Product struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	BasePrice   float64   `db:"base_price" json:"base_price"`
	Category    string    `db:"category" json:"category"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ProductVariant represents a size/color variant of a product
type ProductVariant struct {
	ID        string `db:"id" json:"id"`
	ProductID string `db:"product_id" json:"product_id"`
	Size      string `db:"size" json:"size"`
	Color     string `db:"color" json:"color"`
	Stock     int    `db:"stock" json:"stock"`
	SKU       string `db:"sku" json:"sku"`
}

// ShippingAddress is the structured shipping contact on an order
type ShippingAddress struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// Order represents a customer order. Exactly one order exists per
// payment intent; the webhook reconciler looks orders up by PaymentIntentID.
type Order struct {
	ID              string    `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	Name            string    `db:"name" json:"name"`
	Phone           string    `db:"phone" json:"phone"`
	PaymentIntentID string    `db:"payment_intent_id" json:"payment_intent_id"`
	TotalAmount     float64   `db:"total_amount" json:"total_amount"`
	Status          string    `db:"status" json:"status"`
	ShippingAddress string    `db:"shipping_address" json:"shipping_address"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem represents one line of an order. UnitPrice is a snapshot
// taken at order creation and never mutated afterwards.
type OrderItem struct {
	ID        string  `db:"id" json:"id"`
	OrderID   string  `db:"order_id" json:"order_id"`
	ProductID string  `db:"product_id" json:"product_id"`
	VariantID string  `db:"variant_id" json:"variant_id"`
	Quantity  int     `db:"quantity" json:"quantity"`
	UnitPrice float64 `db:"unit_price" json:"unit_price"`
}

// CartLine is one line of a shopper's cart, keyed by variant
type CartLine struct {
	Product  Product        `json:"product"`
	Variant  ProductVariant `json:"variant"`
	Quantity int            `json:"quantity"`
	Position int            `json:"position"`
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusPaid       = "paid"
	OrderStatusFailed     = "failed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusShipped    = "shipped"
)

// allowedPrior defines the status lattice: a transition applies only
// when the stored status is in the target's prior set. No terminal
// status appears as a prior of another terminal status, so the first
// terminal event wins and replays are no-ops.
var allowedPrior = map[string][]string{
	OrderStatusProcessing: {OrderStatusPending},
	OrderStatusPaid:       {OrderStatusPending, OrderStatusProcessing},
	OrderStatusFailed:     {OrderStatusPending, OrderStatusProcessing},
	OrderStatusCancelled:  {OrderStatusPending, OrderStatusProcessing},
	OrderStatusShipped:    {OrderStatusPaid},
}

// AllowedPriorStatuses returns the statuses from which a transition to
// the given status is permitted. Empty means the status is never a
// transition target (pending only exists at creation).
func AllowedPriorStatuses(to string) []string {
	return allowedPrior[to]
}

// ToMinorUnits converts a decimal amount to currency minor units
// (cents) using round-half-up semantics.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Floor(amount*100 + 0.5))
}

// ProcessedEvent records an already-applied broker event for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
