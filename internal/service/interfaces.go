package service

import (
	"context"

	"shop-service/internal/gateway"
	"shop-service/internal/models"
)

// OrderStore is the persistence surface the services depend on.
// *store.Store implements it; tests substitute doubles.
type OrderStore interface {
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	GetVariantByID(ctx context.Context, id string) (*models.ProductVariant, error)
	CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error)
	TransitionOrderByIntent(ctx context.Context, intentID, toStatus string) (bool, error)
	TransitionOrderByID(ctx context.Context, orderID, toStatus string) (bool, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error)
	DecrementStock(ctx context.Context, variantID string, quantity int) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// PaymentGateway is the slice of the gateway API the checkout flow uses
type PaymentGateway interface {
	CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.PaymentIntent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// CartRepository persists cart lines keyed by cart id and variant id.
// *redisclient.Client implements it.
type CartRepository interface {
	Lines(ctx context.Context, cartID string) ([]models.CartLine, error)
	PutLine(ctx context.Context, cartID string, line models.CartLine) error
	RemoveLine(ctx context.Context, cartID, variantID string) error
	Clear(ctx context.Context, cartID string) error
}

// EventPublisher publishes order lifecycle events to the broker
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error
}
