package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/gateway"
	"shop-service/internal/models"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutService converts a cart into a payment intent plus a pending
// order. The intent is created first so its id is known; the order and
// its items are then written in one transaction. If that write fails
// the intent is cancelled best-effort before the error surfaces.
type CheckoutService struct {
	store          OrderStore
	gateway        PaymentGateway
	publisher      EventPublisher
	currency       string
	gatewayTimeout time.Duration
	logger         *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	store OrderStore,
	gw PaymentGateway,
	publisher EventPublisher,
	currency string,
	gatewayTimeout time.Duration,
) *CheckoutService {
	return &CheckoutService{
		store:          store,
		gateway:        gw,
		publisher:      publisher,
		currency:       currency,
		gatewayTimeout: gatewayTimeout,
		logger:         util.GetLogger(),
	}
}

// CheckoutItemRequest is one cart line submitted at checkout
type CheckoutItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// CheckoutRequest is the body of the checkout creation endpoint
type CheckoutRequest struct {
	Items    []CheckoutItemRequest  `json:"items"`
	Email    string                 `json:"email" binding:"required,email"`
	Shipping models.ShippingAddress `json:"shipping"`
}

// CheckoutResponse carries the gateway's client-usable secret and the
// new order id back to the storefront.
type CheckoutResponse struct {
	ClientSecret string `json:"clientSecret"`
	OrderID      string `json:"orderId"`
}

// Checkout runs the full checkout flow for a cart
func (cs *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	if err := validateCheckout(req); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	products, err := cs.loadProducts(ctx, req.Items)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	// Unit prices are re-read from the catalog here and snapshotted
	// into the order items, so later price changes cannot affect
	// already-placed orders.
	var total float64
	manifest := make([]gateway.ManifestItem, 0, len(req.Items))
	for _, item := range req.Items {
		product := products[item.ProductID]
		total += product.BasePrice * float64(item.Quantity)
		manifest = append(manifest, gateway.ManifestItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	amountMinor := models.ToMinorUnits(total)

	intent, err := cs.createIntent(ctx, amountMinor, req.Email, manifest)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		Email:           req.Email,
		Name:            req.Shipping.Name,
		Phone:           req.Shipping.Phone,
		PaymentIntentID: intent.ID,
		TotalAmount:     total,
		Status:          models.OrderStatusPending,
		ShippingAddress: marshalShipping(req.Shipping),
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.OrderItem{
			ID:        uuid.New().String(),
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: products[item.ProductID].BasePrice,
		})
	}

	if err := cs.store.CreateOrderWithItems(ctx, order, items); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("persistence").Inc()
		cs.cancelOrphanedIntent(intent.ID)
		return nil, &PersistenceError{Err: err}
	}

	util.CheckoutTotal.Inc()
	cs.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount_minor", amountMinor))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:         order.ID,
		PaymentIntentID: intent.ID,
		Email:           order.Email,
		AmountMinor:     amountMinor,
		Items:           itemData(items),
	}
	if err := cs.publisher.PublishOrderCreated(ctx, event); err != nil {
		cs.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CheckoutResponse{
		ClientSecret: intent.ClientSecret,
		OrderID:      order.ID,
	}, nil
}

// createIntent calls the gateway under an explicit deadline so a hung
// gateway cannot block the checkout request indefinitely.
func (cs *CheckoutService) createIntent(ctx context.Context, amountMinor int64, email string, manifest []gateway.ManifestItem) (*gateway.PaymentIntent, error) {
	gctx, cancel := context.WithTimeout(ctx, cs.gatewayTimeout)
	defer cancel()

	start := time.Now()
	intent, err := cs.gateway.CreateIntent(gctx, gateway.CreateIntentParams{
		AmountMinor:  amountMinor,
		Currency:     cs.currency,
		ReceiptEmail: email,
		Manifest:     manifest,
	})
	util.GatewayRequestLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded) || gctx.Err() == context.DeadlineExceeded
		reason := "gateway"
		if timeout {
			reason = "gateway_timeout"
		}
		util.CheckoutFailedTotal.WithLabelValues(reason).Inc()
		return nil, &GatewayError{Err: err, Timeout: timeout}
	}
	return intent, nil
}

// cancelOrphanedIntent voids an intent whose order insert failed. Done
// on a fresh context because the request context may already be gone.
func (cs *CheckoutService) cancelOrphanedIntent(intentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cs.gatewayTimeout)
	defer cancel()

	if err := cs.gateway.CancelIntent(ctx, intentID); err != nil {
		cs.logger.Error("Failed to cancel orphaned payment intent",
			zap.String("payment_intent_id", intentID),
			zap.Error(err))
	}
}

// GetOrder retrieves an order with its items for the confirmation page
func (cs *CheckoutService) GetOrder(ctx context.Context, orderID string) (*models.Order, []models.OrderItem, error) {
	order, err := cs.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := cs.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func (cs *CheckoutService) loadProducts(ctx context.Context, items []CheckoutItemRequest) (map[string]*models.Product, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	products, err := cs.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	productMap := make(map[string]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	for _, item := range items {
		if _, ok := productMap[item.ProductID]; !ok {
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown product: %s", item.ProductID)}
		}
	}
	return productMap, nil
}

func validateCheckout(req *CheckoutRequest) error {
	if len(req.Items) == 0 {
		return &ValidationError{Reason: "cart is empty"}
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return &ValidationError{Reason: "item quantity must be positive"}
		}
	}
	if req.Email == "" {
		return &ValidationError{Reason: "email is required"}
	}
	if req.Shipping.Name == "" || req.Shipping.Address == "" {
		return &ValidationError{Reason: "shipping name and address are required"}
	}
	return nil
}

func marshalShipping(shipping models.ShippingAddress) string {
	raw, _ := json.Marshal(shipping)
	return string(raw)
}

func itemData(items []models.OrderItem) []models.OrderItemData {
	data := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		data = append(data, models.OrderItemData{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return data
}
