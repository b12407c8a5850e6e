package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"shop-service/internal/gateway"
	"shop-service/internal/models"
)

// mockStore is an in-memory OrderStore
type mockStore struct {
	products  map[string]models.Product
	variants  map[string]*models.ProductVariant
	orders    map[string]*models.Order
	items     map[string][]models.OrderItem
	processed map[string]bool

	createOrderErr error
	decrements     []string
}

func newMockStore() *mockStore {
	return &mockStore{
		products:  make(map[string]models.Product),
		variants:  make(map[string]*models.ProductVariant),
		orders:    make(map[string]*models.Order),
		items:     make(map[string][]models.OrderItem),
		processed: make(map[string]bool),
	}
}

func (m *mockStore) GetProductsByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	var out []models.Product
	seen := make(map[string]bool)
	for _, id := range ids {
		if p, ok := m.products[id]; ok && !seen[id] {
			out = append(out, p)
			seen[id] = true
		}
	}
	return out, nil
}

func (m *mockStore) GetVariantByID(_ context.Context, id string) (*models.ProductVariant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, fmt.Errorf("variant not found: %s", id)
	}
	return v, nil
}

func (m *mockStore) CreateOrderWithItems(_ context.Context, order *models.Order, items []models.OrderItem) error {
	if m.createOrderErr != nil {
		return m.createOrderErr
	}
	m.orders[order.ID] = order
	for i := range items {
		items[i].OrderID = order.ID
	}
	m.items[order.ID] = items
	return nil
}

func (m *mockStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", id)
	}
	return order, nil
}

func (m *mockStore) GetOrderByPaymentIntentID(_ context.Context, intentID string) (*models.Order, error) {
	for _, order := range m.orders {
		if order.PaymentIntentID == intentID {
			return order, nil
		}
	}
	return nil, nil
}

func (m *mockStore) TransitionOrderByIntent(ctx context.Context, intentID, toStatus string) (bool, error) {
	order, err := m.GetOrderByPaymentIntentID(ctx, intentID)
	if err != nil || order == nil {
		return false, err
	}
	return m.transition(order, toStatus), nil
}

func (m *mockStore) TransitionOrderByID(_ context.Context, orderID, toStatus string) (bool, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return false, nil
	}
	return m.transition(order, toStatus), nil
}

func (m *mockStore) transition(order *models.Order, toStatus string) bool {
	for _, prior := range models.AllowedPriorStatuses(toStatus) {
		if order.Status == prior {
			order.Status = toStatus
			return true
		}
	}
	return false
}

func (m *mockStore) GetOrderItemsByOrderID(_ context.Context, orderID string) ([]models.OrderItem, error) {
	return m.items[orderID], nil
}

func (m *mockStore) DecrementStock(_ context.Context, variantID string, quantity int) error {
	v, ok := m.variants[variantID]
	if !ok {
		return fmt.Errorf("variant not found: %s", variantID)
	}
	v.Stock -= quantity
	if v.Stock < 0 {
		v.Stock = 0
	}
	m.decrements = append(m.decrements, variantID)
	return nil
}

func (m *mockStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	return m.processed[eventID], nil
}

func (m *mockStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	m.processed[eventID] = true
	return nil
}

// mockGateway is a scriptable PaymentGateway
type mockGateway struct {
	createFn  func(ctx context.Context, params gateway.CreateIntentParams) (*gateway.PaymentIntent, error)
	created   []gateway.CreateIntentParams
	cancelled []string
}

func (m *mockGateway) CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.PaymentIntent, error) {
	m.created = append(m.created, params)
	if m.createFn != nil {
		return m.createFn(ctx, params)
	}
	return &gateway.PaymentIntent{
		ID:           "pi_test",
		Amount:       params.AmountMinor,
		Currency:     params.Currency,
		ClientSecret: "pi_test_secret",
	}, nil
}

func (m *mockGateway) CancelIntent(_ context.Context, intentID string) error {
	m.cancelled = append(m.cancelled, intentID)
	return nil
}

// mockPublisher records published events
type mockPublisher struct {
	created   []*models.OrderCreatedEvent
	paid      []*models.OrderPaidEvent
	failed    []*models.OrderFailedEvent
	cancelled []*models.OrderCancelledEvent
	shipped   []*models.OrderShippedEvent
}

func (m *mockPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	m.created = append(m.created, e)
	return nil
}

func (m *mockPublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	m.paid = append(m.paid, e)
	return nil
}

func (m *mockPublisher) PublishOrderFailed(_ context.Context, e *models.OrderFailedEvent) error {
	m.failed = append(m.failed, e)
	return nil
}

func (m *mockPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	m.cancelled = append(m.cancelled, e)
	return nil
}

func (m *mockPublisher) PublishOrderShipped(_ context.Context, e *models.OrderShippedEvent) error {
	m.shipped = append(m.shipped, e)
	return nil
}

// memCartRepo is an in-memory CartRepository
type memCartRepo struct {
	carts map[string]map[string]models.CartLine
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[string]map[string]models.CartLine)}
}

func (m *memCartRepo) Lines(_ context.Context, cartID string) ([]models.CartLine, error) {
	lines := make([]models.CartLine, 0, len(m.carts[cartID]))
	for _, line := range m.carts[cartID] {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].Position < lines[j].Position
	})
	return lines, nil
}

func (m *memCartRepo) PutLine(_ context.Context, cartID string, line models.CartLine) error {
	if m.carts[cartID] == nil {
		m.carts[cartID] = make(map[string]models.CartLine)
	}
	m.carts[cartID][line.Variant.ID] = line
	return nil
}

func (m *memCartRepo) RemoveLine(_ context.Context, cartID, variantID string) error {
	delete(m.carts[cartID], variantID)
	return nil
}

func (m *memCartRepo) Clear(_ context.Context, cartID string) error {
	delete(m.carts, cartID)
	return nil
}

var errStoreDown = errors.New("store unavailable")
