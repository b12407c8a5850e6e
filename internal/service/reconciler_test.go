package service

import (
	"context"
	"encoding/json"
	"testing"

	"shop-service/internal/gateway"
	"shop-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reconcilerFixture(t *testing.T) (*mockStore, *mockPublisher, *Reconciler) {
	t.Helper()

	st := newMockStore()
	vA := testVariant("vA", "p1", 10)
	vB := testVariant("vB", "p2", 4)
	st.variants["vA"] = &vA
	st.variants["vB"] = &vB

	st.orders["order-1"] = &models.Order{
		ID:              "order-1",
		PaymentIntentID: "pi_1",
		Status:          models.OrderStatusPending,
		TotalAmount:     55.50,
	}

	pub := &mockPublisher{}
	return st, pub, NewReconciler(st, pub)
}

func intentEvent(t *testing.T, eventType, intentID string, manifest []gateway.ManifestItem) *gateway.Event {
	t.Helper()

	event := &gateway.Event{ID: "evt_1", Type: eventType}
	event.Data.Object.ID = intentID
	if manifest != nil {
		raw, err := json.Marshal(manifest)
		require.NoError(t, err)
		event.Data.Object.Metadata = map[string]string{"items": string(raw)}
	}
	return event
}

func TestSucceededMovesOrderToPaidAndDecrementsStock(t *testing.T) {
	st, pub, r := reconcilerFixture(t)

	manifest := []gateway.ManifestItem{
		{ProductID: "p1", VariantID: "vA", Quantity: 2},
		{ProductID: "p2", VariantID: "vB", Quantity: 1},
	}
	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentSucceeded, "pi_1", manifest))

	assert.Equal(t, models.OrderStatusPaid, st.orders["order-1"].Status)
	assert.Equal(t, 8, st.variants["vA"].Stock)
	assert.Equal(t, 3, st.variants["vB"].Stock)
	require.Len(t, pub.paid, 1)
	assert.Equal(t, "order-1", pub.paid[0].OrderID)
}

func TestReplayedSucceededDoesNotDoubleDecrement(t *testing.T) {
	st, pub, r := reconcilerFixture(t)

	manifest := []gateway.ManifestItem{{ProductID: "p1", VariantID: "vA", Quantity: 2}}
	event := intentEvent(t, gateway.EventIntentSucceeded, "pi_1", manifest)

	r.HandleEvent(context.Background(), event)
	require.Equal(t, 8, st.variants["vA"].Stock)

	r.HandleEvent(context.Background(), event)

	assert.Equal(t, models.OrderStatusPaid, st.orders["order-1"].Status)
	assert.Equal(t, 8, st.variants["vA"].Stock, "replay must not decrement again")
	assert.Len(t, st.decrements, 1)
	assert.Len(t, pub.paid, 1)
}

func TestStockFloorsAtZero(t *testing.T) {
	st, _, r := reconcilerFixture(t)
	st.variants["vA"].Stock = 1

	manifest := []gateway.ManifestItem{{ProductID: "p1", VariantID: "vA", Quantity: 3}}
	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentSucceeded, "pi_1", manifest))

	assert.Equal(t, 0, st.variants["vA"].Stock)
}

func TestFailedEventMovesOrderToFailed(t *testing.T) {
	st, pub, r := reconcilerFixture(t)

	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentFailed, "pi_1", nil))

	assert.Equal(t, models.OrderStatusFailed, st.orders["order-1"].Status)
	assert.Len(t, pub.failed, 1)
}

func TestCanceledEventMovesOrderToCancelled(t *testing.T) {
	st, pub, r := reconcilerFixture(t)

	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentCanceled, "pi_1", nil))

	assert.Equal(t, models.OrderStatusCancelled, st.orders["order-1"].Status)
	assert.Len(t, pub.cancelled, 1)
}

func TestProcessingThenSucceeded(t *testing.T) {
	st, _, r := reconcilerFixture(t)

	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentProcessing, "pi_1", nil))
	assert.Equal(t, models.OrderStatusProcessing, st.orders["order-1"].Status)

	manifest := []gateway.ManifestItem{{ProductID: "p1", VariantID: "vA", Quantity: 2}}
	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentSucceeded, "pi_1", manifest))
	assert.Equal(t, models.OrderStatusPaid, st.orders["order-1"].Status)
	assert.Equal(t, 8, st.variants["vA"].Stock)
}

func TestCanceledAfterPaidIsIgnored(t *testing.T) {
	st, pub, r := reconcilerFixture(t)

	manifest := []gateway.ManifestItem{{ProductID: "p1", VariantID: "vA", Quantity: 2}}
	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentSucceeded, "pi_1", manifest))
	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentCanceled, "pi_1", nil))

	assert.Equal(t, models.OrderStatusPaid, st.orders["order-1"].Status,
		"a terminal status must not be overwritten by a later event")
	assert.Empty(t, pub.cancelled)
}

func TestProcessingAfterPaidIsIgnored(t *testing.T) {
	st, _, r := reconcilerFixture(t)

	manifest := []gateway.ManifestItem{{ProductID: "p1", VariantID: "vA", Quantity: 2}}
	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentSucceeded, "pi_1", manifest))
	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentProcessing, "pi_1", nil))

	assert.Equal(t, models.OrderStatusPaid, st.orders["order-1"].Status)
}

func TestUnknownEventTypeIsNoOp(t *testing.T) {
	st, pub, r := reconcilerFixture(t)

	r.HandleEvent(context.Background(), intentEvent(t, "charge.refunded", "pi_1", nil))

	assert.Equal(t, models.OrderStatusPending, st.orders["order-1"].Status)
	assert.Empty(t, st.decrements)
	assert.Empty(t, pub.paid)
}

func TestUnknownIntentLeavesStateUntouched(t *testing.T) {
	st, _, r := reconcilerFixture(t)

	manifest := []gateway.ManifestItem{{ProductID: "p1", VariantID: "vA", Quantity: 2}}
	r.HandleEvent(context.Background(), intentEvent(t, gateway.EventIntentSucceeded, "pi_unknown", manifest))

	assert.Equal(t, models.OrderStatusPending, st.orders["order-1"].Status)
	assert.Equal(t, 10, st.variants["vA"].Stock)
}

func TestFulfillmentShipsPaidOrderOnce(t *testing.T) {
	st, pub, _ := reconcilerFixture(t)
	st.orders["order-1"].Status = models.OrderStatusPaid

	fs := NewFulfillmentService(st, pub)
	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{EventID: "evt_paid_1", EventType: models.EventTypeOrderPaid},
		OrderID:   "order-1",
	}

	require.NoError(t, fs.HandleOrderPaid(context.Background(), event))
	assert.Equal(t, models.OrderStatusShipped, st.orders["order-1"].Status)
	require.Len(t, pub.shipped, 1)

	require.NoError(t, fs.HandleOrderPaid(context.Background(), event))
	assert.Len(t, pub.shipped, 1, "replayed event must not ship twice")
}
