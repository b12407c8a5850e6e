package service

import (
	"context"
	"testing"
	"time"

	"shop-service/internal/gateway"
	"shop-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutFixture() (*mockStore, *mockGateway, *mockPublisher, *CheckoutService) {
	st := newMockStore()
	st.products["p1"] = testProduct("p1", 20.00)
	st.products["p2"] = testProduct("p2", 15.50)
	v1 := testVariant("v1", "p1", 10)
	v2 := testVariant("v2", "p2", 5)
	st.variants["v1"] = &v1
	st.variants["v2"] = &v2

	gw := &mockGateway{}
	pub := &mockPublisher{}
	cs := NewCheckoutService(st, gw, pub, "eur", 5*time.Second)
	return st, gw, pub, cs
}

func checkoutRequest() *CheckoutRequest {
	return &CheckoutRequest{
		Items: []CheckoutItemRequest{
			{ProductID: "p1", VariantID: "v1", Quantity: 2},
			{ProductID: "p2", VariantID: "v2", Quantity: 1},
		},
		Email: "member@association.example",
		Shipping: models.ShippingAddress{
			Name:       "Jean Martin",
			Address:    "1 rue des Lilas",
			City:       "Lyon",
			PostalCode: "69000",
			Country:    "FR",
			Phone:      "+33600000000",
		},
	}
}

func TestCheckoutComputesMinorUnitsRoundHalfUp(t *testing.T) {
	st, gw, pub, cs := checkoutFixture()

	resp, err := cs.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "pi_test_secret", resp.ClientSecret)
	assert.NotEmpty(t, resp.OrderID)

	// 20.00*2 + 15.50*1 = 55.50 -> 5550 minor units
	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(5550), gw.created[0].AmountMinor)
	assert.Equal(t, "eur", gw.created[0].Currency)

	order := st.orders[resp.OrderID]
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "pi_test", order.PaymentIntentID)
	assert.InDelta(t, 55.50, order.TotalAmount, 1e-9)

	items := st.items[resp.OrderID]
	require.Len(t, items, 2)
	assert.InDelta(t, 20.00, items[0].UnitPrice, 1e-9)
	assert.Equal(t, 2, items[0].Quantity)

	require.Len(t, pub.created, 1)
	assert.Equal(t, int64(5550), pub.created[0].AmountMinor)
}

func TestCheckoutManifestMatchesItems(t *testing.T) {
	_, gw, _, cs := checkoutFixture()

	_, err := cs.Checkout(context.Background(), checkoutRequest())
	require.NoError(t, err)

	require.Len(t, gw.created, 1)
	manifest := gw.created[0].Manifest
	require.Len(t, manifest, 2)
	assert.Equal(t, gateway.ManifestItem{ProductID: "p1", VariantID: "v1", Quantity: 2}, manifest[0])
	assert.Equal(t, gateway.ManifestItem{ProductID: "p2", VariantID: "v2", Quantity: 1}, manifest[1])
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	_, gw, _, cs := checkoutFixture()

	req := checkoutRequest()
	req.Items = nil

	_, err := cs.Checkout(context.Background(), req)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, gw.created, "no intent may be created for an empty cart")
}

func TestCheckoutMissingShippingRejected(t *testing.T) {
	_, _, _, cs := checkoutFixture()

	req := checkoutRequest()
	req.Shipping.Name = ""

	_, err := cs.Checkout(context.Background(), req)

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCheckoutUnknownProductRejected(t *testing.T) {
	_, gw, _, cs := checkoutFixture()

	req := checkoutRequest()
	req.Items[0].ProductID = "nope"

	_, err := cs.Checkout(context.Background(), req)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, gw.created)
}

func TestCheckoutGatewayRejection(t *testing.T) {
	st, gw, _, cs := checkoutFixture()
	gw.createFn = func(context.Context, gateway.CreateIntentParams) (*gateway.PaymentIntent, error) {
		return nil, errStoreDown
	}

	_, err := cs.Checkout(context.Background(), checkoutRequest())

	var gatewayErr *GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.False(t, gatewayErr.Timeout)
	assert.Empty(t, st.orders, "no order may be created when the gateway rejects")
}

func TestCheckoutGatewayTimeout(t *testing.T) {
	st := newMockStore()
	st.products["p1"] = testProduct("p1", 20.00)

	gw := &mockGateway{}
	gw.createFn = func(ctx context.Context, _ gateway.CreateIntentParams) (*gateway.PaymentIntent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	cs := NewCheckoutService(st, gw, &mockPublisher{}, "eur", 10*time.Millisecond)

	req := checkoutRequest()
	req.Items = req.Items[:1]

	_, err := cs.Checkout(context.Background(), req)

	var gatewayErr *GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	assert.True(t, gatewayErr.Timeout)
}

func TestCheckoutPersistenceFailureCancelsIntent(t *testing.T) {
	st, gw, pub, cs := checkoutFixture()
	st.createOrderErr = errStoreDown

	_, err := cs.Checkout(context.Background(), checkoutRequest())

	var persistenceErr *PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	assert.Equal(t, []string{"pi_test"}, gw.cancelled, "orphaned intent must be cancelled")
	assert.Empty(t, pub.created)
}
