package service

import (
	"context"
	"time"

	"shop-service/internal/gateway"
	"shop-service/internal/models"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler applies gateway webhook notifications to the order whose
// payment intent they reference. The gateway delivers at least once
// and in arbitrary order, so every transition goes through the status
// lattice: replays and late conflicting events are acknowledged but
// change nothing, and the stock decrement runs only on the delivery
// that actually moved the order to paid.
type Reconciler struct {
	store     OrderStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewReconciler creates a new webhook reconciler
func NewReconciler(store OrderStore, publisher EventPublisher) *Reconciler {
	return &Reconciler{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// HandleEvent applies one verified webhook event. Store failures are
// logged and swallowed: the HTTP handler must still acknowledge the
// delivery so the gateway does not retry a notification this system
// cannot currently apply.
func (r *Reconciler) HandleEvent(ctx context.Context, event *gateway.Event) {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleEvent")
	defer span.End()

	util.WebhookEventsTotal.WithLabelValues(event.Type).Inc()

	switch event.Type {
	case gateway.EventIntentSucceeded:
		r.handleSucceeded(ctx, event)
	case gateway.EventIntentFailed:
		r.applyTransition(ctx, event, models.OrderStatusFailed)
	case gateway.EventIntentCanceled:
		r.applyTransition(ctx, event, models.OrderStatusCancelled)
	case gateway.EventIntentProcessing:
		r.applyTransition(ctx, event, models.OrderStatusProcessing)
	default:
		r.logger.Info("Ignoring unhandled webhook event type",
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID))
	}
}

// handleSucceeded moves the order to paid and decrements stock for
// each manifest item. The decrement is gated on the transition having
// applied, which is what makes a replayed succeeded event harmless.
func (r *Reconciler) handleSucceeded(ctx context.Context, event *gateway.Event) {
	intent := &event.Data.Object

	applied, ok := r.transition(ctx, event, intent.ID, models.OrderStatusPaid)
	if !ok || !applied {
		return
	}

	util.OrdersPaidTotal.Inc()

	manifest, err := intent.ItemManifest()
	if err != nil {
		r.logger.Error("Failed to parse intent item manifest",
			zap.String("payment_intent_id", intent.ID),
			zap.Error(err))
		return
	}

	for _, item := range manifest {
		if err := r.store.DecrementStock(ctx, item.VariantID, item.Quantity); err != nil {
			r.logger.Error("Failed to decrement stock",
				zap.String("variant_id", item.VariantID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			continue
		}
		util.StockDecrementsTotal.Inc()
	}

	r.publishPaid(ctx, intent, manifest)
}

// applyTransition handles the non-paid transitions, which have no side
// effects beyond the status change itself.
func (r *Reconciler) applyTransition(ctx context.Context, event *gateway.Event, toStatus string) {
	intent := &event.Data.Object

	applied, ok := r.transition(ctx, event, intent.ID, toStatus)
	if !ok || !applied {
		return
	}

	switch toStatus {
	case models.OrderStatusFailed:
		util.OrdersFailedTotal.Inc()
		r.publishTerminal(ctx, intent, toStatus)
	case models.OrderStatusCancelled:
		util.OrdersCancelledTotal.Inc()
		r.publishTerminal(ctx, intent, toStatus)
	}
}

// transition runs the lattice-guarded status update. The first return
// says whether the transition applied, the second whether processing
// should continue at all (order found, no store failure).
func (r *Reconciler) transition(ctx context.Context, event *gateway.Event, intentID, toStatus string) (bool, bool) {
	order, err := r.store.GetOrderByPaymentIntentID(ctx, intentID)
	if err != nil {
		r.logger.Error("Failed to look up order for webhook",
			zap.String("payment_intent_id", intentID),
			zap.Error(err))
		return false, false
	}
	if order == nil {
		r.logger.Warn("Webhook references unknown payment intent",
			zap.String("payment_intent_id", intentID),
			zap.String("event_id", event.ID))
		return false, false
	}

	applied, err := r.store.TransitionOrderByIntent(ctx, intentID, toStatus)
	if err != nil {
		r.logger.Error("Failed to apply order transition",
			zap.String("order_id", order.ID),
			zap.String("to_status", toStatus),
			zap.Error(err))
		return false, false
	}

	if !applied {
		r.logger.Info("Transition not applied, keeping stored status",
			zap.String("order_id", order.ID),
			zap.String("stored_status", order.Status),
			zap.String("to_status", toStatus),
			zap.String("event_id", event.ID))
		return false, true
	}

	r.logger.Info("Order transitioned",
		zap.String("order_id", order.ID),
		zap.String("to_status", toStatus),
		zap.String("event_id", event.ID))
	return true, true
}

func (r *Reconciler) publishPaid(ctx context.Context, intent *gateway.PaymentIntent, manifest []gateway.ManifestItem) {
	order, err := r.store.GetOrderByPaymentIntentID(ctx, intent.ID)
	if err != nil || order == nil {
		return
	}

	items := make([]models.OrderItemData, 0, len(manifest))
	for _, item := range manifest {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: time.Now(),
		},
		OrderID:         order.ID,
		PaymentIntentID: intent.ID,
		Items:           items,
	}
	if err := r.publisher.PublishOrderPaid(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}
}

func (r *Reconciler) publishTerminal(ctx context.Context, intent *gateway.PaymentIntent, toStatus string) {
	order, err := r.store.GetOrderByPaymentIntentID(ctx, intent.ID)
	if err != nil || order == nil {
		return
	}

	base := models.BaseEvent{
		EventID:   uuid.New().String(),
		Timestamp: time.Now(),
	}

	switch toStatus {
	case models.OrderStatusFailed:
		base.EventType = models.EventTypeOrderFailed
		err = r.publisher.PublishOrderFailed(ctx, &models.OrderFailedEvent{
			BaseEvent:       base,
			OrderID:         order.ID,
			PaymentIntentID: intent.ID,
			Reason:          "payment_failed",
		})
	case models.OrderStatusCancelled:
		base.EventType = models.EventTypeOrderCancelled
		err = r.publisher.PublishOrderCancelled(ctx, &models.OrderCancelledEvent{
			BaseEvent:       base,
			OrderID:         order.ID,
			PaymentIntentID: intent.ID,
		})
	}
	if err != nil {
		r.logger.Error("Failed to publish order event",
			zap.String("to_status", toStatus),
			zap.Error(err))
	}
}
