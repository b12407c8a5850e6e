package service

import (
	"context"
	"fmt"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FulfillmentService consumes order-paid events and moves orders from
// paid to shipped once dispatch completes. It runs outside the webhook
// reconciliation core and is idempotent via the processed-events table.
type FulfillmentService struct {
	store     OrderStore
	publisher EventPublisher
	logger    *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(store OrderStore, publisher EventPublisher) *FulfillmentService {
	return &FulfillmentService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// HandleOrderPaid dispatches a paid order and marks it shipped
func (fs *FulfillmentService) HandleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.HandleOrderPaid")
	defer span.End()

	processed, err := fs.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		fs.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	applied, err := fs.store.TransitionOrderByID(ctx, event.OrderID, models.OrderStatusShipped)
	if err != nil {
		return fmt.Errorf("failed to mark order shipped: %w", err)
	}
	if !applied {
		fs.logger.Warn("Order not in paid state, skipping fulfillment",
			zap.String("order_id", event.OrderID))
	} else {
		util.OrdersShippedTotal.Inc()
		fs.logger.Info("Order shipped", zap.String("order_id", event.OrderID))

		shipped := &models.OrderShippedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderShipped,
				Timestamp: time.Now(),
			},
			OrderID: event.OrderID,
		}
		if err := fs.publisher.PublishOrderShipped(ctx, shipped); err != nil {
			fs.logger.Error("Failed to publish OrderShipped event", zap.Error(err))
		}
	}

	if err := fs.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		fs.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
