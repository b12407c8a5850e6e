package worker

import (
	"context"

	"shop-service/internal/broker"
	"shop-service/internal/service"
	"shop-service/internal/util"
)

// FulfillmentWorker consumes order events and hands paid orders to the
// fulfillment service. It is the only consumer of the order topic in
// this process; the webhook reconciler itself is driven by HTTP.
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, fulfillment *service.FulfillmentService) *FulfillmentWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPaid(fulfillment.HandleOrderPaid)

	return &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	util.GetLogger().Info("Stopping fulfillment worker")
	return w.consumer.Close()
}
