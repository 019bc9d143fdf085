package worker

import (
	"context"

	"bookstore/internal/broker"
	"bookstore/internal/service"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

// CatalogCacheWorker consumes order events and keeps the book cache fresh
type CatalogCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewCatalogCacheWorker creates a new catalog cache worker
func NewCatalogCacheWorker(consumer *broker.Consumer, cacheSync *service.CacheSync) *CatalogCacheWorker {
	return &CatalogCacheWorker{
		consumer:     consumer,
		eventHandler: NewEventHandler(cacheSync),
		logger:       util.GetLogger(),
	}
}

// NewEventHandler routes order events to cacheSync
func NewEventHandler(cacheSync *service.CacheSync) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(cacheSync.HandleOrderCreated)
	eventHandler.OnOrderCancelled(cacheSync.HandleOrderCancelled)
	return eventHandler
}

// Start starts the worker
func (w *CatalogCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CatalogCacheWorker) Stop() error {
	w.logger.Info("Stopping catalog cache worker")
	return w.consumer.Close()
}
