package service

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/models"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

const processedEventTTL = 24 * time.Hour

// EventDeduper remembers which events were already handled
type EventDeduper interface {
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	UnmarkEventProcessed(ctx context.Context, eventID string) error
}

// CacheSync keeps cached book details in line with stock changes made by orders
type CacheSync struct {
	cache   BookCache
	deduper EventDeduper
	logger  *zap.Logger
}

// NewCacheSync creates a new cache sync handler
func NewCacheSync(cache BookCache, deduper EventDeduper) *CacheSync {
	return &CacheSync{
		cache:   cache,
		deduper: deduper,
		logger:  util.GetLogger(),
	}
}

// HandleOrderCreated drops the cached books whose stock the order decremented
func (cs *CacheSync) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "CacheSync.HandleOrderCreated")
	defer span.End()

	return cs.invalidate(ctx, event.EventID, event.OrderID, event.Items)
}

// HandleOrderCancelled drops the cached books whose stock the cancellation restored
func (cs *CacheSync) HandleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	ctx, span := util.StartSpan(ctx, "CacheSync.HandleOrderCancelled")
	defer span.End()

	return cs.invalidate(ctx, event.EventID, event.OrderID, event.Items)
}

func (cs *CacheSync) invalidate(ctx context.Context, eventID string, orderID int64, items []models.OrderItemData) error {
	if eventID != "" {
		first, err := cs.deduper.MarkEventProcessed(ctx, eventID, processedEventTTL)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if !first {
			cs.logger.Info("Event already processed", zap.String("event_id", eventID))
			return nil
		}
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.BookID)
	}

	if err := cs.cache.InvalidateBooks(ctx, ids...); err != nil {
		if eventID != "" {
			if uerr := cs.deduper.UnmarkEventProcessed(ctx, eventID); uerr != nil {
				cs.logger.Error("Failed to unmark event", zap.String("event_id", eventID), zap.Error(uerr))
			}
		}
		return fmt.Errorf("failed to invalidate books of order %d: %w", orderID, err)
	}

	cs.logger.Debug("Invalidated cached books",
		zap.Int64("order_id", orderID),
		zap.Int64s("book_ids", ids))
	return nil
}
