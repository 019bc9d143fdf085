package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"bookstore/internal/models"
	"bookstore/internal/service"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCache struct {
	invalidated []int64
}

func (c *recordingCache) GetBook(ctx context.Context, id int64) (*models.BookDetail, bool, error) {
	return nil, false, nil
}

func (c *recordingCache) SetBook(ctx context.Context, detail *models.BookDetail) error {
	return nil
}

func (c *recordingCache) InvalidateBooks(ctx context.Context, ids ...int64) error {
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

type memoryDeduper map[string]bool

func (d memoryDeduper) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if d[eventID] {
		return false, nil
	}
	d[eventID] = true
	return true, nil
}

func (d memoryDeduper) UnmarkEventProcessed(ctx context.Context, eventID string) error {
	delete(d, eventID)
	return nil
}

func message(t *testing.T, v interface{}) kafka.Message {
	t.Helper()

	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func TestEventHandlerInvalidatesCache(t *testing.T) {
	cache := &recordingCache{}
	handler := NewEventHandler(service.NewCacheSync(cache, memoryDeduper{}))
	ctx := context.Background()

	require.NoError(t, handler.HandleMessage(ctx, message(t, models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{EventID: "a", EventType: models.EventTypeOrderCreated},
		OrderID:   1,
		Items:     []models.OrderItemData{{BookID: 10, Quantity: 1}},
	})))
	require.NoError(t, handler.HandleMessage(ctx, message(t, models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventID: "b", EventType: models.EventTypeOrderCancelled},
		OrderID:   1,
		Items:     []models.OrderItemData{{BookID: 10, Quantity: 1}},
	})))
	require.NoError(t, handler.HandleMessage(ctx, message(t, models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{EventID: "c", EventType: models.EventTypeOrderStatusChanged},
		OrderID:   1,
		From:      models.OrderStatusPending,
		To:        models.OrderStatusConfirmed,
	})))

	assert.Equal(t, []int64{10, 10}, cache.invalidated)
}
