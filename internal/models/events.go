package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is placed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	UserID     int64           `json:"user_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CouponCode string          `json:"coupon_code,omitempty"`
	Items      []OrderItemData `json:"items"`
}

// OrderCancelledEvent published when a pending order is cancelled and its stock restored
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	UserID  int64           `json:"user_id"`
	Items   []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published when an administrator advances an order
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64       `json:"order_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	BookID   int64           `json:"book_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// ItemData converts order items into their event representation
func ItemData(items []OrderItem) []OrderItemData {
	data := make([]OrderItemData, 0, len(items))
	for _, item := range items {
		data = append(data, OrderItemData{
			BookID:   item.BookID,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return data
}
