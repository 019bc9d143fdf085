package models

import "fmt"

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// ReviewEligibleStatuses are the order statuses that allow the buyer to review a book
var ReviewEligibleStatuses = []OrderStatus{
	OrderStatusDelivered,
	OrderStatusConfirmed,
	OrderStatusShipped,
}

// fulfilment rank; cancelled is terminal and has no rank
var statusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusConfirmed: 1,
	OrderStatusShipped:   2,
	OrderStatusDelivered: 3,
}

// ParseOrderStatus converts s into a known status
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if status == OrderStatusCancelled {
		return status, nil
	}
	if _, ok := statusRank[status]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

// CanAdvanceTo reports whether an administrator may move an order from s to next
// without touching stock. Only strictly forward fulfilment moves qualify.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}
