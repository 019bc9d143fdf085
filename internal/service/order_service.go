package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/repository"
	"bookstore/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLength = 255

// OrderService handles order business logic
type OrderService struct {
	repo           repository.Repository
	locker         Locker
	eventPublisher EventPublisher
	lockTTL        time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	repo repository.Repository,
	locker Locker,
	eventPublisher EventPublisher,
	lockTTL time.Duration,
) *OrderService {
	return &OrderService{
		repo:           repo,
		locker:         locker,
		eventPublisher: eventPublisher,
		lockTTL:        lockTTL,
		now:            time.Now,
		logger:         util.GetLogger(),
	}
}

// PlaceOrderRequest represents a checkout request
type PlaceOrderRequest struct {
	Items          []OrderItemRequest `json:"items" binding:"required,min=1"`
	CouponCode     string             `json:"coupon_code,omitempty"`
	IdempotencyKey string             `json:"-"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	BookID   int64 `json:"book_id" binding:"required"`
	Quantity int   `json:"quantity" binding:"required"`
}

// PlaceOrderResult is the placed order. Replayed is set when the idempotency key matched an
// order placed earlier.
type PlaceOrderResult struct {
	Order    *models.Order
	Replayed bool
}

// UpdateStatusRequest represents an administrative status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// PlaceOrder validates the cart and, in one transaction, locks the books, checks stock, prices
// the order from the catalog, redeems the coupon, decrements stock and records the order.
func (s *OrderService) PlaceOrder(ctx context.Context, identity models.Identity, req *PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder", util.UserIDAttr(identity.UserID))
	defer span.End()

	items, err := normalizeItems(req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLength {
		return nil, apperror.Validation("Idempotency key must be at most %d characters", maxIdempotencyKeyLength)
	}

	if key != "" {
		if existing, err := s.findReplay(ctx, identity.UserID, key); err != nil || existing != nil {
			return existing, err
		}

		lockKey := fmt.Sprintf("checkout:%d:%s", identity.UserID, key)
		token, ok, err := s.locker.AcquireLock(ctx, lockKey, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire checkout lock: %w", err)
		}
		if !ok {
			util.OrdersFailedTotal.WithLabelValues("in_flight").Inc()
			return nil, apperror.Conflict("An order with this idempotency key is already being processed")
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
				s.logger.Warn("Failed to release checkout lock", zap.String("key", lockKey), zap.Error(err))
			}
		}()

		// the first request may have committed while we waited for the lock
		if existing, err := s.findReplay(ctx, identity.UserID, key); err != nil || existing != nil {
			return existing, err
		}
	}

	start := time.Now()
	order, err := s.checkout(ctx, identity.UserID, items, strings.TrimSpace(req.CouponCode), key)
	util.CheckoutLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		util.RecordError(span, err)
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	for _, item := range order.Items {
		util.BooksSoldTotal.Add(float64(item.Quantity))
	}
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("total_price", order.TotalPrice.StringFixed(2)))

	event := &models.OrderCreatedEvent{
		BaseEvent:  s.newBaseEvent(models.EventTypeOrderCreated),
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice,
		Items:      models.ItemData(order.Items),
	}
	if order.CouponCode != nil {
		event.CouponCode = *order.CouponCode
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return &PlaceOrderResult{Order: order}, nil
}

func (s *OrderService) findReplay(ctx context.Context, userID int64, key string) (*PlaceOrderResult, error) {
	existing, err := s.repo.GetOrderByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}

	util.OrdersReplayedTotal.Inc()
	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", existing.ID))
	return &PlaceOrderResult{Order: existing, Replayed: true}, nil
}

func (s *OrderService) checkout(ctx context.Context, userID int64, items []OrderItemRequest, couponCode, key string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.checkout")
	defer span.End()

	order := &models.Order{
		UserID: userID,
		Status: models.OrderStatusPending,
	}
	if key != "" {
		order.IdempotencyKey = &key
	}

	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		ids := make([]int64, len(items))
		for i, item := range items {
			ids[i] = item.BookID
		}

		books, err := q.LockBooksByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(books) != len(ids) {
			return apperror.NotFound("One or more books")
		}

		byID := make(map[int64]*models.Book, len(books))
		for i := range books {
			byID[books[i].ID] = &books[i]
		}

		subtotal := decimal.Zero
		order.Items = make([]models.OrderItem, 0, len(items))
		for _, item := range items {
			book := byID[item.BookID]
			if book.Stock < item.Quantity {
				return apperror.Validation(`Insufficient stock for "%s". Available: %d, requested: %d`,
					book.Title, book.Stock, item.Quantity)
			}

			subtotal = subtotal.Add(book.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			order.Items = append(order.Items, models.OrderItem{
				BookID:    book.ID,
				BookTitle: book.Title,
				Quantity:  item.Quantity,
				Price:     book.Price,
			})
		}
		subtotal = subtotal.Round(2)

		discount := decimal.Zero
		if couponCode != "" {
			coupon, err := q.LockCouponByCode(ctx, couponCode)
			if err != nil {
				return err
			}
			if err := CheckCoupon(coupon, subtotal, s.now()); err != nil {
				return err
			}
			discount = ComputeDiscount(coupon, subtotal)

			if err := q.IncrementCouponUsage(ctx, coupon.ID); err != nil {
				return err
			}
			order.CouponID = &coupon.ID
			order.CouponCode = &coupon.Code
		}

		for _, item := range order.Items {
			if err := q.DecrementStock(ctx, item.BookID, item.Quantity); err != nil {
				return err
			}
		}

		order.Subtotal = subtotal
		order.Discount = discount
		order.TotalPrice = subtotal.Sub(discount).Round(2)

		return q.CreateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// normalizeItems validates the cart and merges repeated books, keeping first-seen order
func normalizeItems(items []OrderItemRequest) ([]OrderItemRequest, error) {
	if len(items) == 0 {
		return nil, apperror.Validation("Order must have at least one item")
	}

	merged := make([]OrderItemRequest, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if item.BookID <= 0 {
			return nil, apperror.Validation("Invalid book id %d", item.BookID)
		}
		if item.Quantity < 1 {
			return nil, apperror.Validation("Quantity must be at least 1")
		}

		if i, ok := index[item.BookID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.BookID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

func failureReason(err error) string {
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		return "not_found"
	case apperror.KindValidation:
		return "validation"
	case apperror.KindConflict:
		return "conflict"
	default:
		return "db_error"
	}
}

func (s *OrderService) newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}

// CancelOrder cancels a pending order, returning its stock and coupon use
func (s *OrderService) CancelOrder(ctx context.Context, identity models.Identity, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", util.OrderIDAttr(orderID))
	defer span.End()

	var cancelled *models.Order
	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		order, err := q.LockOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !identity.CanActOn(order.UserID) {
			return apperror.Forbidden("You can only cancel your own orders")
		}
		if order.Status != models.OrderStatusPending {
			return apperror.Validation("Only PENDING orders can be cancelled")
		}

		for _, item := range order.Items {
			if err := q.IncrementStock(ctx, item.BookID, item.Quantity); err != nil {
				return err
			}
		}

		if err := q.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled); err != nil {
			return err
		}

		if order.CouponID != nil {
			if err := q.DecrementCouponUsage(ctx, *order.CouponID); err != nil {
				return err
			}
		}

		order.Status = models.OrderStatusCancelled
		order.UpdatedAt = s.now()
		cancelled = order
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", cancelled.ID),
		zap.Int64("cancelled_by", identity.UserID))

	event := &models.OrderCancelledEvent{
		BaseEvent: s.newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   cancelled.ID,
		UserID:    cancelled.UserID,
		Items:     models.ItemData(cancelled.Items),
	}
	if err := s.eventPublisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Int64("order_id", cancelled.ID), zap.Error(err))
	}

	return cancelled, nil
}

// GetOrder retrieves an order visible to identity
func (s *OrderService) GetOrder(ctx context.Context, identity models.Identity, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", util.OrderIDAttr(orderID))
	defer span.End()

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !identity.CanActOn(order.UserID) {
		return nil, apperror.Forbidden("You can only view your own orders")
	}
	return order, nil
}

// ListOrders returns every order for administrators and the caller's own orders otherwise
func (s *OrderService) ListOrders(ctx context.Context, identity models.Identity) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if identity.IsAdmin() {
		return s.repo.ListOrders(ctx, nil)
	}
	userID := identity.UserID
	return s.repo.ListOrders(ctx, &userID)
}

// UpdateStatus moves an order along its fulfilment path. Cancellation goes through
// CancelOrder so stock is restored.
func (s *OrderService) UpdateStatus(ctx context.Context, identity models.Identity, orderID int64, status models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus", util.OrderIDAttr(orderID))
	defer span.End()

	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	if status == models.OrderStatusCancelled {
		return s.CancelOrder(ctx, identity, orderID)
	}

	var (
		updated *models.Order
		from    models.OrderStatus
	)
	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		order, err := q.LockOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanAdvanceTo(status) {
			return apperror.Validation("Cannot change order status from %s to %s", order.Status, status)
		}
		if err := q.UpdateOrderStatus(ctx, order.ID, status); err != nil {
			return err
		}

		from = order.Status
		order.Status = status
		order.UpdatedAt = s.now()
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(string(status)).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", updated.ID),
		zap.String("from", string(from)),
		zap.String("to", string(status)))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: s.newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   updated.ID,
		From:      from,
		To:        status,
	}
	if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Int64("order_id", updated.ID), zap.Error(err))
	}

	return updated, nil
}
