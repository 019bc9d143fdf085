package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookstore/internal/apperror"
	"bookstore/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, user_id, status, subtotal, discount, total_price, coupon_id, coupon_code,
	idempotency_key, created_at, updated_at`

const orderItemQuery = `
	SELECT oi.id, oi.order_id, oi.book_id, b.title AS book_title, oi.quantity, oi.price
	FROM order_items oi
	JOIN books b ON b.id = oi.book_id`

// CreateOrder creates an order together with its items
func (q *querier) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, status, subtotal, discount, total_price, coupon_id, coupon_code, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := q.db.QueryRowxContext(ctx, query,
		order.UserID, order.Status, order.Subtotal, order.Discount, order.TotalPrice,
		order.CouponID, order.CouponCode, order.IdempotencyKey).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if isUniqueViolation(err) {
		return apperror.Conflict("An order with this idempotency key already exists").Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		err := q.db.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, book_id, quantity, price)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			item.OrderID, item.BookID, item.Quantity, item.Price)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return nil
}

// GetOrderByID retrieves an order with its items
func (q *querier) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// LockOrderByID retrieves an order with its items and locks the order row
func (q *querier) LockOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return q.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

// GetOrderByIdempotencyKey retrieves a user's order by idempotency key
func (q *querier) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	order, err := q.getOrder(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if apperror.Is(err, apperror.KindNotFound) {
		return nil, nil
	}
	return order, err
}

func (q *querier) getOrder(ctx context.Context, query string, args ...interface{}) (*models.Order, error) {
	var order models.Order
	err := q.db.GetContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("Order")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	items := []models.OrderItem{}
	err = q.db.SelectContext(ctx, &items, orderItemQuery+" WHERE oi.order_id = $1 ORDER BY oi.id", order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	order.Items = items

	return &order, nil
}

// ListOrders retrieves orders for a user, or every order when userID is nil
func (q *querier) ListOrders(ctx context.Context, userID *int64) ([]models.Order, error) {
	orders := []models.Order{}

	var err error
	if userID != nil {
		err = q.db.SelectContext(ctx, &orders,
			"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", *userID)
	} else {
		err = q.db.SelectContext(ctx, &orders,
			"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}

	query, args, err := sqlx.In(orderItemQuery+" WHERE oi.order_id IN (?) ORDER BY oi.id", ids)
	if err != nil {
		return nil, err
	}

	var items []models.OrderItem
	if err := q.db.SelectContext(ctx, &items, q.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}

	byOrder := make(map[int64][]models.OrderItem, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}

	return orders, nil
}

// UpdateOrderStatus updates order status
func (q *querier) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, id)
	if err != nil {
		return fmt.Errorf("failed to update order %d status: %w", id, err)
	}
	return requireRow(res, apperror.NotFound("Order"))
}

// HasOrderedBook reports whether the user has the book on an order in one of statuses
func (q *querier) HasOrderedBook(ctx context.Context, userID, bookID int64, statuses []models.OrderStatus) (bool, error) {
	if len(statuses) == 0 {
		return false, nil
	}

	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}

	query, args, err := sqlx.In(`
		SELECT EXISTS(
			SELECT 1 FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE oi.book_id = ? AND o.user_id = ? AND o.status IN (?)
		)`, bookID, userID, values)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := q.db.GetContext(ctx, &exists, q.db.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("failed to check purchase history: %w", err)
	}
	return exists, nil
}
