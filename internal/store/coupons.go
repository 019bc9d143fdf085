package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
)

const couponColumns = `id, code, type, value, min_order, max_uses, used_count, expires_at, active, created_at`

// GetCouponByCode retrieves a coupon by its unique code
func (q *querier) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return q.getCoupon(ctx, "SELECT "+couponColumns+" FROM coupons WHERE code = $1", code)
}

// LockCouponByCode retrieves a coupon by code and locks its row
func (q *querier) LockCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return q.getCoupon(ctx, "SELECT "+couponColumns+" FROM coupons WHERE code = $1 FOR UPDATE", code)
}

func (q *querier) getCoupon(ctx context.Context, query, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := q.db.GetContext(ctx, &coupon, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("Coupon")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &coupon, nil
}

// ListCoupons retrieves all coupons, newest first
func (q *querier) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	coupons := []models.Coupon{}
	err := q.db.SelectContext(ctx, &coupons,
		"SELECT "+couponColumns+" FROM coupons ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, nil
}

// CreateCoupon creates a coupon
func (q *querier) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	query := `
		INSERT INTO coupons (code, type, value, min_order, max_uses, used_count, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := q.db.QueryRowxContext(ctx, query,
		coupon.Code, coupon.Type, coupon.Value, coupon.MinOrder, coupon.MaxUses,
		coupon.UsedCount, coupon.ExpiresAt, coupon.Active).
		Scan(&coupon.ID, &coupon.CreatedAt)
	if isUniqueViolation(err) {
		return apperror.Conflict("Coupon code already exists").Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

// IncrementCouponUsage records one use of a coupon
func (q *querier) IncrementCouponUsage(ctx context.Context, couponID int64) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE coupons SET used_count = used_count + 1 WHERE id = $1", couponID)
	if err != nil {
		return fmt.Errorf("failed to increment coupon %d usage: %w", couponID, err)
	}
	return requireRow(res, apperror.NotFound("Coupon"))
}

// DecrementCouponUsage gives back one use of a coupon
func (q *querier) DecrementCouponUsage(ctx context.Context, couponID int64) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE coupons SET used_count = GREATEST(used_count - 1, 0) WHERE id = $1", couponID)
	if err != nil {
		return fmt.Errorf("failed to decrement coupon %d usage: %w", couponID, err)
	}
	return requireRow(res, apperror.NotFound("Coupon"))
}
