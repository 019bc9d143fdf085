package service

import (
	"context"
	"strings"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/repository"
	"bookstore/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// CouponService handles coupon validation and administration
type CouponService struct {
	repo   repository.Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewCouponService creates a new coupon service
func NewCouponService(repo repository.Repository) *CouponService {
	return &CouponService{
		repo:   repo,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// CouponQuote is the informational result of validating a coupon against a cart total
type CouponQuote struct {
	Code       string            `json:"code"`
	Type       models.CouponType `json:"type"`
	Value      decimal.Decimal   `json:"value"`
	Discount   decimal.Decimal   `json:"discount"`
	FinalTotal decimal.Decimal   `json:"final_total"`
}

// ValidateCouponRequest represents a coupon check for a cart total
type ValidateCouponRequest struct {
	Code       string          `json:"code" binding:"required"`
	OrderTotal decimal.Decimal `json:"order_total"`
}

// CreateCouponRequest represents a request to create a coupon
type CreateCouponRequest struct {
	Code      string            `json:"code" binding:"required"`
	Type      models.CouponType `json:"type" binding:"required"`
	Value     decimal.Decimal   `json:"value"`
	MinOrder  decimal.Decimal   `json:"min_order"`
	MaxUses   int               `json:"max_uses"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Active    *bool             `json:"active,omitempty"`
}

// CheckCoupon applies the eligibility rules in order and returns the first violation.
// Checkout and the validation endpoint share it.
func CheckCoupon(coupon *models.Coupon, orderTotal decimal.Decimal, now time.Time) error {
	if !coupon.Active {
		return apperror.NotFound("Coupon")
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(now) {
		return apperror.Validation("Coupon has expired")
	}
	if coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses {
		return apperror.Validation("Coupon usage limit reached")
	}
	if orderTotal.LessThan(coupon.MinOrder) {
		return apperror.Validation("Minimum order amount is $%s", coupon.MinOrder.StringFixed(2))
	}
	return nil
}

// ComputeDiscount returns the discount coupon grants on orderTotal. It never exceeds orderTotal.
func ComputeDiscount(coupon *models.Coupon, orderTotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.Type {
	case models.CouponTypePercentage:
		discount = orderTotal.Mul(coupon.Value).Div(hundred).Round(2)
	case models.CouponTypeFixed:
		discount = decimal.Min(coupon.Value, orderTotal)
	default:
		return decimal.Zero
	}

	if discount.GreaterThan(orderTotal) {
		discount = orderTotal
	}
	return discount
}

// Validate checks code against orderTotal and quotes the discount. Nothing is persisted.
func (s *CouponService) Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*CouponQuote, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Validate")
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.Validation("Coupon code is required")
	}
	if !orderTotal.IsPositive() {
		return nil, apperror.Validation("Order total must be positive")
	}

	coupon, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		util.CouponRedemptionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if err := CheckCoupon(coupon, orderTotal, s.now()); err != nil {
		util.CouponRedemptionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	discount := ComputeDiscount(coupon, orderTotal)
	util.CouponRedemptionsTotal.WithLabelValues("quoted").Inc()

	return &CouponQuote{
		Code:       coupon.Code,
		Type:       coupon.Type,
		Value:      coupon.Value,
		Discount:   discount,
		FinalTotal: orderTotal.Sub(discount).Round(2),
	}, nil
}

// ListCoupons returns every coupon, newest first
func (s *CouponService) ListCoupons(ctx context.Context, identity models.Identity) ([]models.Coupon, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}
	return s.repo.ListCoupons(ctx)
}

// CreateCoupon validates and stores a new coupon
func (s *CouponService) CreateCoupon(ctx context.Context, identity models.Identity, req *CreateCouponRequest) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.CreateCoupon")
	defer span.End()

	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.Code)
	switch {
	case code == "" || len(code) > 50:
		return nil, apperror.Validation("Coupon code must be between 1 and 50 characters")
	case !req.Type.Valid():
		return nil, apperror.Validation("Coupon type must be PERCENTAGE or FIXED")
	case !req.Value.IsPositive():
		return nil, apperror.Validation("Coupon value must be positive")
	case req.Type == models.CouponTypePercentage && req.Value.GreaterThan(hundred):
		return nil, apperror.Validation("Percentage coupons cannot exceed 100")
	case req.MinOrder.IsNegative():
		return nil, apperror.Validation("Minimum order cannot be negative")
	case req.MaxUses < 0:
		return nil, apperror.Validation("Maximum uses cannot be negative")
	}

	coupon := &models.Coupon{
		Code:      code,
		Type:      req.Type,
		Value:     req.Value,
		MinOrder:  req.MinOrder,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		Active:    req.Active == nil || *req.Active,
	}
	if err := s.repo.CreateCoupon(ctx, coupon); err != nil {
		return nil, err
	}

	s.logger.Info("Coupon created", zap.String("code", coupon.Code), zap.Int64("coupon_id", coupon.ID))
	return coupon, nil
}
