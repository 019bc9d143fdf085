package service

import (
	"context"
	"testing"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   models.Coupon
		total    string
		discount string
	}{
		{"percentage", models.Coupon{Type: models.CouponTypePercentage, Value: dec("10")}, "50.00", "5.00"},
		{"percentage rounds half up", models.Coupon{Type: models.CouponTypePercentage, Value: dec("15")}, "10.10", "1.52"},
		{"full percentage", models.Coupon{Type: models.CouponTypePercentage, Value: dec("100")}, "12.34", "12.34"},
		{"fixed", models.Coupon{Type: models.CouponTypeFixed, Value: dec("5")}, "30.00", "5.00"},
		{"fixed capped at total", models.Coupon{Type: models.CouponTypeFixed, Value: dec("15")}, "10.00", "10.00"},
		{"unknown type", models.Coupon{Type: "BOGUS", Value: dec("15")}, "10.00", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDiscount(&tt.coupon, dec(tt.total))
			assert.Equal(t, tt.discount, got.StringFixed(2))
		})
	}
}

func TestCheckCoupon(t *testing.T) {
	past := testTS.Add(-time.Hour)
	future := testTS.Add(time.Hour)

	tests := []struct {
		name    string
		coupon  models.Coupon
		total   string
		kind    apperror.Kind
		message string
	}{
		{
			name:    "inactive",
			coupon:  models.Coupon{Active: false},
			total:   "50.00",
			kind:    apperror.KindNotFound,
			message: "Coupon not found",
		},
		{
			name:    "expired wins over other failures",
			coupon:  models.Coupon{Active: true, ExpiresAt: &past, MaxUses: 1, UsedCount: 1, MinOrder: dec("100")},
			total:   "5.00",
			kind:    apperror.KindValidation,
			message: "Coupon has expired",
		},
		{
			name:    "usage limit",
			coupon:  models.Coupon{Active: true, ExpiresAt: &future, MaxUses: 3, UsedCount: 3},
			total:   "50.00",
			kind:    apperror.KindValidation,
			message: "Coupon usage limit reached",
		},
		{
			name:    "below minimum",
			coupon:  models.Coupon{Active: true, MinOrder: dec("20")},
			total:   "5.00",
			kind:    apperror.KindValidation,
			message: "Minimum order amount is $20.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCoupon(&tt.coupon, dec(tt.total), testTS)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
			assert.Equal(t, tt.message, apperror.Message(err))
		})
	}

	t.Run("unlimited uses", func(t *testing.T) {
		coupon := models.Coupon{Active: true, MaxUses: 0, UsedCount: 1000, MinOrder: dec("20")}
		assert.NoError(t, CheckCoupon(&coupon, dec("20.00"), testTS))
	})
}

func newCouponService(repo *memstore.Store) *CouponService {
	svc := NewCouponService(repo)
	svc.now = func() time.Time { return testTS }
	return svc
}

func TestValidateCoupon(t *testing.T) {
	repo := memstore.New()
	svc := newCouponService(repo)
	seedCoupon(t, repo, models.Coupon{Code: "TEN", Type: models.CouponTypePercentage, Value: dec("10"), Active: true})
	seedCoupon(t, repo, models.Coupon{Code: "FIFTEEN", Type: models.CouponTypeFixed, Value: dec("15"), Active: true})

	quote, err := svc.Validate(context.Background(), "TEN", dec("50.00"))
	require.NoError(t, err)
	assert.Equal(t, "5.00", quote.Discount.StringFixed(2))
	assert.Equal(t, "45.00", quote.FinalTotal.StringFixed(2))

	quote, err = svc.Validate(context.Background(), "FIFTEEN", dec("10.00"))
	require.NoError(t, err)
	assert.Equal(t, "10.00", quote.Discount.StringFixed(2))
	assert.Equal(t, "0.00", quote.FinalTotal.StringFixed(2))

	// validation never records a use
	coupon, err := repo.GetCouponByCode(context.Background(), "TEN")
	require.NoError(t, err)
	assert.Equal(t, 0, coupon.UsedCount)
}

func TestValidateCouponRejections(t *testing.T) {
	repo := memstore.New()
	svc := newCouponService(repo)
	seedCoupon(t, repo, models.Coupon{Code: "TEN", Type: models.CouponTypePercentage, Value: dec("10"), Active: true})

	_, err := svc.Validate(context.Background(), "MISSING", dec("10"))
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = svc.Validate(context.Background(), "TEN", decimal.Zero)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = svc.Validate(context.Background(), "  ", dec("10"))
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestCreateCoupon(t *testing.T) {
	repo := memstore.New()
	svc := newCouponService(repo)

	req := &CreateCouponRequest{Code: "SPRING", Type: models.CouponTypePercentage, Value: dec("20")}

	_, err := svc.CreateCoupon(context.Background(), buyer, req)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	coupon, err := svc.CreateCoupon(context.Background(), admin, req)
	require.NoError(t, err)
	assert.NotZero(t, coupon.ID)
	assert.True(t, coupon.Active)

	_, err = svc.CreateCoupon(context.Background(), admin, req)
	assert.True(t, apperror.Is(err, apperror.KindConflict))

	coupons, err := svc.ListCoupons(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, coupons, 1)

	_, err = svc.ListCoupons(context.Background(), buyer)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))
}

func TestCreateCouponValidation(t *testing.T) {
	svc := newCouponService(memstore.New())

	tests := []struct {
		name string
		req  CreateCouponRequest
	}{
		{"empty code", CreateCouponRequest{Type: models.CouponTypeFixed, Value: dec("1")}},
		{"long code", CreateCouponRequest{Code: "X123456789X123456789X123456789X123456789X123456789X", Type: models.CouponTypeFixed, Value: dec("1")}},
		{"bad type", CreateCouponRequest{Code: "A", Type: "FREE", Value: dec("1")}},
		{"zero value", CreateCouponRequest{Code: "A", Type: models.CouponTypeFixed}},
		{"percentage over 100", CreateCouponRequest{Code: "A", Type: models.CouponTypePercentage, Value: dec("101")}},
		{"negative minimum", CreateCouponRequest{Code: "A", Type: models.CouponTypeFixed, Value: dec("1"), MinOrder: dec("-1")}},
		{"negative max uses", CreateCouponRequest{Code: "A", Type: models.CouponTypeFixed, Value: dec("1"), MaxUses: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateCoupon(context.Background(), admin, &tt.req)
			assert.True(t, apperror.Is(err, apperror.KindValidation))
		})
	}
}
