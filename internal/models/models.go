package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book represents a book in the catalog
type Book struct {
	ID         int64           `db:"id" json:"id"`
	Title      string          `db:"title" json:"title"`
	Author     string          `db:"author" json:"author"`
	ISBN       string          `db:"isbn" json:"isbn"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Stock      int             `db:"stock" json:"stock"`
	CategoryID int64           `db:"category_id" json:"category_id"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time      `db:"deleted_at" json:"-"`
}

// BookDetail is a book together with its review summary
type BookDetail struct {
	Book
	ReviewCount int              `json:"review_count"`
	AvgRating   *decimal.Decimal `json:"avg_rating"`
}

// Order represents a customer order
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	Status         OrderStatus     `db:"status" json:"status"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	TotalPrice     decimal.Decimal `db:"total_price" json:"total_price"`
	CouponID       *int64          `db:"coupon_id" json:"-"`
	CouponCode     *string         `db:"coupon_code" json:"coupon_code,omitempty"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	Items          []OrderItem     `db:"-" json:"items"`
}

// OrderItem represents a line of an order. Price is the catalog price at order time.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	BookID    int64           `db:"book_id" json:"book_id"`
	BookTitle string          `db:"book_title" json:"book_title"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// CouponType is the discount rule of a coupon
type CouponType string

const (
	CouponTypePercentage CouponType = "PERCENTAGE"
	CouponTypeFixed      CouponType = "FIXED"
)

// Valid reports whether t is a known coupon type
func (t CouponType) Valid() bool {
	switch t {
	case CouponTypePercentage, CouponTypeFixed:
		return true
	}
	return false
}

// Coupon represents a named discount rule
type Coupon struct {
	ID        int64           `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Type      CouponType      `db:"type" json:"type"`
	Value     decimal.Decimal `db:"value" json:"value"`
	MinOrder  decimal.Decimal `db:"min_order" json:"min_order"`
	MaxUses   int             `db:"max_uses" json:"max_uses"`
	UsedCount int             `db:"used_count" json:"used_count"`
	ExpiresAt *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Review represents a buyer's rating of a book
type Review struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	BookID    int64     `db:"book_id" json:"book_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WishlistItem represents a book saved by a user
type WishlistItem struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	BookID    int64     `db:"book_id" json:"book_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Book      *Book     `db:"-" json:"book,omitempty"`
}

// BookFilter narrows catalog listings
type BookFilter struct {
	Search     string
	CategoryID int64
}
