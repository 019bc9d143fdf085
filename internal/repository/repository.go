// Package repository is the data-access port used by the services. The Postgres store and the
// in-memory store both implement it.
//
// Book reads never return soft-deleted rows. Missing rows are reported as apperror NotFound,
// uniqueness violations as apperror Conflict.
package repository

import (
	"context"

	"bookstore/internal/models"
)

// Queries are the reads and writes available both inside and outside a transaction
type Queries interface {
	// GetBooksByIDs returns the non-deleted books among ids; missing ids are simply absent.
	GetBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error)
	// LockBooksByIDs is GetBooksByIDs with row locks held until the transaction ends.
	LockBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error)
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
	ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, error)
	CreateBook(ctx context.Context, book *models.Book) error
	// UpdateBook writes the catalog fields of book and never its stock.
	UpdateBook(ctx context.Context, book *models.Book) error
	// SetStock is the only write that replaces stock outright (administrative restock).
	SetStock(ctx context.Context, bookID int64, stock int) error
	SoftDeleteBook(ctx context.Context, id int64) error
	// DecrementStock fails with a Validation error when stock would go negative.
	DecrementStock(ctx context.Context, bookID int64, quantity int) error
	IncrementStock(ctx context.Context, bookID int64, quantity int) error

	// CreateOrder inserts the order and its items and fills in their ids and timestamps.
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	LockOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// GetOrderByIdempotencyKey returns nil, nil when no order carries the key.
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	// ListOrders returns the orders of userID, or all orders when userID is nil, newest first.
	ListOrders(ctx context.Context, userID *int64) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error
	HasOrderedBook(ctx context.Context, userID, bookID int64, statuses []models.OrderStatus) (bool, error)

	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	LockCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	ListCoupons(ctx context.Context) ([]models.Coupon, error)
	CreateCoupon(ctx context.Context, coupon *models.Coupon) error
	IncrementCouponUsage(ctx context.Context, couponID int64) error
	DecrementCouponUsage(ctx context.Context, couponID int64) error

	GetReviewByID(ctx context.Context, id int64) (*models.Review, error)
	// GetReview returns nil, nil when the user has not reviewed the book.
	GetReview(ctx context.Context, userID, bookID int64) (*models.Review, error)
	ListReviews(ctx context.Context, bookID int64) ([]models.Review, error)
	CreateReview(ctx context.Context, review *models.Review) error
	DeleteReview(ctx context.Context, id int64) error

	ListWishlist(ctx context.Context, userID int64) ([]models.WishlistItem, error)
	// GetWishlistItem returns nil, nil when the book is not on the list.
	GetWishlistItem(ctx context.Context, userID, bookID int64) (*models.WishlistItem, error)
	AddWishlistItem(ctx context.Context, item *models.WishlistItem) error
	RemoveWishlistItem(ctx context.Context, userID, bookID int64) error
}

// Repository is the full data-access port
type Repository interface {
	Queries

	// WithTx runs fn inside one atomic unit. Every write made through q is rolled back when fn
	// returns an error; concurrent units touching the same rows are serialised.
	WithTx(ctx context.Context, fn func(q Queries) error) error

	Ping(ctx context.Context) error
}
