// Package memstore is an in-memory repository.Repository used by tests and local runs without
// Postgres. Transactions are serialised with a single lock and undone on error. Writes made
// outside a transaction take the same lock.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/repository"
)

var _ repository.Repository = (*Store)(nil)

// Store keeps every table in maps guarded by a mutex
type Store struct {
	queries

	txMu sync.Mutex
	mu   sync.Mutex

	books    map[int64]*models.Book
	orders   map[int64]*models.Order
	coupons  map[int64]*models.Coupon
	reviews  map[int64]*models.Review
	wishlist map[int64]*models.WishlistItem
	lastID   int64

	failures map[string]error
	now      func() time.Time
}

// New creates an empty store
func New() *Store {
	s := &Store{
		books:    make(map[int64]*models.Book),
		orders:   make(map[int64]*models.Order),
		coupons:  make(map[int64]*models.Coupon),
		reviews:  make(map[int64]*models.Review),
		wishlist: make(map[int64]*models.WishlistItem),
		failures: make(map[string]error),
		now:      time.Now,
	}
	s.queries = queries{s: s}
	return s
}

// FailOn makes every later call of the named operation return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// WithTx runs fn while holding the transaction lock. Writes made through q are undone in reverse
// order when fn returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var undo []func()
	if err := fn(&queries{s: s, undo: &undo}); err != nil {
		s.mu.Lock()
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// queries implements repository.Queries. Inside a transaction undo is non-nil and collects
// the inverse of every write.
type queries struct {
	s    *Store
	undo *[]func()
}

// lock takes the data lock and reports the injected failure for op, if any
func (q *queries) lock(op string) error {
	q.s.mu.Lock()
	return q.s.failures[op]
}

func (q *queries) unlock() {
	q.s.mu.Unlock()
}

// lockWrite is lock for writes. Outside a transaction it also takes the transaction lock, so a
// rollback never restores values over a write it did not make.
func (q *queries) lockWrite(op string) error {
	if q.undo == nil {
		q.s.txMu.Lock()
	}
	return q.lock(op)
}

func (q *queries) unlockWrite() {
	q.unlock()
	if q.undo == nil {
		q.s.txMu.Unlock()
	}
}

func (q *queries) record(fn func()) {
	if q.undo != nil {
		*q.undo = append(*q.undo, fn)
	}
}

func (q *queries) nextID() int64 {
	q.s.lastID++
	return q.s.lastID
}

func copyBook(b *models.Book) models.Book {
	c := *b
	if b.DeletedAt != nil {
		t := *b.DeletedAt
		c.DeletedAt = &t
	}
	return c
}

func (q *queries) copyOrder(o *models.Order) models.Order {
	c := *o
	c.Items = make([]models.OrderItem, len(o.Items))
	copy(c.Items, o.Items)
	for i := range c.Items {
		if book, ok := q.s.books[c.Items[i].BookID]; ok {
			c.Items[i].BookTitle = book.Title
		}
	}
	return c
}

// GetBooksByIDs retrieves the non-deleted books among ids, ordered by id
func (q *queries) GetBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error) {
	return q.booksByIDs("GetBooksByIDs", ids)
}

// LockBooksByIDs is GetBooksByIDs; the transaction lock already serialises access
func (q *queries) LockBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error) {
	return q.booksByIDs("LockBooksByIDs", ids)
}

func (q *queries) booksByIDs(op string, ids []int64) ([]models.Book, error) {
	if err := q.lock(op); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	seen := make(map[int64]bool, len(ids))
	books := []models.Book{}
	for _, id := range ids {
		book, ok := q.s.books[id]
		if !ok || book.DeletedAt != nil || seen[id] {
			continue
		}
		seen[id] = true
		books = append(books, copyBook(book))
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

// GetBookByID retrieves a non-deleted book
func (q *queries) GetBookByID(ctx context.Context, id int64) (*models.Book, error) {
	if err := q.lock("GetBookByID"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	book, ok := q.s.books[id]
	if !ok || book.DeletedAt != nil {
		return nil, apperror.NotFound("Book")
	}
	c := copyBook(book)
	return &c, nil
}

// ListBooks retrieves non-deleted books matching filter, newest first
func (q *queries) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, error) {
	if err := q.lock("ListBooks"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	search := strings.ToLower(filter.Search)
	books := []models.Book{}
	for _, book := range q.s.books {
		if book.DeletedAt != nil {
			continue
		}
		if filter.CategoryID != 0 && book.CategoryID != filter.CategoryID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(book.Title), search) &&
			!strings.Contains(strings.ToLower(book.Author), search) {
			continue
		}
		books = append(books, copyBook(book))
	}
	sort.Slice(books, func(i, j int) bool {
		if !books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].CreatedAt.After(books[j].CreatedAt)
		}
		return books[i].ID > books[j].ID
	})
	return books, nil
}

// CreateBook creates a book
func (q *queries) CreateBook(ctx context.Context, book *models.Book) error {
	if err := q.lockWrite("CreateBook"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	now := q.s.now()
	book.ID = q.nextID()
	book.CreatedAt = now
	book.UpdatedAt = now
	book.DeletedAt = nil

	stored := copyBook(book)
	q.s.books[book.ID] = &stored
	id := book.ID
	q.record(func() { delete(q.s.books, id) })
	return nil
}

// UpdateBook updates the catalog fields of a non-deleted book. Stock is left as stored and
// copied back into book.
func (q *queries) UpdateBook(ctx context.Context, book *models.Book) error {
	if err := q.lockWrite("UpdateBook"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	stored, ok := q.s.books[book.ID]
	if !ok || stored.DeletedAt != nil {
		return apperror.NotFound("Book")
	}

	prev := *stored
	stored.Title = book.Title
	stored.Author = book.Author
	stored.ISBN = book.ISBN
	stored.Price = book.Price
	stored.CategoryID = book.CategoryID
	stored.UpdatedAt = q.s.now()

	book.Stock = stored.Stock
	book.CreatedAt = stored.CreatedAt
	book.UpdatedAt = stored.UpdatedAt
	q.record(func() { *stored = prev })
	return nil
}

// SetStock overwrites the stock of a non-deleted book
func (q *queries) SetStock(ctx context.Context, bookID int64, stock int) error {
	if err := q.lockWrite("SetStock"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	stored, ok := q.s.books[bookID]
	if !ok || stored.DeletedAt != nil {
		return apperror.NotFound("Book")
	}
	if stock < 0 {
		return apperror.Validation("Stock cannot be negative")
	}

	prev := stored.Stock
	stored.Stock = stock
	stored.UpdatedAt = q.s.now()
	q.record(func() { stored.Stock = prev })
	return nil
}

// SoftDeleteBook marks a book as deleted
func (q *queries) SoftDeleteBook(ctx context.Context, id int64) error {
	if err := q.lockWrite("SoftDeleteBook"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	stored, ok := q.s.books[id]
	if !ok || stored.DeletedAt != nil {
		return apperror.NotFound("Book")
	}

	now := q.s.now()
	stored.DeletedAt = &now
	q.record(func() { stored.DeletedAt = nil })
	return nil
}

// DecrementStock removes quantity from a book's stock, refusing to go below zero
func (q *queries) DecrementStock(ctx context.Context, bookID int64, quantity int) error {
	if err := q.lockWrite("DecrementStock"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	stored, ok := q.s.books[bookID]
	if !ok || stored.DeletedAt != nil || stored.Stock < quantity {
		return apperror.Validation("Insufficient stock for book %d", bookID)
	}

	prev := stored.Stock
	stored.Stock -= quantity
	q.record(func() { stored.Stock = prev })
	return nil
}

// IncrementStock returns quantity to a book's stock
func (q *queries) IncrementStock(ctx context.Context, bookID int64, quantity int) error {
	if err := q.lockWrite("IncrementStock"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	stored, ok := q.s.books[bookID]
	if !ok {
		return apperror.NotFound("Book")
	}

	prev := stored.Stock
	stored.Stock += quantity
	q.record(func() { stored.Stock = prev })
	return nil
}

// CreateOrder creates an order together with its items
func (q *queries) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := q.lockWrite("CreateOrder"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	if order.IdempotencyKey != nil {
		for _, existing := range q.s.orders {
			if existing.UserID == order.UserID && existing.IdempotencyKey != nil &&
				*existing.IdempotencyKey == *order.IdempotencyKey {
				return apperror.Conflict("An order with this idempotency key already exists")
			}
		}
	}

	now := q.s.now()
	order.ID = q.nextID()
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		order.Items[i].ID = q.nextID()
		order.Items[i].OrderID = order.ID
	}

	stored := *order
	stored.Items = make([]models.OrderItem, len(order.Items))
	copy(stored.Items, order.Items)
	q.s.orders[order.ID] = &stored

	id := order.ID
	q.record(func() { delete(q.s.orders, id) })
	return nil
}

// GetOrderByID retrieves an order with its items
func (q *queries) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return q.orderByID("GetOrderByID", id)
}

// LockOrderByID is GetOrderByID; the transaction lock already serialises access
func (q *queries) LockOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return q.orderByID("LockOrderByID", id)
}

func (q *queries) orderByID(op string, id int64) (*models.Order, error) {
	if err := q.lock(op); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	stored, ok := q.s.orders[id]
	if !ok {
		return nil, apperror.NotFound("Order")
	}
	c := q.copyOrder(stored)
	return &c, nil
}

// GetOrderByIdempotencyKey retrieves a user's order by idempotency key
func (q *queries) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	if err := q.lock("GetOrderByIdempotencyKey"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	for _, stored := range q.s.orders {
		if stored.UserID == userID && stored.IdempotencyKey != nil && *stored.IdempotencyKey == key {
			c := q.copyOrder(stored)
			return &c, nil
		}
	}
	return nil, nil
}

// ListOrders retrieves orders for a user, or every order when userID is nil
func (q *queries) ListOrders(ctx context.Context, userID *int64) ([]models.Order, error) {
	if err := q.lock("ListOrders"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	orders := []models.Order{}
	for _, stored := range q.s.orders {
		if userID != nil && stored.UserID != *userID {
			continue
		}
		orders = append(orders, q.copyOrder(stored))
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

// UpdateOrderStatus updates order status
func (q *queries) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	if err := q.lockWrite("UpdateOrderStatus"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	stored, ok := q.s.orders[id]
	if !ok {
		return apperror.NotFound("Order")
	}

	prevStatus, prevUpdated := stored.Status, stored.UpdatedAt
	stored.Status = status
	stored.UpdatedAt = q.s.now()
	q.record(func() {
		stored.Status = prevStatus
		stored.UpdatedAt = prevUpdated
	})
	return nil
}

// HasOrderedBook reports whether the user has the book on an order in one of statuses
func (q *queries) HasOrderedBook(ctx context.Context, userID, bookID int64, statuses []models.OrderStatus) (bool, error) {
	if err := q.lock("HasOrderedBook"); err != nil {
		q.unlock()
		return false, err
	}
	defer q.unlock()

	for _, stored := range q.s.orders {
		if stored.UserID != userID || !containsStatus(statuses, stored.Status) {
			continue
		}
		for _, item := range stored.Items {
			if item.BookID == bookID {
				return true, nil
			}
		}
	}
	return false, nil
}

func containsStatus(statuses []models.OrderStatus, status models.OrderStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// GetCouponByCode retrieves a coupon by its unique code
func (q *queries) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return q.couponByCode("GetCouponByCode", code)
}

// LockCouponByCode is GetCouponByCode; the transaction lock already serialises access
func (q *queries) LockCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return q.couponByCode("LockCouponByCode", code)
}

func (q *queries) couponByCode(op, code string) (*models.Coupon, error) {
	if err := q.lock(op); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	for _, stored := range q.s.coupons {
		if stored.Code == code {
			c := *stored
			return &c, nil
		}
	}
	return nil, apperror.NotFound("Coupon")
}

// ListCoupons retrieves all coupons, newest first
func (q *queries) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	if err := q.lock("ListCoupons"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	coupons := make([]models.Coupon, 0, len(q.s.coupons))
	for _, stored := range q.s.coupons {
		coupons = append(coupons, *stored)
	}
	sort.Slice(coupons, func(i, j int) bool {
		if !coupons[i].CreatedAt.Equal(coupons[j].CreatedAt) {
			return coupons[i].CreatedAt.After(coupons[j].CreatedAt)
		}
		return coupons[i].ID > coupons[j].ID
	})
	return coupons, nil
}

// CreateCoupon creates a coupon
func (q *queries) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	if err := q.lockWrite("CreateCoupon"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	for _, stored := range q.s.coupons {
		if stored.Code == coupon.Code {
			return apperror.Conflict("Coupon code already exists")
		}
	}

	coupon.ID = q.nextID()
	coupon.CreatedAt = q.s.now()
	stored := *coupon
	q.s.coupons[coupon.ID] = &stored

	id := coupon.ID
	q.record(func() { delete(q.s.coupons, id) })
	return nil
}

// IncrementCouponUsage records one use of a coupon
func (q *queries) IncrementCouponUsage(ctx context.Context, couponID int64) error {
	return q.adjustCouponUsage("IncrementCouponUsage", couponID, 1)
}

// DecrementCouponUsage gives back one use of a coupon, never going below zero
func (q *queries) DecrementCouponUsage(ctx context.Context, couponID int64) error {
	return q.adjustCouponUsage("DecrementCouponUsage", couponID, -1)
}

func (q *queries) adjustCouponUsage(op string, couponID int64, delta int) error {
	if err := q.lockWrite(op); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	stored, ok := q.s.coupons[couponID]
	if !ok {
		return apperror.NotFound("Coupon")
	}

	prev := stored.UsedCount
	stored.UsedCount += delta
	if stored.UsedCount < 0 {
		stored.UsedCount = 0
	}
	q.record(func() { stored.UsedCount = prev })
	return nil
}

// GetReviewByID retrieves a review by ID
func (q *queries) GetReviewByID(ctx context.Context, id int64) (*models.Review, error) {
	if err := q.lock("GetReviewByID"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	stored, ok := q.s.reviews[id]
	if !ok {
		return nil, apperror.NotFound("Review")
	}
	c := *stored
	return &c, nil
}

// GetReview retrieves the user's review of a book, nil when there is none
func (q *queries) GetReview(ctx context.Context, userID, bookID int64) (*models.Review, error) {
	if err := q.lock("GetReview"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	for _, stored := range q.s.reviews {
		if stored.UserID == userID && stored.BookID == bookID {
			c := *stored
			return &c, nil
		}
	}
	return nil, nil
}

// ListReviews retrieves the reviews of a book, newest first
func (q *queries) ListReviews(ctx context.Context, bookID int64) ([]models.Review, error) {
	if err := q.lock("ListReviews"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	reviews := []models.Review{}
	for _, stored := range q.s.reviews {
		if stored.BookID == bookID {
			reviews = append(reviews, *stored)
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		if !reviews[i].CreatedAt.Equal(reviews[j].CreatedAt) {
			return reviews[i].CreatedAt.After(reviews[j].CreatedAt)
		}
		return reviews[i].ID > reviews[j].ID
	})
	return reviews, nil
}

// CreateReview creates a review
func (q *queries) CreateReview(ctx context.Context, review *models.Review) error {
	if err := q.lockWrite("CreateReview"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	for _, stored := range q.s.reviews {
		if stored.UserID == review.UserID && stored.BookID == review.BookID {
			return apperror.Conflict("You have already reviewed this book")
		}
	}

	review.ID = q.nextID()
	review.CreatedAt = q.s.now()
	stored := *review
	q.s.reviews[review.ID] = &stored

	id := review.ID
	q.record(func() { delete(q.s.reviews, id) })
	return nil
}

// DeleteReview deletes a review
func (q *queries) DeleteReview(ctx context.Context, id int64) error {
	if err := q.lockWrite("DeleteReview"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	stored, ok := q.s.reviews[id]
	if !ok {
		return apperror.NotFound("Review")
	}
	delete(q.s.reviews, id)
	q.record(func() { q.s.reviews[id] = stored })
	return nil
}

// ListWishlist retrieves a user's wishlist with the saved books, newest first
func (q *queries) ListWishlist(ctx context.Context, userID int64) ([]models.WishlistItem, error) {
	if err := q.lock("ListWishlist"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	items := []models.WishlistItem{}
	for _, stored := range q.s.wishlist {
		if stored.UserID != userID {
			continue
		}
		book, ok := q.s.books[stored.BookID]
		if !ok || book.DeletedAt != nil {
			continue
		}
		item := *stored
		b := copyBook(book)
		item.Book = &b
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

// GetWishlistItem retrieves one wishlist entry, nil when absent
func (q *queries) GetWishlistItem(ctx context.Context, userID, bookID int64) (*models.WishlistItem, error) {
	if err := q.lock("GetWishlistItem"); err != nil {
		q.unlock()
		return nil, err
	}
	defer q.unlock()

	for _, stored := range q.s.wishlist {
		if stored.UserID == userID && stored.BookID == bookID {
			c := *stored
			return &c, nil
		}
	}
	return nil, nil
}

// AddWishlistItem saves a book on a user's wishlist
func (q *queries) AddWishlistItem(ctx context.Context, item *models.WishlistItem) error {
	if err := q.lockWrite("AddWishlistItem"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	for _, stored := range q.s.wishlist {
		if stored.UserID == item.UserID && stored.BookID == item.BookID {
			return apperror.Conflict("Book is already in your wishlist")
		}
	}

	item.ID = q.nextID()
	item.CreatedAt = q.s.now()
	stored := *item
	stored.Book = nil
	q.s.wishlist[item.ID] = &stored

	id := item.ID
	q.record(func() { delete(q.s.wishlist, id) })
	return nil
}

// RemoveWishlistItem removes a book from a user's wishlist
func (q *queries) RemoveWishlistItem(ctx context.Context, userID, bookID int64) error {
	if err := q.lockWrite("RemoveWishlistItem"); err != nil {
		q.unlockWrite()
		return err
	}
	defer q.unlockWrite()

	for id, stored := range q.s.wishlist {
		if stored.UserID == userID && stored.BookID == bookID {
			delete(q.s.wishlist, id)
			removed := stored
			q.record(func() { q.s.wishlist[removed.ID] = removed })
			return nil
		}
	}
	return apperror.NotFound("Wishlist item")
}
