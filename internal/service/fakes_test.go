package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"bookstore/internal/models"
	"bookstore/internal/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	buyer  = models.Identity{UserID: 100, Role: models.RoleUser}
	other  = models.Identity{UserID: 200, Role: models.RoleUser}
	admin  = models.Identity{UserID: 1, Role: models.RoleAdmin}
	testTS = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

type fakePublisher struct {
	mu            sync.Mutex
	created       []*models.OrderCreatedEvent
	cancelled     []*models.OrderCancelledEvent
	statusChanged []*models.OrderStatusChangedEvent
	err           error
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return p.err
}

func (p *fakePublisher) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return p.err
}

func (p *fakePublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusChanged = append(p.statusChanged, e)
	return p.err
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	refuse   bool
	released []string
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.refuse || l.held[key] {
		return "", false, nil
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	l.held[key] = true
	return "token-" + key, true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[int64]*models.BookDetail
	invalidated []int64
	err         error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[int64]*models.BookDetail)}
}

func (c *fakeCache) GetBook(ctx context.Context, id int64) (*models.BookDetail, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	detail, ok := c.entries[id]
	return detail, ok, nil
}

func (c *fakeCache) SetBook(ctx context.Context, detail *models.BookDetail) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[detail.ID] = detail
	return nil
}

func (c *fakeCache) InvalidateBooks(ctx context.Context, ids ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	for _, id := range ids {
		delete(c.entries, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *fakeDeduper) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

func (d *fakeDeduper) UnmarkEventProcessed(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.seen, eventID)
	return nil
}

func seedBook(t *testing.T, repo *memstore.Store, title, price string, stock int) *models.Book {
	t.Helper()

	book := &models.Book{
		Title:      title,
		Author:     "Author",
		ISBN:       "978-0000000000",
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		CategoryID: 1,
	}
	require.NoError(t, repo.CreateBook(context.Background(), book))
	return book
}

func seedCoupon(t *testing.T, repo *memstore.Store, coupon models.Coupon) *models.Coupon {
	t.Helper()

	require.NoError(t, repo.CreateCoupon(context.Background(), &coupon))
	return &coupon
}

func stockOf(t *testing.T, repo *memstore.Store, id int64) int {
	t.Helper()

	book, err := repo.GetBookByID(context.Background(), id)
	require.NoError(t, err)
	return book.Stock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
