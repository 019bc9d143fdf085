package service

import (
	"context"
	"testing"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/repository"
	"bookstore/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBookCachesDetail(t *testing.T) {
	repo := memstore.New()
	cache := newFakeCache()
	svc := NewCatalogService(repo, cache)
	book := seedBook(t, repo, "Dune", "10.00", 5)

	for i, rating := range []int{5, 4, 4} {
		review := &models.Review{UserID: int64(500 + i), BookID: book.ID, Rating: rating}
		require.NoError(t, repo.CreateReview(context.Background(), review))
	}

	detail, err := svc.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, detail.ReviewCount)
	require.NotNil(t, detail.AvgRating)
	assert.Equal(t, "4.33", detail.AvgRating.StringFixed(2))
	assert.Contains(t, cache.entries, book.ID)

	// served from cache once stored
	require.NoError(t, repo.SoftDeleteBook(context.Background(), book.ID))
	cached, err := svc.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", cached.Title)
}

func TestGetBookWithoutReviews(t *testing.T) {
	repo := memstore.New()
	svc := NewCatalogService(repo, newFakeCache())
	book := seedBook(t, repo, "Dune", "10.00", 5)

	detail, err := svc.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Zero(t, detail.ReviewCount)
	assert.Nil(t, detail.AvgRating)

	_, err = svc.GetBook(context.Background(), 9999)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCatalogAdminOperations(t *testing.T) {
	repo := memstore.New()
	cache := newFakeCache()
	svc := NewCatalogService(repo, cache)

	req := &CreateBookRequest{
		Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593",
		Price: dec("14.99"), Stock: 3, CategoryID: 2,
	}

	_, err := svc.CreateBook(context.Background(), buyer, req)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	book, err := svc.CreateBook(context.Background(), admin, req)
	require.NoError(t, err)

	price := dec("12.50")
	updated, err := svc.UpdateBook(context.Background(), admin, book.ID, &UpdateBookRequest{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "12.50", updated.Price.StringFixed(2))
	assert.Equal(t, "Dune", updated.Title)
	assert.Contains(t, cache.invalidated, book.ID)

	negative := -1
	_, err = svc.UpdateBook(context.Background(), admin, book.ID, &UpdateBookRequest{Stock: &negative})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	require.NoError(t, svc.DeleteBook(context.Background(), admin, book.ID))
	err = svc.DeleteBook(context.Background(), admin, book.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	books, err := svc.ListBooks(context.Background(), models.BookFilter{})
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestCreateBookValidation(t *testing.T) {
	svc := NewCatalogService(memstore.New(), newFakeCache())

	valid := CreateBookRequest{Title: "T", Author: "A", ISBN: "1234567890", Price: dec("1.00"), Stock: 0, CategoryID: 1}
	tests := []struct {
		name   string
		mutate func(r *CreateBookRequest)
	}{
		{"empty title", func(r *CreateBookRequest) { r.Title = " " }},
		{"empty author", func(r *CreateBookRequest) { r.Author = "" }},
		{"short isbn", func(r *CreateBookRequest) { r.ISBN = "123" }},
		{"zero price", func(r *CreateBookRequest) { r.Price = dec("0") }},
		{"sub-cent price", func(r *CreateBookRequest) { r.Price = dec("1.005") }},
		{"negative stock", func(r *CreateBookRequest) { r.Stock = -1 }},
		{"no category", func(r *CreateBookRequest) { r.CategoryID = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.CreateBook(context.Background(), admin, &req)
			assert.True(t, apperror.Is(err, apperror.KindValidation))
		})
	}
}

// interleavedRepo calls afterLock once, right after the first book row lock of a transaction
type interleavedRepo struct {
	*memstore.Store
	afterLock func()
}

func (r *interleavedRepo) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	return r.Store.WithTx(ctx, func(q repository.Queries) error {
		return fn(&interleavedQueries{Queries: q, repo: r})
	})
}

type interleavedQueries struct {
	repository.Queries
	repo *interleavedRepo
}

func (q *interleavedQueries) LockBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error) {
	books, err := q.Queries.LockBooksByIDs(ctx, ids)
	if hook := q.repo.afterLock; hook != nil {
		q.repo.afterLock = nil
		hook()
	}
	return books, err
}

func TestUpdateBookKeepsConcurrentCheckout(t *testing.T) {
	repo := memstore.New()
	book := seedBook(t, repo, "Dune", "10.00", 5)
	orders := NewOrderService(repo, &fakeLocker{}, &fakePublisher{}, time.Minute)

	placed := make(chan error, 1)
	wrapped := &interleavedRepo{Store: repo}
	wrapped.afterLock = func() {
		started := make(chan struct{})
		go func() {
			close(started)
			_, err := orders.PlaceOrder(context.Background(), buyer, &PlaceOrderRequest{
				Items: []OrderItemRequest{{BookID: book.ID, Quantity: 3}},
			})
			placed <- err
		}()
		<-started
		time.Sleep(20 * time.Millisecond)
	}
	svc := NewCatalogService(wrapped, newFakeCache())

	title := "Dune Messiah"
	updated, err := svc.UpdateBook(context.Background(), admin, book.ID, &UpdateBookRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	require.NoError(t, <-placed)

	assert.Equal(t, 2, stockOf(t, repo, book.ID))
	reloaded, err := repo.GetBookByID(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", reloaded.Title)
}

func TestUpdateBookRestock(t *testing.T) {
	repo := memstore.New()
	svc := NewCatalogService(repo, newFakeCache())
	book := seedBook(t, repo, "Dune", "10.00", 5)

	stock := 12
	updated, err := svc.UpdateBook(context.Background(), admin, book.ID, &UpdateBookRequest{Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, 12, updated.Stock)
	assert.Equal(t, 12, stockOf(t, repo, book.ID))

	_, err = svc.UpdateBook(context.Background(), admin, 999, &UpdateBookRequest{Stock: &stock})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}
