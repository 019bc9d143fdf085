package service

import (
	"context"
	"strings"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/repository"
	"bookstore/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService serves the book catalog through the book cache
type CatalogService struct {
	repo   repository.Repository
	cache  BookCache
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo repository.Repository, cache BookCache) *CatalogService {
	return &CatalogService{
		repo:   repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// CreateBookRequest represents a new catalog entry
type CreateBookRequest struct {
	Title      string          `json:"title" binding:"required"`
	Author     string          `json:"author" binding:"required"`
	ISBN       string          `json:"isbn" binding:"required"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	CategoryID int64           `json:"category_id" binding:"required"`
}

// UpdateBookRequest carries the fields to change; nil fields are left as they are
type UpdateBookRequest struct {
	Title      *string          `json:"title,omitempty"`
	Author     *string          `json:"author,omitempty"`
	ISBN       *string          `json:"isbn,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Stock      *int             `json:"stock,omitempty"`
	CategoryID *int64           `json:"category_id,omitempty"`
}

func validateBook(book *models.Book) error {
	switch {
	case book.Title == "" || len(book.Title) > 200:
		return apperror.Validation("Title must be between 1 and 200 characters")
	case book.Author == "" || len(book.Author) > 200:
		return apperror.Validation("Author must be between 1 and 200 characters")
	case len(book.ISBN) < 10 || len(book.ISBN) > 20:
		return apperror.Validation("Invalid ISBN")
	case !book.Price.IsPositive():
		return apperror.Validation("Price must be positive")
	case !book.Price.Equal(book.Price.Round(2)):
		return apperror.Validation("Price must have at most 2 decimal places")
	case book.Stock < 0:
		return apperror.Validation("Stock cannot be negative")
	case book.CategoryID <= 0:
		return apperror.Validation("Category is required")
	}
	return nil
}

// GetBook returns a book with its review summary
func (s *CatalogService) GetBook(ctx context.Context, id int64) (*models.BookDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetBook", util.BookIDAttr(id))
	defer span.End()

	cached, ok, err := s.cache.GetBook(ctx, id)
	if err != nil {
		s.logger.Warn("Book cache read failed", zap.Int64("book_id", id), zap.Error(err))
	}
	if ok {
		util.BookCacheRequestsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	util.BookCacheRequestsTotal.WithLabelValues("miss").Inc()

	book, err := s.repo.GetBookByID(ctx, id)
	if err != nil {
		return nil, err
	}

	reviews, err := s.repo.ListReviews(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.BookDetail{Book: *book, ReviewCount: len(reviews)}
	if len(reviews) > 0 {
		sum := 0
		for _, r := range reviews {
			sum += r.Rating
		}
		avg := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(reviews)))).Round(2)
		detail.AvgRating = &avg
	}

	if err := s.cache.SetBook(ctx, detail); err != nil {
		s.logger.Warn("Book cache write failed", zap.Int64("book_id", id), zap.Error(err))
	}
	return detail, nil
}

// ListBooks returns the non-deleted books matching filter
func (s *CatalogService) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.ListBooks(ctx, filter)
}

// CreateBook adds a book to the catalog
func (s *CatalogService) CreateBook(ctx context.Context, identity models.Identity, req *CreateBookRequest) (*models.Book, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	book := &models.Book{
		Title:      strings.TrimSpace(req.Title),
		Author:     strings.TrimSpace(req.Author),
		ISBN:       strings.TrimSpace(req.ISBN),
		Price:      req.Price,
		Stock:      req.Stock,
		CategoryID: req.CategoryID,
	}
	if err := validateBook(book); err != nil {
		return nil, err
	}

	if err := s.repo.CreateBook(ctx, book); err != nil {
		return nil, err
	}

	s.logger.Info("Book created", zap.Int64("book_id", book.ID), zap.String("title", book.Title))
	return book, nil
}

// UpdateBook changes catalog fields of a book under its row lock. Stock is written only when the
// request sets it. Existing orders keep their recorded prices.
func (s *CatalogService) UpdateBook(ctx context.Context, identity models.Identity, id int64, req *UpdateBookRequest) (*models.Book, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	var book *models.Book
	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		locked, err := q.LockBooksByIDs(ctx, []int64{id})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return apperror.NotFound("Book")
		}
		book = &locked[0]

		if req.Title != nil {
			book.Title = strings.TrimSpace(*req.Title)
		}
		if req.Author != nil {
			book.Author = strings.TrimSpace(*req.Author)
		}
		if req.ISBN != nil {
			book.ISBN = strings.TrimSpace(*req.ISBN)
		}
		if req.Price != nil {
			book.Price = *req.Price
		}
		if req.Stock != nil {
			book.Stock = *req.Stock
		}
		if req.CategoryID != nil {
			book.CategoryID = *req.CategoryID
		}
		if err := validateBook(book); err != nil {
			return err
		}

		if err := q.UpdateBook(ctx, book); err != nil {
			return err
		}
		if req.Stock != nil {
			if err := q.SetStock(ctx, id, *req.Stock); err != nil {
				return err
			}
			book.Stock = *req.Stock
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	return book, nil
}

// DeleteBook soft deletes a book
func (s *CatalogService) DeleteBook(ctx context.Context, identity models.Identity, id int64) error {
	if err := requireAdmin(identity); err != nil {
		return err
	}

	if err := s.repo.SoftDeleteBook(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Book deleted", zap.Int64("book_id", id))
	s.invalidate(ctx, id)
	return nil
}

// InvalidateBooks drops cached details of ids
func (s *CatalogService) InvalidateBooks(ctx context.Context, ids ...int64) error {
	return s.cache.InvalidateBooks(ctx, ids...)
}

func (s *CatalogService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.InvalidateBooks(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate cached book", zap.Int64("book_id", id), zap.Error(err))
	}
}
