package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookstore/internal/apperror"
	"bookstore/internal/models"

	"github.com/shopspring/decimal"
)

// wishlistRow is a wishlist entry joined with its book
type wishlistRow struct {
	models.WishlistItem
	BookTitle      string          `db:"book_title"`
	BookAuthor     string          `db:"book_author"`
	BookISBN       string          `db:"book_isbn"`
	BookPrice      decimal.Decimal `db:"book_price"`
	BookStock      int             `db:"book_stock"`
	BookCategoryID int64           `db:"book_category_id"`
}

// ListWishlist retrieves a user's wishlist with the saved books, newest first.
// Entries whose book has been deleted are left out.
func (q *querier) ListWishlist(ctx context.Context, userID int64) ([]models.WishlistItem, error) {
	var rows []wishlistRow
	err := q.db.SelectContext(ctx, &rows, `
		SELECT w.id, w.user_id, w.book_id, w.created_at,
		       b.title AS book_title, b.author AS book_author, b.isbn AS book_isbn,
		       b.price AS book_price, b.stock AS book_stock, b.category_id AS book_category_id
		FROM wishlist w
		JOIN books b ON b.id = w.book_id AND b.deleted_at IS NULL
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC, w.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}

	items := make([]models.WishlistItem, 0, len(rows))
	for _, row := range rows {
		item := row.WishlistItem
		item.Book = &models.Book{
			ID:         row.BookID,
			Title:      row.BookTitle,
			Author:     row.BookAuthor,
			ISBN:       row.BookISBN,
			Price:      row.BookPrice,
			Stock:      row.BookStock,
			CategoryID: row.BookCategoryID,
		}
		items = append(items, item)
	}
	return items, nil
}

// GetWishlistItem retrieves one wishlist entry, nil when absent
func (q *querier) GetWishlistItem(ctx context.Context, userID, bookID int64) (*models.WishlistItem, error) {
	var item models.WishlistItem
	err := q.db.GetContext(ctx, &item,
		"SELECT id, user_id, book_id, created_at FROM wishlist WHERE user_id = $1 AND book_id = $2",
		userID, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist item: %w", err)
	}
	return &item, nil
}

// AddWishlistItem saves a book on a user's wishlist
func (q *querier) AddWishlistItem(ctx context.Context, item *models.WishlistItem) error {
	err := q.db.QueryRowxContext(ctx, `
		INSERT INTO wishlist (user_id, book_id)
		VALUES ($1, $2)
		RETURNING id, created_at`, item.UserID, item.BookID).
		Scan(&item.ID, &item.CreatedAt)
	if isUniqueViolation(err) {
		return apperror.Conflict("Book is already in your wishlist").Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("failed to add wishlist item: %w", err)
	}
	return nil
}

// RemoveWishlistItem removes a book from a user's wishlist
func (q *querier) RemoveWishlistItem(ctx context.Context, userID, bookID int64) error {
	res, err := q.db.ExecContext(ctx,
		"DELETE FROM wishlist WHERE user_id = $1 AND book_id = $2", userID, bookID)
	if err != nil {
		return fmt.Errorf("failed to remove wishlist item: %w", err)
	}
	return requireRow(res, apperror.NotFound("Wishlist item"))
}
