package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/repository"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

var _ repository.Repository = (*Store)(nil)

// dbtx is satisfied by both *sqlx.DB and *sqlx.Tx
type dbtx interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// querier implements repository.Queries on top of a connection or a transaction
type querier struct {
	db dbtx
}

// Store is the Postgres implementation of repository.Repository
type Store struct {
	querier
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{querier: querier{db: db}, db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in a database transaction. Row locks taken through the Lock* queries are held
// until fn returns; any error from fn rolls the transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&querier{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const bookColumns = `id, title, author, isbn, price, stock, category_id, created_at, updated_at, deleted_at`

// GetBooksByIDs retrieves the non-deleted books among ids
func (q *querier) GetBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error) {
	return q.selectBooksByIDs(ctx, ids, "")
}

// LockBooksByIDs retrieves the non-deleted books among ids and locks their rows
func (q *querier) LockBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error) {
	return q.selectBooksByIDs(ctx, ids, " FOR UPDATE")
}

func (q *querier) selectBooksByIDs(ctx context.Context, ids []int64, suffix string) ([]models.Book, error) {
	if len(ids) == 0 {
		return []models.Book{}, nil
	}

	// ordered by id so concurrent checkouts lock rows in the same order
	query, args, err := sqlx.In(
		"SELECT "+bookColumns+" FROM books WHERE id IN (?) AND deleted_at IS NULL ORDER BY id"+suffix, ids)
	if err != nil {
		return nil, err
	}
	query = q.db.Rebind(query)

	var books []models.Book
	if err := q.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get books: %w", err)
	}
	return books, nil
}

// GetBookByID retrieves a non-deleted book by ID
func (q *querier) GetBookByID(ctx context.Context, id int64) (*models.Book, error) {
	var book models.Book
	err := q.db.GetContext(ctx, &book,
		"SELECT "+bookColumns+" FROM books WHERE id = $1 AND deleted_at IS NULL", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("Book")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book %d: %w", id, err)
	}
	return &book, nil
}

// ListBooks retrieves non-deleted books matching filter, newest first
func (q *querier) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, error) {
	conds := []string{"deleted_at IS NULL"}
	var args []interface{}

	if filter.Search != "" {
		conds = append(conds, "(title ILIKE ? OR author ILIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	if filter.CategoryID != 0 {
		conds = append(conds, "category_id = ?")
		args = append(args, filter.CategoryID)
	}

	query := q.db.Rebind("SELECT " + bookColumns + " FROM books WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY created_at DESC, id DESC")

	books := []models.Book{}
	if err := q.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// CreateBook creates a new book
func (q *querier) CreateBook(ctx context.Context, book *models.Book) error {
	query := `
		INSERT INTO books (title, author, isbn, price, stock, category_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := q.db.QueryRowxContext(ctx, query,
		book.Title, book.Author, book.ISBN, book.Price, book.Stock, book.CategoryID).
		Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

// UpdateBook updates the catalog fields of a non-deleted book. Stock is left as stored and
// scanned back into book.
func (q *querier) UpdateBook(ctx context.Context, book *models.Book) error {
	query := `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, price = $4, category_id = $5, updated_at = NOW()
		WHERE id = $6 AND deleted_at IS NULL
		RETURNING stock, updated_at`

	err := q.db.QueryRowxContext(ctx, query,
		book.Title, book.Author, book.ISBN, book.Price, book.CategoryID, book.ID).
		Scan(&book.Stock, &book.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("Book")
	}
	if err != nil {
		return fmt.Errorf("failed to update book %d: %w", book.ID, err)
	}
	return nil
}

// SetStock overwrites the stock of a non-deleted book
func (q *querier) SetStock(ctx context.Context, bookID int64, stock int) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE books SET stock = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL",
		stock, bookID)
	if err != nil {
		return fmt.Errorf("failed to set stock for book %d: %w", bookID, err)
	}
	return requireRow(res, apperror.NotFound("Book"))
}

// SoftDeleteBook marks a book as deleted
func (q *querier) SoftDeleteBook(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE books SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("failed to delete book %d: %w", id, err)
	}
	return requireRow(res, apperror.NotFound("Book"))
}

// DecrementStock removes quantity from a book's stock, refusing to go below zero
func (q *querier) DecrementStock(ctx context.Context, bookID int64, quantity int) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE books SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL AND stock >= $1",
		quantity, bookID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock for book %d: %w", bookID, err)
	}
	return requireRow(res, apperror.Validation("Insufficient stock for book %d", bookID))
}

// IncrementStock returns quantity to a book's stock
func (q *querier) IncrementStock(ctx context.Context, bookID int64, quantity int) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE books SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, bookID)
	if err != nil {
		return fmt.Errorf("failed to increment stock for book %d: %w", bookID, err)
	}
	return requireRow(res, apperror.NotFound("Book"))
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
