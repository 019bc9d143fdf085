package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
)

const reviewColumns = `id, user_id, book_id, rating, comment, created_at`

// GetReviewByID retrieves a review by ID
func (q *querier) GetReviewByID(ctx context.Context, id int64) (*models.Review, error) {
	var review models.Review
	err := q.db.GetContext(ctx, &review, "SELECT "+reviewColumns+" FROM reviews WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("Review")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review %d: %w", id, err)
	}
	return &review, nil
}

// GetReview retrieves the user's review of a book, nil when there is none
func (q *querier) GetReview(ctx context.Context, userID, bookID int64) (*models.Review, error) {
	var review models.Review
	err := q.db.GetContext(ctx, &review,
		"SELECT "+reviewColumns+" FROM reviews WHERE user_id = $1 AND book_id = $2", userID, bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &review, nil
}

// ListReviews retrieves the reviews of a book, newest first
func (q *querier) ListReviews(ctx context.Context, bookID int64) ([]models.Review, error) {
	reviews := []models.Review{}
	err := q.db.SelectContext(ctx, &reviews,
		"SELECT "+reviewColumns+" FROM reviews WHERE book_id = $1 ORDER BY created_at DESC, id DESC", bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// CreateReview creates a review
func (q *querier) CreateReview(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (user_id, book_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := q.db.QueryRowxContext(ctx, query, review.UserID, review.BookID, review.Rating, review.Comment).
		Scan(&review.ID, &review.CreatedAt)
	if isUniqueViolation(err) {
		return apperror.Conflict("You have already reviewed this book").Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

// DeleteReview deletes a review
func (q *querier) DeleteReview(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete review %d: %w", id, err)
	}
	return requireRow(res, apperror.NotFound("Review"))
}
