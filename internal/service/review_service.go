package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/repository"
	"bookstore/internal/util"

	"go.uber.org/zap"
)

const maxCommentLength = 2000

// ReviewService handles book reviews
type ReviewService struct {
	repo   repository.Repository
	cache  BookCache
	logger *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(repo repository.Repository, cache BookCache) *ReviewService {
	return &ReviewService{
		repo:   repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// CreateReviewRequest represents a review submission
type CreateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// CreateReview posts a review for a book the caller has bought. Pending and cancelled orders
// do not count as a purchase.
func (s *ReviewService) CreateReview(ctx context.Context, identity models.Identity, bookID int64, req *CreateReviewRequest) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.CreateReview", util.BookIDAttr(bookID))
	defer span.End()

	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperror.Validation("Rating must be between 1 and 5")
	}
	comment := strings.TrimSpace(req.Comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, apperror.Validation("Comment must be at most %d characters", maxCommentLength)
	}

	if _, err := s.repo.GetBookByID(ctx, bookID); err != nil {
		return nil, err
	}

	ordered, err := s.repo.HasOrderedBook(ctx, identity.UserID, bookID, models.ReviewEligibleStatuses)
	if err != nil {
		return nil, err
	}
	if !ordered {
		return nil, apperror.Validation("You can only review books you have ordered")
	}

	existing, err := s.repo.GetReview(ctx, identity.UserID, bookID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.Conflict("You have already reviewed this book")
	}

	review := &models.Review{
		UserID:  identity.UserID,
		BookID:  bookID,
		Rating:  req.Rating,
		Comment: comment,
	}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, err
	}

	util.ReviewsCreatedTotal.Inc()
	s.invalidate(ctx, bookID)
	return review, nil
}

// ListReviews returns the reviews of an existing book, newest first
func (s *ReviewService) ListReviews(ctx context.Context, bookID int64) ([]models.Review, error) {
	if _, err := s.repo.GetBookByID(ctx, bookID); err != nil {
		return nil, err
	}
	return s.repo.ListReviews(ctx, bookID)
}

// DeleteReview removes a review owned by the caller, or any review for administrators
func (s *ReviewService) DeleteReview(ctx context.Context, identity models.Identity, reviewID int64) error {
	ctx, span := util.StartSpan(ctx, "ReviewService.DeleteReview")
	defer span.End()

	review, err := s.repo.GetReviewByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if !identity.CanActOn(review.UserID) {
		return apperror.Forbidden("You can only delete your own reviews")
	}

	if err := s.repo.DeleteReview(ctx, reviewID); err != nil {
		return err
	}

	s.invalidate(ctx, review.BookID)
	return nil
}

func (s *ReviewService) invalidate(ctx context.Context, bookID int64) {
	if err := s.cache.InvalidateBooks(ctx, bookID); err != nil {
		s.logger.Warn("Failed to invalidate cached book", zap.Int64("book_id", bookID), zap.Error(err))
	}
}
