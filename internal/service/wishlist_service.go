package service

import (
	"context"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/repository"
)

// WishlistService manages the books a user has saved for later
type WishlistService struct {
	repo repository.Repository
}

// NewWishlistService creates a new wishlist service
func NewWishlistService(repo repository.Repository) *WishlistService {
	return &WishlistService{repo: repo}
}

// List returns the caller's wishlist, newest first
func (s *WishlistService) List(ctx context.Context, identity models.Identity) ([]models.WishlistItem, error) {
	return s.repo.ListWishlist(ctx, identity.UserID)
}

// Add saves a book on the caller's wishlist
func (s *WishlistService) Add(ctx context.Context, identity models.Identity, bookID int64) (*models.WishlistItem, error) {
	book, err := s.repo.GetBookByID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetWishlistItem(ctx, identity.UserID, bookID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.Conflict("Book is already in your wishlist")
	}

	item := &models.WishlistItem{UserID: identity.UserID, BookID: bookID}
	if err := s.repo.AddWishlistItem(ctx, item); err != nil {
		return nil, err
	}
	item.Book = book
	return item, nil
}

// Remove deletes a book from the caller's wishlist
func (s *WishlistService) Remove(ctx context.Context, identity models.Identity, bookID int64) error {
	return s.repo.RemoveWishlistItem(ctx, identity.UserID, bookID)
}
