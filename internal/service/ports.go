package service

import (
	"context"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
)

// EventPublisher publishes order events after their transaction commits
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// Locker guards in-flight work under a key across service instances
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// BookCache stores rendered book details
type BookCache interface {
	GetBook(ctx context.Context, id int64) (*models.BookDetail, bool, error)
	SetBook(ctx context.Context, detail *models.BookDetail) error
	InvalidateBooks(ctx context.Context, ids ...int64) error
}

func requireAdmin(identity models.Identity) error {
	if !identity.IsAdmin() {
		return apperror.Forbidden("Admin access required")
	}
	return nil
}
