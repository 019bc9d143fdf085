package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bookstore/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseLockScript deletes the lock only while it still holds the caller's token
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func bookKey(id int64) string {
	return "book:" + strconv.FormatInt(id, 10)
}

// GetBook returns the cached book detail. The boolean is false on a cache miss.
func (c *Client) GetBook(ctx context.Context, id int64) (*models.BookDetail, bool, error) {
	data, err := c.rdb.Get(ctx, bookKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached book %d: %w", id, err)
	}

	var detail models.BookDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached book %d: %w", id, err)
	}
	return &detail, true, nil
}

// SetBook caches a book detail for ttl
func (c *Client) SetBook(ctx context.Context, detail *models.BookDetail, ttl time.Duration) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to encode book %d: %w", detail.ID, err)
	}
	return c.rdb.Set(ctx, bookKey(detail.ID), data, ttl).Err()
}

// InvalidateBooks drops the cached entries of ids
func (c *Client) InvalidateBooks(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bookKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// MarkEventProcessed records eventID as handled. It returns false when the event was
// already marked, so consumers can skip redelivered messages.
func (c *Client) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("processed:%s", eventID), "1", ttl).Result()
}

// UnmarkEventProcessed removes the marker so a failed event can be retried
func (c *Client) UnmarkEventProcessed(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("processed:%s", eventID)).Err()
}

// AcquireLock acquires a distributed lock. The returned token is needed to release it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return releaseLockScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}

// BookCache adapts the client to a fixed entry TTL
type BookCache struct {
	client *Client
	ttl    time.Duration
}

// NewBookCache creates a book cache whose entries expire after ttl
func NewBookCache(client *Client, ttl time.Duration) *BookCache {
	return &BookCache{client: client, ttl: ttl}
}

// GetBook returns the cached book detail
func (b *BookCache) GetBook(ctx context.Context, id int64) (*models.BookDetail, bool, error) {
	return b.client.GetBook(ctx, id)
}

// SetBook caches a book detail
func (b *BookCache) SetBook(ctx context.Context, detail *models.BookDetail) error {
	return b.client.SetBook(ctx, detail, b.ttl)
}

// InvalidateBooks drops cached entries
func (b *BookCache) InvalidateBooks(ctx context.Context, ids ...int64) error {
	return b.client.InvalidateBooks(ctx, ids...)
}
