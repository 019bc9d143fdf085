package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"bookstore/internal/auth"
	"bookstore/internal/models"
	"bookstore/internal/redisclient"
	"bookstore/internal/service"
	"bookstore/internal/store/memstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var (
	buyer = models.Identity{UserID: 100, Role: models.RoleUser}
	other = models.Identity{UserID: 200, Role: models.RoleUser}
	admin = models.Identity{UserID: 1, Role: models.RoleAdmin}
)

type nopPublisher struct{}

func (nopPublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	return nil
}

func (nopPublisher) PublishOrderCancelled(ctx context.Context, e *models.OrderCancelledEvent) error {
	return nil
}

func (nopPublisher) PublishOrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error {
	return nil
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

type testServer struct {
	router   *gin.Engine
	repo     *memstore.Store
	verifier *auth.Verifier
}

func newTestServer(t *testing.T, checkoutRate rate.Limit, burst int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	redis, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { redis.Close() })

	repo := memstore.New()
	cache := redisclient.NewBookCache(redis, time.Minute)
	verifier := auth.NewVerifier("test-secret")

	handler := NewHandler(Services{
		Orders:   service.NewOrderService(repo, redis, nopPublisher{}, 30*time.Second),
		Coupons:  service.NewCouponService(repo),
		Reviews:  service.NewReviewService(repo, cache),
		Catalog:  service.NewCatalogService(repo, cache),
		Wishlist: service.NewWishlistService(repo),
	}, verifier, checkoutRate, burst, map[string]Pinger{"postgres": repo, "redis": redis})

	router := gin.New()
	handler.SetupRoutes(router)

	return &testServer{router: router, repo: repo, verifier: verifier}
}

func (s *testServer) seedBook(t *testing.T, title, price string, stock int) *models.Book {
	t.Helper()

	book := &models.Book{
		Title:      title,
		Author:     "Author",
		ISBN:       "978-0000000000",
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		CategoryID: 1,
	}
	require.NoError(t, s.repo.CreateBook(context.Background(), book))
	return book
}

func (s *testServer) do(t *testing.T, method, path string, identity *models.Identity, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		token, err := s.verifier.Issue(*identity, "reader@example.com", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func orderBody(items ...service.OrderItemRequest) map[string]interface{} {
	return map[string]interface{}{"items": items}
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)

	w := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
}

func TestReadinessReportsFailedDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewHandler(Services{}, auth.NewVerifier("x"), rate.Inf, 1, map[string]Pinger{"postgres": failingPinger{}})
	router := gin.New()
	handler.SetupRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)

	w := s.do(t, http.MethodGet, "/api/v1/orders", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication required", errorMessage(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/orders", nil, nil, "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid or expired token", errorMessage(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/orders", &buyer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)

	w := s.do(t, http.MethodGet, "/api/v1/coupons", &buyer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Admin access required", errorMessage(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/coupons", &admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPlaceOrder(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)
	dune := s.seedBook(t, "Dune", "14.99", 10)
	neuromancer := s.seedBook(t, "Neuromancer", "9.50", 10)

	w := s.do(t, http.MethodPost, "/api/v1/orders", &buyer, orderBody(
		service.OrderItemRequest{BookID: dune.ID, Quantity: 2},
		service.OrderItemRequest{BookID: neuromancer.ID, Quantity: 1},
	))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var order models.Order
	decodeData(t, w, &order)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "39.48", order.TotalPrice.StringFixed(2))
	assert.Len(t, order.Items, 2)

	w = s.do(t, http.MethodGet, "/api/v1/books/"+itoa(dune.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var book models.BookDetail
	decodeData(t, w, &book)
	assert.Equal(t, 8, book.Stock)
}

func TestPlaceOrderReplaysIdempotencyKey(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)
	dune := s.seedBook(t, "Dune", "14.99", 10)
	body := orderBody(service.OrderItemRequest{BookID: dune.ID, Quantity: 1})

	first := s.do(t, http.MethodPost, "/api/v1/orders", &buyer, body, idempotencyHeader, "cart-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := s.do(t, http.MethodPost, "/api/v1/orders", &buyer, body, idempotencyHeader, "cart-1")
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))

	var a, b models.Order
	decodeData(t, first, &a)
	decodeData(t, second, &b)
	assert.Equal(t, a.ID, b.ID)

	stored, err := s.repo.GetBookByID(context.Background(), dune.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, stored.Stock)
}

func TestPlaceOrderErrors(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)
	dune := s.seedBook(t, "Dune", "14.99", 1)

	w := s.do(t, http.MethodPost, "/api/v1/orders", &buyer, orderBody(service.OrderItemRequest{BookID: dune.ID, Quantity: 3}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, `Insufficient stock for "Dune". Available: 1, requested: 3`, errorMessage(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/orders", &buyer, orderBody(service.OrderItemRequest{BookID: 999, Quantity: 1}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders", &buyer, map[string]interface{}{"items": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders", &buyer, orderBody(service.OrderItemRequest{BookID: dune.ID, Quantity: 1}),
		idempotencyHeader, strings.Repeat("k", 256))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutRateLimit(t *testing.T) {
	s := newTestServer(t, rate.Limit(0), 1)
	dune := s.seedBook(t, "Dune", "14.99", 10)
	body := orderBody(service.OrderItemRequest{BookID: dune.ID, Quantity: 1})

	w := s.do(t, http.MethodPost, "/api/v1/orders", &buyer, body)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders", &buyer, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// limits are per user
	w = s.do(t, http.MethodPost, "/api/v1/orders", &other, body)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCancelOrder(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)
	dune := s.seedBook(t, "Dune", "14.99", 5)

	w := s.do(t, http.MethodPost, "/api/v1/orders", &buyer, orderBody(service.OrderItemRequest{BookID: dune.ID, Quantity: 2}))
	require.Equal(t, http.StatusCreated, w.Code)
	var order models.Order
	decodeData(t, w, &order)
	path := "/api/v1/orders/" + itoa(order.ID) + "/cancel"

	w = s.do(t, http.MethodPost, path, &other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You can only cancel your own orders", errorMessage(t, w))

	w = s.do(t, http.MethodPost, path, &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &order)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)

	w = s.do(t, http.MethodPost, path, &buyer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Only PENDING orders can be cancelled", errorMessage(t, w))

	stored, err := s.repo.GetBookByID(context.Background(), dune.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Stock)

	w = s.do(t, http.MethodPost, "/api/v1/orders/abc/cancel", &buyer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid order ID", errorMessage(t, w))
}

func TestOrderVisibility(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)
	dune := s.seedBook(t, "Dune", "14.99", 5)

	w := s.do(t, http.MethodPost, "/api/v1/orders", &buyer, orderBody(service.OrderItemRequest{BookID: dune.ID, Quantity: 1}))
	require.Equal(t, http.StatusCreated, w.Code)
	var order models.Order
	decodeData(t, w, &order)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+itoa(order.ID), &other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+itoa(order.ID), &admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var orders []models.Order
	w = s.do(t, http.MethodGet, "/api/v1/orders", &other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &orders)
	assert.Empty(t, orders)

	w = s.do(t, http.MethodGet, "/api/v1/orders", &admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &orders)
	assert.Len(t, orders, 1)
}

func TestReviewRequiresPurchase(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)
	dune := s.seedBook(t, "Dune", "14.99", 5)
	reviewPath := "/api/v1/books/" + itoa(dune.ID) + "/reviews"
	review := map[string]interface{}{"rating": 5, "comment": "Spice"}

	w := s.do(t, http.MethodPost, "/api/v1/orders", &buyer, orderBody(service.OrderItemRequest{BookID: dune.ID, Quantity: 1}))
	require.Equal(t, http.StatusCreated, w.Code)
	var order models.Order
	decodeData(t, w, &order)

	// a pending order is not a purchase yet
	w = s.do(t, http.MethodPost, reviewPath, &buyer, review)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "You can only review books you have ordered", errorMessage(t, w))

	w = s.do(t, http.MethodPatch, "/api/v1/orders/"+itoa(order.ID)+"/status", &admin, map[string]string{"status": "CONFIRMED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, reviewPath, &buyer, review)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, reviewPath, &buyer, review)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/books/"+itoa(dune.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var book models.BookDetail
	decodeData(t, w, &book)
	assert.Equal(t, 1, book.ReviewCount)
	require.NotNil(t, book.AvgRating)
	assert.Equal(t, "5.00", book.AvgRating.StringFixed(2))
}

func TestUpdateOrderStatusRejectsUnknownStatus(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)

	w := s.do(t, http.MethodPatch, "/api/v1/orders/1/status", &admin, map[string]string{"status": "LOST"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid order status", errorMessage(t, w))

	w = s.do(t, http.MethodPatch, "/api/v1/orders/1/status", &buyer, map[string]string{"status": "SHIPPED"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCouponEndpoints(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)

	w := s.do(t, http.MethodPost, "/api/v1/coupons", &admin, map[string]interface{}{
		"code":  "TEN",
		"type":  "PERCENTAGE",
		"value": "10",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/coupons/validate", &buyer, map[string]interface{}{
		"code":        "TEN",
		"order_total": "50.00",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var quote service.CouponQuote
	decodeData(t, w, &quote)
	assert.Equal(t, "5.00", quote.Discount.StringFixed(2))
	assert.Equal(t, "45.00", quote.FinalTotal.StringFixed(2))

	w = s.do(t, http.MethodPost, "/api/v1/coupons/validate", &buyer, map[string]interface{}{
		"code":        "NOPE",
		"order_total": "50.00",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Coupon not found", errorMessage(t, w))
}

func TestBookAdministration(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)
	book := map[string]interface{}{
		"title":       "Hyperion",
		"author":      "Dan Simmons",
		"isbn":        "978-0553283686",
		"price":       "12.99",
		"stock":       4,
		"category_id": 1,
	}

	w := s.do(t, http.MethodPost, "/api/v1/books", &buyer, book)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/books", &admin, book)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Book
	decodeData(t, w, &created)

	w = s.do(t, http.MethodPut, "/api/v1/books/"+itoa(created.ID), &admin, map[string]interface{}{"price": "13.50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Book
	decodeData(t, w, &updated)
	assert.Equal(t, "13.50", updated.Price.StringFixed(2))

	w = s.do(t, http.MethodGet, "/api/v1/books?search=hyper", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var books []models.Book
	decodeData(t, w, &books)
	assert.Len(t, books, 1)

	w = s.do(t, http.MethodDelete, "/api/v1/books/"+itoa(created.ID), &admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/books/"+itoa(created.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/books?category_id=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWishlist(t *testing.T) {
	s := newTestServer(t, rate.Inf, 1)
	dune := s.seedBook(t, "Dune", "14.99", 5)
	path := "/api/v1/wishlist/" + itoa(dune.ID)

	w := s.do(t, http.MethodPost, path, &buyer, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, path, &buyer, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/wishlist", &buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []models.WishlistItem
	decodeData(t, w, &items)
	assert.Len(t, items, 1)

	w = s.do(t, http.MethodDelete, path, &buyer, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, path, &buyer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUserLimiterForgetsIdleUsers(t *testing.T) {
	l := newUserLimiter(rate.Limit(0), 1)

	assert.True(t, l.allow(7))
	assert.False(t, l.allow(7))

	l.mu.Lock()
	l.users[7].lastSeen = time.Now().Add(-2 * limiterIdleTTL)
	l.lastSweep = time.Now().Add(-2 * limiterIdleTTL)
	l.mu.Unlock()

	assert.True(t, l.allow(8))
	l.mu.Lock()
	_, kept := l.users[7]
	l.mu.Unlock()
	assert.False(t, kept)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
