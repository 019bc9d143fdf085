package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/auth"
	"bookstore/internal/service"
	"bookstore/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the business services served over HTTP
type Services struct {
	Orders   *service.OrderService
	Coupons  *service.CouponService
	Reviews  *service.ReviewService
	Catalog  *service.CatalogService
	Wishlist *service.WishlistService
}

// Handler contains HTTP handlers
type Handler struct {
	Services
	verifier *auth.Verifier
	limiter  *userLimiter
	checks   map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. Checkouts are limited per user to checkoutRate
// requests per second with the given burst.
func NewHandler(services Services, verifier *auth.Verifier, checkoutRate rate.Limit, burst int, checks map[string]Pinger) *Handler {
	return &Handler{
		Services: services,
		verifier: verifier,
		limiter:  newUserLimiter(checkoutRate, burst),
		checks:   checks,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/books", h.listBooks)
		v1.GET("/books/:id", h.getBook)
		v1.GET("/books/:id/reviews", h.listReviews)

		authed := v1.Group("")
		authed.Use(h.authMiddleware())
		{
			authed.POST("/books/:id/reviews", h.createReview)
			authed.DELETE("/reviews/:id", h.deleteReview)

			authed.GET("/orders", h.listOrders)
			authed.GET("/orders/:id", h.getOrder)
			authed.POST("/orders", h.rateLimitMiddleware(), h.placeOrder)
			authed.POST("/orders/:id/cancel", h.cancelOrder)

			authed.POST("/coupons/validate", h.validateCoupon)

			authed.GET("/wishlist", h.listWishlist)
			authed.POST("/wishlist/:bookId", h.addToWishlist)
			authed.DELETE("/wishlist/:bookId", h.removeFromWishlist)
		}

		admin := v1.Group("")
		admin.Use(h.authMiddleware(), requireAdmin())
		{
			admin.POST("/books", h.createBook)
			admin.PUT("/books/:id", h.updateBook)
			admin.DELETE("/books/:id", h.deleteBook)

			admin.PATCH("/orders/:id/status", h.updateOrderStatus)

			admin.GET("/coupons", h.listCoupons)
			admin.POST("/coupons", h.createCoupon)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// respondError writes err with the status matching its kind
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		status = http.StatusNotFound
	case apperror.KindValidation:
		status = http.StatusBadRequest
	case apperror.KindConflict:
		status = http.StatusConflict
	case apperror.KindForbidden:
		status = http.StatusForbidden
	case apperror.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperror.KindInternal:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{"error": apperror.Message(err)})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// paramID parses a positive integer path parameter
func paramID(c *gin.Context, name, entity string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + entity + " ID",
		})
		return 0, false
	}
	return id, true
}
