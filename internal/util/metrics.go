package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_orders_created_total",
		Help: "Total number of orders placed",
	})

	OrdersReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_orders_replayed_total",
		Help: "Total number of checkouts answered from an existing idempotency key",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_orders_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrderStatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_order_status_transitions_total",
		Help: "Total number of administrative order status changes",
	}, []string{"to"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bookstore_checkout_latency_seconds",
		Help:    "Latency of the checkout transaction",
		Buckets: prometheus.DefBuckets,
	})

	BooksSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_books_sold_total",
		Help: "Total number of book copies sold",
	})

	CouponRedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_coupon_redemptions_total",
		Help: "Total number of coupon checks",
	}, []string{"result"})

	ReviewsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_reviews_created_total",
		Help: "Total number of reviews posted",
	})

	BookCacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_book_cache_requests_total",
		Help: "Book cache lookups by result",
	}, []string{"result"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_events_published_total",
		Help: "Order events published by type and outcome",
	}, []string{"type", "outcome"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_events_consumed_total",
		Help: "Order events consumed by type and outcome",
	}, []string{"type", "outcome"})

	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_events_dropped_total",
		Help: "Consumed messages skipped after exhausting handler retries",
	})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_checkout_rate_limited_total",
		Help: "Total number of checkouts rejected by the per-user rate limit",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
