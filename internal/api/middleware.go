package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/models"
	"bookstore/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const identityKey = "identity"

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// authMiddleware resolves the bearer token into the request identity
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			h.respondError(c, apperror.Unauthorized("Authentication required"))
			return
		}

		identity, err := h.verifier.Verify(token)
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// requireAdmin rejects callers without the administrator role
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) models.Identity {
	identity, _ := c.Get(identityKey)
	id, _ := identity.(models.Identity)
	return id
}

// rateLimitMiddleware applies the per-user checkout limit
func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.allow(identityFrom(c).UserID) {
			util.RateLimitedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many checkout attempts, slow down"})
			return
		}
		c.Next()
	}
}

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps one token bucket per user and forgets idle users
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	users     map[int64]*limiterEntry
	lastSweep time.Time
}

func newUserLimiter(limit rate.Limit, burst int) *userLimiter {
	return &userLimiter{
		limit:     limit,
		burst:     burst,
		users:     make(map[int64]*limiterEntry),
		lastSweep: time.Now(),
	}
}

func (l *userLimiter) allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for id, entry := range l.users {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(l.users, id)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.users[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
