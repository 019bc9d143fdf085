package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "REDIS_DB", "KAFKA_BROKERS", "CHECKOUT_BURST", "DB_AUTO_MIGRATE", "BOOK_CACHE_TTL_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Business.CheckoutBurst)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 5*time.Minute, cfg.Business.BookCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CHECKOUT_RATE_PER_SECOND", "0.5")
	t.Setenv("CHECKOUT_LOCK_SECONDS", "10")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 0.5, cfg.Business.CheckoutRatePerSecond)
	assert.Equal(t, 10*time.Second, cfg.Business.CheckoutLockTTL)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 0, cfg.Redis.DB)
}
