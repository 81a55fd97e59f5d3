package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SHOPIFY_API_KEY", "key123")
	t.Setenv("SHOPIFY_API_SECRET", "secret456")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("COOKIE_HASH_KEY", "hash-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 50, cfg.SyncPageSize)
	assert.Equal(t, 2*time.Minute, cfg.SyncLockTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.OrdersLookback)
	assert.Equal(t, 30*24*time.Hour, cfg.ProductsLookback)
	assert.Equal(t, 15*time.Minute, cfg.StateCookieTTL)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SYNC_PAGE_SIZE", "100")
	t.Setenv("SYNC_LOCK_TTL", "30s")
	t.Setenv("ORDERS_LOOKBACK", "48h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 100, cfg.SyncPageSize)
	assert.Equal(t, 30*time.Second, cfg.SyncLockTTL)
	assert.Equal(t, 48*time.Hour, cfg.OrdersLookback)
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []string{"SHOPIFY_API_KEY", "SHOPIFY_API_SECRET", "JWT_SECRET", "COOKIE_HASH_KEY"}
	for _, missing := range tests {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			t.Setenv(missing, "")
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestBadDurationFallsBack(t *testing.T) {
	setRequired(t)
	t.Setenv("SYNC_LOCK_TTL", "not a duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.SyncLockTTL)
}
