package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the subsystem reads from the environment. It is
// built once in main and passed into components so that core logic never
// touches process environment directly.
type Config struct {
	Port   string
	AppURL string

	MongoURI      string
	MongoDatabase string
	RedisAddr     string

	// Upstream app credentials. APISecret is the shared secret for both
	// OAuth-callback and webhook HMAC verification.
	APIKey     string
	APISecret  string
	APIVersion string
	Scopes     string

	// EmbeddedAppURL is where the browser lands after a successful install.
	EmbeddedAppURL string

	// JWTSecret verifies operator bearer tokens issued by the platform.
	JWTSecret string

	// Cookie signing keys for the OAuth state and operator cookies.
	CookieHashKey  string
	CookieBlockKey string

	StateCookieTTL    time.Duration
	OperatorCookieTTL time.Duration

	UpstreamTimeout  time.Duration
	SyncPageSize     int
	SyncLockTTL      time.Duration
	OrdersLookback   time.Duration
	ProductsLookback time.Duration
}

// Load reads the configuration from the environment, applying defaults for
// everything that has a safe one. Required values missing from the
// environment produce an error rather than a partially usable Config.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		AppURL:            getEnv("APP_URL", "http://localhost:8080"),
		MongoURI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGODB_DATABASE", "shopify_bridge"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		APIKey:            os.Getenv("SHOPIFY_API_KEY"),
		APISecret:         os.Getenv("SHOPIFY_API_SECRET"),
		APIVersion:        getEnv("SHOPIFY_API_VERSION", "2024-01"),
		Scopes:            getEnv("SHOPIFY_SCOPES", "read_products,read_orders"),
		EmbeddedAppURL:    getEnv("EMBEDDED_APP_URL", getEnv("APP_URL", "http://localhost:8080")+"/app"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CookieHashKey:     os.Getenv("COOKIE_HASH_KEY"),
		CookieBlockKey:    os.Getenv("COOKIE_BLOCK_KEY"),
		StateCookieTTL:    getDuration("STATE_COOKIE_TTL", 15*time.Minute),
		OperatorCookieTTL: getDuration("OPERATOR_COOKIE_TTL", 60*time.Minute),
		UpstreamTimeout:   getDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		SyncPageSize:      getInt("SYNC_PAGE_SIZE", 50),
		SyncLockTTL:       getDuration("SYNC_LOCK_TTL", 2*time.Minute),
		OrdersLookback:    getDuration("ORDERS_LOOKBACK", 7*24*time.Hour),
		ProductsLookback:  getDuration("PRODUCTS_LOOKBACK", 30*24*time.Hour),
	}

	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("SHOPIFY_API_KEY and SHOPIFY_API_SECRET are required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.CookieHashKey == "" {
		return nil, fmt.Errorf("COOKIE_HASH_KEY is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
