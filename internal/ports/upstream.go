package ports

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// AccessGrant is the credential returned by the upstream code exchange.
type AccessGrant struct {
	Token  string
	Scopes []string
}

// UpstreamOrder is one order as fetched from the upstream admin API. Raw is
// the verbatim upstream document.
type UpstreamOrder struct {
	ID              int64
	Name            string
	Email           string
	TotalPrice      string
	Currency        string
	FinancialStatus string
	ProcessedAt     time.Time
	UpdatedAt       time.Time
	Raw             json.RawMessage
}

// UpstreamProduct is one product as fetched from the upstream admin API.
type UpstreamProduct struct {
	ID        int64
	Title     string
	Handle    string
	Vendor    string
	Status    string
	UpdatedAt time.Time
	Raw       json.RawMessage
}

// UpstreamClient wraps outbound calls to the upstream platform. Every
// non-2xx response surfaces as *domain.UpstreamError carrying the numeric
// status and the upstream body so callers can forward the real reason.
type UpstreamClient interface {
	// ExchangeCode trades an OAuth authorization code for an access grant.
	ExchangeCode(ctx context.Context, shopDomain, code string) (*AccessGrant, error)

	// ListOrders fetches one bounded page of orders updated at or after
	// updatedAtMin, ordered oldest-updated-first.
	ListOrders(ctx context.Context, shopDomain, accessToken string, updatedAtMin time.Time, limit int) ([]UpstreamOrder, error)

	// ListProducts fetches one bounded page of products updated at or
	// after updatedAtMin, ordered oldest-updated-first.
	ListProducts(ctx context.Context, shopDomain, accessToken string, updatedAtMin time.Time, limit int) ([]UpstreamProduct, error)
}

// SubscriptionManager registers and tears down webhook subscriptions on the
// upstream platform for an installed shop.
type SubscriptionManager interface {
	Subscribe(ctx context.Context, shopDomain, accessToken string) ([]int64, error)
	Unsubscribe(ctx context.Context, shopDomain, accessToken string, webhookIDs []int64) error
}

// CallbackVerifier validates OAuth callback signatures. The raw-query form
// is authoritative; the decoded-params form is a best-effort fallback and
// callers log when they take it.
type CallbackVerifier interface {
	VerifyCallback(rawQuery, claimed string) bool
	VerifyCallbackParams(params url.Values, claimed string) bool
}

// DeliveryVerifier validates webhook delivery signatures over the exact raw
// body bytes.
type DeliveryVerifier interface {
	VerifyWebhook(body []byte, header string) bool
}

// SyncLocker serializes syncs for the same (shop, resource) key.
type SyncLocker interface {
	// TryLock acquires the key or reports false when another holder has it.
	TryLock(ctx context.Context, key string) (bool, error)

	// Unlock releases the key. Safe to call on an expired lock.
	Unlock(ctx context.Context, key string) error
}
