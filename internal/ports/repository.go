package ports

import (
	"context"
	"time"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
)

// StoreRepository persists installed-shop credentials. One record per shop
// domain, upserted on install, deactivated on uninstall.
type StoreRepository interface {
	// Upsert writes the store keyed by shop domain only. Installing the
	// same shop twice overwrites the earlier credential instead of
	// creating a second record.
	Upsert(ctx context.Context, store *domain.Store) error

	// Get returns the store for a canonical shop domain, or nil when the
	// shop has never been installed.
	Get(ctx context.Context, shopDomain string) (*domain.Store, error)

	// GetForOperator returns the store only when it is owned by the given
	// operator; nil otherwise.
	GetForOperator(ctx context.Context, shopDomain, operatorID string) (*domain.Store, error)

	// ListByOperator returns every store linked to the operator.
	ListByOperator(ctx context.Context, operatorID string) ([]*domain.Store, error)

	// LinkOperator atomically claims an installed, active store that is
	// unlinked or already linked to the same operator. Returns
	// NotInstalledError when the claim filter does not match.
	LinkOperator(ctx context.Context, shopDomain, operatorID string) error

	// Deactivate clears the credential and marks the store uninstalled.
	Deactivate(ctx context.Context, shopDomain string, at time.Time) error

	// AdvanceWatermark compare-and-sets the per-resource watermark from
	// the previously observed value to the new one. Reports false when a
	// concurrent sync advanced it first.
	AdvanceWatermark(ctx context.Context, shopDomain string, kind domain.ResourceKind, from, to time.Time) (bool, error)
}

// DeliveryRepository is the webhook idempotency ledger. Entries are
// append-only for audit.
type DeliveryRepository interface {
	// Insert records a first-seen delivery. A (shop, dedupe key) collision
	// returns domain.ErrDuplicateDelivery; the caller treats it as an
	// already-processed no-op.
	Insert(ctx context.Context, delivery *domain.WebhookDelivery) error

	// SetStatus records the processing outcome for a delivery.
	SetStatus(ctx context.Context, shop, dedupeKey string, status domain.DeliveryStatus, lastError string) error

	// ListByShop returns the delivery audit trail for one shop, newest first.
	ListByShop(ctx context.Context, shop string, limit int) ([]*domain.WebhookDelivery, error)
}

// RecordRepository materializes synced upstream resources, isolated per
// (operator, shop, upstream id). Upsert only; records are never deleted.
type RecordRepository interface {
	UpsertOrder(ctx context.Context, order *domain.OrderRecord) error
	UpsertProduct(ctx context.Context, product *domain.ProductRecord) error
}
