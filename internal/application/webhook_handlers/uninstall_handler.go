package webhook_handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/metrics"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// UninstallHandler deactivates the store when the platform reports the app
// was removed. The access token is cleared immediately; historical records
// and the delivery ledger stay.
type UninstallHandler struct {
	stores  ports.StoreRepository
	subs    ports.SubscriptionManager
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewUninstallHandler creates the uninstall topic handler.
func NewUninstallHandler(stores ports.StoreRepository, subs ports.SubscriptionManager, m *metrics.Metrics, logger zerolog.Logger) *UninstallHandler {
	return &UninstallHandler{stores: stores, subs: subs, metrics: m, logger: logger}
}

func (h *UninstallHandler) CanHandle(topic string) bool {
	return topic == domain.TopicAppUninstalled
}

func (h *UninstallHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	// Best-effort subscription teardown while the token may still work.
	// The upstream revokes both on its side anyway, so failures only log.
	store, err := h.stores.Get(ctx, event.Shop)
	if err == nil && store != nil && store.AccessToken != "" && len(store.WebhookIDs) > 0 {
		if err := h.subs.Unsubscribe(ctx, store.Domain, store.AccessToken, store.WebhookIDs); err != nil {
			h.logger.Warn().Err(err).Str("shop", store.Domain).Msg("Failed to tear down webhook subscriptions")
		}
	}

	if err := h.stores.Deactivate(ctx, event.Shop, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to deactivate store: %w", err)
	}

	h.metrics.ObserveUninstall()
	h.logger.Info().Str("shop", event.Shop).Msg("Store uninstalled, credential revoked")
	return nil
}
