package shopify

import (
	"context"
	"fmt"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"

	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// Topics every installed shop is subscribed to. app/uninstalled drives the
// install-state regression; the order topics feed the materializer.
var defaultTopics = []string{
	"orders/create",
	"orders/paid",
	"orders/updated",
	"app/uninstalled",
}

// SubscriptionManager registers and removes webhook subscriptions on the
// upstream platform via the admin SDK.
type SubscriptionManager struct {
	app        goshopify.App
	webhookURL string
	logger     zerolog.Logger
}

// NewSubscriptionManager creates a subscription manager. webhookBaseURL is
// the public base under which /webhooks/{topic} endpoints are mounted.
func NewSubscriptionManager(apiKey, apiSecret, webhookBaseURL string, logger zerolog.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		app:        goshopify.App{ApiKey: apiKey, ApiSecret: apiSecret},
		webhookURL: webhookBaseURL + "/webhooks",
		logger:     logger,
	}
}

var _ ports.SubscriptionManager = (*SubscriptionManager)(nil)

// Subscribe creates the default webhook subscriptions for a freshly
// installed shop and returns their upstream ids. A failure on one topic
// aborts: the caller stores only ids that actually exist upstream.
func (m *SubscriptionManager) Subscribe(ctx context.Context, shopDomain, accessToken string) ([]int64, error) {
	client, err := goshopify.NewClient(m.app, shopDomain, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription client: %w", err)
	}

	ids := make([]int64, 0, len(defaultTopics))
	for _, topic := range defaultTopics {
		webhook := goshopify.Webhook{
			Topic:   topic,
			Address: m.webhookURL + "/" + topic,
			Format:  "json",
		}
		created, err := client.Webhook.Create(ctx, webhook)
		if err != nil {
			return ids, fmt.Errorf("failed to subscribe %s for %s: %w", topic, shopDomain, err)
		}
		ids = append(ids, int64(created.Id))
		m.logger.Info().
			Str("shop", shopDomain).
			Str("topic", topic).
			Int64("webhookId", int64(created.Id)).
			Msg("Registered webhook subscription")
	}
	return ids, nil
}

// Unsubscribe deletes the given webhook subscriptions. Individual failures
// are logged and skipped: on uninstall the upstream usually removes the
// subscriptions itself, so the token may already be revoked.
func (m *SubscriptionManager) Unsubscribe(ctx context.Context, shopDomain, accessToken string, webhookIDs []int64) error {
	client, err := goshopify.NewClient(m.app, shopDomain, accessToken)
	if err != nil {
		return fmt.Errorf("failed to create subscription client: %w", err)
	}

	for _, id := range webhookIDs {
		if err := client.Webhook.Delete(ctx, uint64(id)); err != nil {
			m.logger.Warn().
				Err(err).
				Str("shop", shopDomain).
				Int64("webhookId", id).
				Msg("Failed to delete webhook subscription")
		}
	}
	return nil
}
