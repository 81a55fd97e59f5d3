package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
)

// WebhookHandler processes one family of webhook topics.
type WebhookHandler interface {
	CanHandle(topic string) bool
	Handle(ctx context.Context, event *domain.WebhookEvent) error
}

// WebhookDispatcher routes a verified, deduplicated delivery to the handler
// registered for its topic.
type WebhookDispatcher struct {
	handlers []WebhookHandler
	logger   zerolog.Logger
}

// NewWebhookDispatcher creates an empty dispatcher.
func NewWebhookDispatcher(logger zerolog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{logger: logger}
}

// RegisterHandler adds a handler. Handlers are consulted in registration
// order; the first match wins.
func (d *WebhookDispatcher) RegisterHandler(h WebhookHandler) {
	d.handlers = append(d.handlers, h)
}

// Dispatch routes the event. An unknown topic is inert: logged and dropped
// without error so the receiver still acknowledges the delivery.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event *domain.WebhookEvent) error {
	for _, h := range d.handlers {
		if h.CanHandle(event.Topic) {
			return h.Handle(ctx, event)
		}
	}

	d.logger.Debug().
		Str("topic", event.Topic).
		Str("shop", event.Shop).
		Msg("No handler registered for webhook topic, ignoring")
	return nil
}
