package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/metrics"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// InboundDelivery is the raw material of one webhook POST: headers the
// handler extracted plus the exact body bytes the signature covers.
type InboundDelivery struct {
	Topic      string
	Shop       string
	DeliveryID string
	OrderID    string
	Signature  string
	Body       []byte
}

// WebhookReceiver verifies, deduplicates, and dispatches inbound webhook
// deliveries. Verification always comes first: nothing about an unsigned
// request reaches storage.
type WebhookReceiver struct {
	deliveries ports.DeliveryRepository
	stores     ports.StoreRepository
	verifier   ports.DeliveryVerifier
	dispatcher *WebhookDispatcher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewWebhookReceiver wires the receiver pipeline.
func NewWebhookReceiver(
	deliveries ports.DeliveryRepository,
	stores ports.StoreRepository,
	verifier ports.DeliveryVerifier,
	dispatcher *WebhookDispatcher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *WebhookReceiver {
	return &WebhookReceiver{
		deliveries: deliveries,
		stores:     stores,
		verifier:   verifier,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
	}
}

// Process runs one delivery through verify, dedupe, dispatch. It returns nil
// for every outcome the upstream should not retry: success, duplicate, and
// deliveries for unknown or uninstalled shops. ErrWebhookSignature and
// handler failures propagate so the handler can answer 401 or 500.
func (r *WebhookReceiver) Process(ctx context.Context, in InboundDelivery) error {
	if !r.verifier.VerifyWebhook(in.Body, in.Signature) {
		r.logger.Warn().
			Str("topic", in.Topic).
			Str("shop", in.Shop).
			Msg("Webhook signature verification failed")
		r.metrics.ObserveDelivery(in.Topic, "rejected")
		return domain.ErrWebhookSignature
	}

	shop, err := domain.SanitizeShopDomain(in.Shop)
	if err != nil {
		return err
	}
	dedupeKey := in.DeliveryID
	if dedupeKey == "" {
		return &domain.ValidationError{Field: "delivery", Reason: "missing delivery identifier"}
	}

	now := time.Now().UTC()
	delivery := &domain.WebhookDelivery{
		Shop:       shop,
		DedupeKey:  dedupeKey,
		Topic:      in.Topic,
		DeliveryID: in.DeliveryID,
		OrderID:    in.OrderID,
		Status:     domain.DeliveryReceived,
		ReceivedAt: now,
		UpdatedAt:  now,
	}
	if err := r.deliveries.Insert(ctx, delivery); err != nil {
		if err == domain.ErrDuplicateDelivery {
			r.logger.Debug().
				Str("shop", shop).
				Str("dedupeKey", dedupeKey).
				Msg("Duplicate webhook delivery, skipping")
			r.metrics.ObserveDelivery(in.Topic, "duplicate")
			return nil
		}
		return err
	}

	store, err := r.stores.Get(ctx, shop)
	if err != nil {
		return err
	}
	if store == nil || !store.Installed() {
		r.logger.Info().
			Str("shop", shop).
			Str("topic", in.Topic).
			Msg("Webhook for unknown or uninstalled shop, ignoring")
		r.metrics.ObserveDelivery(in.Topic, "ignored")
		return r.deliveries.SetStatus(ctx, shop, dedupeKey, domain.DeliveryIgnored, "")
	}

	event := &domain.WebhookEvent{
		Topic:      in.Topic,
		Shop:       shop,
		DedupeKey:  dedupeKey,
		OperatorID: store.OperatorID,
		Payload:    in.Body,
	}
	if err := r.dispatcher.Dispatch(ctx, event); err != nil {
		r.logger.Error().Err(err).
			Str("shop", shop).
			Str("topic", in.Topic).
			Msg("Webhook handler failed")
		r.metrics.ObserveDelivery(in.Topic, "failed")
		if serr := r.deliveries.SetStatus(ctx, shop, dedupeKey, domain.DeliveryFailed, err.Error()); serr != nil {
			r.logger.Error().Err(serr).Str("shop", shop).Msg("Failed to record delivery failure")
		}
		return err
	}

	r.metrics.ObserveDelivery(in.Topic, "processed")
	return r.deliveries.SetStatus(ctx, shop, dedupeKey, domain.DeliveryProcessed, "")
}

// Deliveries exposes the per-shop audit trail.
func (r *WebhookReceiver) Deliveries(ctx context.Context, rawShop string, limit int) ([]*domain.WebhookDelivery, error) {
	shop, err := domain.SanitizeShopDomain(rawShop)
	if err != nil {
		return nil, err
	}
	return r.deliveries.ListByShop(ctx, shop, limit)
}
