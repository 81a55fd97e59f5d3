package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// OrderHandler materializes order webhook payloads into order records. The
// create, paid, and updated topics all carry the full order document, so one
// upsert path serves all three.
type OrderHandler struct {
	records ports.RecordRepository
	logger  zerolog.Logger
}

// NewOrderHandler creates a handler for the order topic family.
func NewOrderHandler(records ports.RecordRepository, logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{records: records, logger: logger}
}

// CanHandle reports whether this handler owns the topic.
func (h *OrderHandler) CanHandle(topic string) bool {
	switch topic {
	case domain.TopicOrderCreate, domain.TopicOrderPaid, domain.TopicOrderUpdated:
		return true
	}
	return false
}

type orderPayload struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	TotalPrice      string `json:"total_price"`
	Currency        string `json:"currency"`
	FinancialStatus string `json:"financial_status"`
	ProcessedAt     string `json:"processed_at"`
	UpdatedAt       string `json:"updated_at"`
}

// Handle parses the order document and upserts the record for the store's
// operator. A payload that does not parse is a handler failure; the upstream
// will redeliver and the dedupe ledger already holds the entry as failed.
func (h *OrderHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var payload orderPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse order payload: %w", err)
	}
	if payload.ID == 0 {
		return fmt.Errorf("order payload missing id")
	}

	record := &domain.OrderRecord{
		OperatorID:      event.OperatorID,
		Shop:            event.Shop,
		UpstreamID:      payload.ID,
		Name:            payload.Name,
		Email:           payload.Email,
		TotalPrice:      payload.TotalPrice,
		Currency:        payload.Currency,
		FinancialStatus: payload.FinancialStatus,
		ProcessedAt:     parseTime(payload.ProcessedAt),
		UpdatedAt:       parseTime(payload.UpdatedAt),
		Payload:         event.Payload,
	}
	if err := h.records.UpsertOrder(ctx, record); err != nil {
		return fmt.Errorf("failed to upsert order %d: %w", payload.ID, err)
	}

	h.logger.Info().
		Str("shop", event.Shop).
		Str("topic", event.Topic).
		Int64("orderId", payload.ID).
		Msg("Order webhook processed")
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
