package domain

import "time"

// DeliveryStatus is the processing outcome of a webhook delivery.
type DeliveryStatus string

const (
	DeliveryReceived  DeliveryStatus = "received"
	DeliveryProcessed DeliveryStatus = "processed"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryIgnored   DeliveryStatus = "ignored"
)

// Webhook topics this subsystem dispatches on.
const (
	TopicOrderCreate    = "orders/create"
	TopicOrderPaid      = "orders/paid"
	TopicOrderUpdated   = "orders/updated"
	TopicAppUninstalled = "app/uninstalled"
)

// WebhookDelivery is the idempotency ledger entry for one inbound delivery.
// Identity is (shop, dedupe key); a duplicate insert collides on the unique
// index instead of double-processing. Records are never deleted.
type WebhookDelivery struct {
	Shop       string         `json:"shop" bson:"shop"`
	DedupeKey  string         `json:"dedupe_key" bson:"dedupeKey"`
	Topic      string         `json:"topic" bson:"topic"`
	DeliveryID string         `json:"delivery_id,omitempty" bson:"deliveryId,omitempty"`
	OrderID    string         `json:"order_id,omitempty" bson:"orderId,omitempty"`
	Status     DeliveryStatus `json:"status" bson:"status"`
	Attempts   int            `json:"attempts" bson:"attempts"`
	LastError  string         `json:"last_error,omitempty" bson:"lastError,omitempty"`
	ReceivedAt time.Time      `json:"received_at" bson:"receivedAt"`
	UpdatedAt  time.Time      `json:"updated_at" bson:"updatedAt"`
}

// WebhookEvent is a verified, first-seen delivery handed to topic handlers.
// OperatorID is the owner of the target store, empty when the shop was
// installed before any operator linked it.
type WebhookEvent struct {
	Topic      string
	Shop       string
	DedupeKey  string
	OperatorID string
	Payload    []byte
}
