package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// MongoDeliveryRepository implements the webhook idempotency ledger. The
// unique (shop, dedupeKey) index makes the insert itself the dedupe check:
// concurrent duplicates race on the index, not on a read-then-write.
type MongoDeliveryRepository struct {
	collection *mongo.Collection
}

// NewMongoDeliveryRepository creates the delivery ledger and ensures its
// unique index.
func NewMongoDeliveryRepository(db *mongo.Database) ports.DeliveryRepository {
	r := &MongoDeliveryRepository{collection: db.Collection("webhook_deliveries")}

	indexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "shop", Value: 1},
			{Key: "dedupeKey", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	_, _ = r.collection.Indexes().CreateOne(context.Background(), indexModel)

	return r
}

// Insert records a first-seen delivery. A duplicate (shop, dedupeKey)
// collides on the unique index and returns ErrDuplicateDelivery.
func (r *MongoDeliveryRepository) Insert(ctx context.Context, delivery *domain.WebhookDelivery) error {
	if delivery.ReceivedAt.IsZero() {
		delivery.ReceivedAt = time.Now().UTC()
	}
	delivery.UpdatedAt = delivery.ReceivedAt
	if delivery.Attempts == 0 {
		delivery.Attempts = 1
	}

	_, err := r.collection.InsertOne(ctx, delivery)
	if mongo.IsDuplicateKeyError(err) {
		// Count the re-delivery on the existing record so the audit trail
		// shows how often the upstream retried.
		filter := bson.M{"shop": delivery.Shop, "dedupeKey": delivery.DedupeKey}
		update := bson.M{
			"$inc": bson.M{"attempts": 1},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		}
		if _, incErr := r.collection.UpdateOne(ctx, filter, update); incErr != nil {
			return fmt.Errorf("failed to count duplicate delivery: %w", incErr)
		}
		return domain.ErrDuplicateDelivery
	}
	if err != nil {
		return fmt.Errorf("failed to insert webhook delivery: %w", err)
	}
	return nil
}

// SetStatus records the processing outcome of a delivery.
func (r *MongoDeliveryRepository) SetStatus(ctx context.Context, shop, dedupeKey string, status domain.DeliveryStatus, lastError string) error {
	filter := bson.M{"shop": shop, "dedupeKey": dedupeKey}
	update := bson.M{"$set": bson.M{
		"status":    status,
		"lastError": lastError,
		"updatedAt": time.Now().UTC(),
	}}

	if _, err := r.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	return nil
}

// ListByShop returns the audit trail for one shop, newest first. Deliveries
// are never deleted.
func (r *MongoDeliveryRepository) ListByShop(ctx context.Context, shop string, limit int) ([]*domain.WebhookDelivery, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "receivedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"shop": shop}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer cursor.Close(ctx)

	var deliveries []*domain.WebhookDelivery
	for cursor.Next(ctx) {
		var d domain.WebhookDelivery
		if err := cursor.Decode(&d); err != nil {
			return nil, fmt.Errorf("failed to decode delivery: %w", err)
		}
		deliveries = append(deliveries, &d)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return deliveries, nil
}
