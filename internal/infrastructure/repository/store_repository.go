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

// MongoStoreRepository implements StoreRepository using MongoDB. The shop
// domain carries a unique index, so two concurrent installs of the same shop
// converge on a single record.
type MongoStoreRepository struct {
	collection *mongo.Collection
}

// NewMongoStoreRepository creates the store repository and ensures its
// indexes.
func NewMongoStoreRepository(db *mongo.Database) ports.StoreRepository {
	r := &MongoStoreRepository{collection: db.Collection("stores")}

	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "domain", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, _ = r.collection.Indexes().CreateOne(context.Background(), indexModel)

	return r
}

// Upsert writes the store keyed by shop domain only. A reinstall overwrites
// the earlier credential instead of creating a second record.
func (r *MongoStoreRepository) Upsert(ctx context.Context, store *domain.Store) error {
	opts := options.Update().SetUpsert(true)
	filter := bson.M{"domain": store.Domain}

	set := bson.M{
		"domain":        store.Domain,
		"accessToken":   store.AccessToken,
		"scopes":        store.Scopes,
		"active":        store.Active,
		"installedAt":   store.InstalledAt,
		"uninstalledAt": store.UninstalledAt,
		"webhookIds":    store.WebhookIDs,
	}
	// The owning operator, once set, changes only via an explicit link
	// action, so Upsert never clears it.
	if store.OperatorID != "" {
		set["operatorId"] = store.OperatorID
	}
	update := bson.M{"$set": set}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert store: %w", err)
	}
	return nil
}

// Get retrieves a store by canonical shop domain, nil when absent.
func (r *MongoStoreRepository) Get(ctx context.Context, shopDomain string) (*domain.Store, error) {
	var store domain.Store
	err := r.collection.FindOne(ctx, bson.M{"domain": shopDomain}).Decode(&store)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return &store, nil
}

// GetForOperator retrieves a store only when owned by the given operator.
func (r *MongoStoreRepository) GetForOperator(ctx context.Context, shopDomain, operatorID string) (*domain.Store, error) {
	var store domain.Store
	filter := bson.M{"domain": shopDomain, "operatorId": operatorID}
	err := r.collection.FindOne(ctx, filter).Decode(&store)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store for operator: %w", err)
	}
	return &store, nil
}

// ListByOperator returns every store linked to the operator.
func (r *MongoStoreRepository) ListByOperator(ctx context.Context, operatorID string) ([]*domain.Store, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"operatorId": operatorID})
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer cursor.Close(ctx)

	var stores []*domain.Store
	for cursor.Next(ctx) {
		var store domain.Store
		if err := cursor.Decode(&store); err != nil {
			return nil, fmt.Errorf("failed to decode store: %w", err)
		}
		stores = append(stores, &store)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return stores, nil
}

// LinkOperator atomically claims an installed, active store that is either
// unlinked or already linked to the same operator. The claim filter runs in
// a single findOneAndUpdate so two operators cannot both win.
func (r *MongoStoreRepository) LinkOperator(ctx context.Context, shopDomain, operatorID string) error {
	filter := bson.M{
		"domain": shopDomain,
		"active": true,
		"$or": bson.A{
			bson.M{"operatorId": bson.M{"$exists": false}},
			bson.M{"operatorId": ""},
			bson.M{"operatorId": operatorID},
		},
	}
	update := bson.M{"$set": bson.M{"operatorId": operatorID}}

	err := r.collection.FindOneAndUpdate(ctx, filter, update).Err()
	if err == mongo.ErrNoDocuments {
		return &domain.NotInstalledError{Shop: shopDomain}
	}
	if err != nil {
		return fmt.Errorf("failed to link operator: %w", err)
	}
	return nil
}

// Deactivate clears the credential and marks the store uninstalled. The
// record itself is kept; a later reinstall reuses it.
func (r *MongoStoreRepository) Deactivate(ctx context.Context, shopDomain string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"accessToken":   "",
		"active":        false,
		"uninstalledAt": at,
		"webhookIds":    []int64{},
	}}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"domain": shopDomain}, update); err != nil {
		return fmt.Errorf("failed to deactivate store: %w", err)
	}
	return nil
}

// AdvanceWatermark compare-and-sets the per-resource watermark. The filter
// matches only when the stored value still equals the one the sync started
// from, so a concurrent sync that already advanced it makes this a no-op.
func (r *MongoStoreRepository) AdvanceWatermark(ctx context.Context, shopDomain string, kind domain.ResourceKind, from, to time.Time) (bool, error) {
	field := "watermarks." + string(kind)

	filter := bson.M{"domain": shopDomain}
	if from.IsZero() {
		filter[field] = bson.M{"$exists": false}
	} else {
		filter[field] = from
	}
	update := bson.M{"$set": bson.M{field: to}}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to advance watermark: %w", err)
	}
	return res.MatchedCount > 0, nil
}
