package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// MongoRecordRepository materializes synced orders and products. Identity is
// the unique (operatorId, shop, upstreamId) triple; a secondary non-unique
// (shop, upstreamId) index serves cross-operator lookups.
type MongoRecordRepository struct {
	orders   *mongo.Collection
	products *mongo.Collection
}

// NewMongoRecordRepository creates the record repository and ensures its
// indexes on both collections.
func NewMongoRecordRepository(db *mongo.Database) ports.RecordRepository {
	r := &MongoRecordRepository{
		orders:   db.Collection("order_records"),
		products: db.Collection("product_records"),
	}

	for _, coll := range []*mongo.Collection{r.orders, r.products} {
		_, _ = coll.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
			{
				Keys: bson.D{
					{Key: "operatorId", Value: 1},
					{Key: "shop", Value: 1},
					{Key: "upstreamId", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{
					{Key: "shop", Value: 1},
					{Key: "upstreamId", Value: 1},
				},
			},
		})
	}

	return r
}

// UpsertOrder writes an order record by (operator, shop, upstream id).
func (r *MongoRecordRepository) UpsertOrder(ctx context.Context, order *domain.OrderRecord) error {
	filter := bson.M{
		"operatorId": order.OperatorID,
		"shop":       order.Shop,
		"upstreamId": order.UpstreamID,
	}
	update := bson.M{"$set": order}
	opts := options.Update().SetUpsert(true)

	if _, err := r.orders.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert order record: %w", err)
	}
	return nil
}

// UpsertProduct writes a product record by (operator, shop, upstream id).
func (r *MongoRecordRepository) UpsertProduct(ctx context.Context, product *domain.ProductRecord) error {
	filter := bson.M{
		"operatorId": product.OperatorID,
		"shop":       product.Shop,
		"upstreamId": product.UpstreamID,
	}
	update := bson.M{"$set": product}
	opts := options.Update().SetUpsert(true)

	if _, err := r.products.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert product record: %w", err)
	}
	return nil
}
