package domain

import "time"

// OrderRecord is a materialized upstream order, isolated per
// (operator, shop, upstream id). Mutated only by sync/webhook upserts,
// never deleted here. Payload carries the verbatim upstream document.
type OrderRecord struct {
	OperatorID      string    `json:"operator_id" bson:"operatorId"`
	Shop            string    `json:"shop" bson:"shop"`
	UpstreamID      int64     `json:"upstream_id" bson:"upstreamId"`
	Name            string    `json:"name" bson:"name"`
	Email           string    `json:"email,omitempty" bson:"email,omitempty"`
	TotalPrice      string    `json:"total_price" bson:"totalPrice"`
	Currency        string    `json:"currency" bson:"currency"`
	FinancialStatus string    `json:"financial_status,omitempty" bson:"financialStatus,omitempty"`
	ProcessedAt     time.Time `json:"processed_at" bson:"processedAt"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updatedAt"`
	Payload         []byte    `json:"-" bson:"payload"`
}

// ProductRecord is a materialized upstream product, keyed like OrderRecord.
type ProductRecord struct {
	OperatorID string    `json:"operator_id" bson:"operatorId"`
	Shop       string    `json:"shop" bson:"shop"`
	UpstreamID int64     `json:"upstream_id" bson:"upstreamId"`
	Title      string    `json:"title" bson:"title"`
	Handle     string    `json:"handle,omitempty" bson:"handle,omitempty"`
	Vendor     string    `json:"vendor,omitempty" bson:"vendor,omitempty"`
	Status     string    `json:"status,omitempty" bson:"status,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updatedAt"`
	Payload    []byte    `json:"-" bson:"payload"`
}
