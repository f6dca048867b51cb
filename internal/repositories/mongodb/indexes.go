package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func key(fields ...string) bson.D {
	d := make(bson.D, 0, len(fields))
	for _, f := range fields {
		d = append(d, bson.E{Key: f, Value: 1})
	}
	return d
}

// EnsureIndexes creates the unique and lookup indexes every repository relies on
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	sparseUnique := options.Index().SetUnique(true).SetSparse(true)
	// at most one pending or completed referral per pair; cancelled ones may repeat
	livePairUnique := options.Index().SetName("referral_live_pair").SetUnique(true).SetPartialFilterExpression(bson.M{
		"status": bson.M{"$in": []string{"pending", "completed"}},
	})

	indexes := map[string][]mongo.IndexModel{
		"users": {
			{Keys: key("externalId"), Options: unique},
			{Keys: key("referralCode"), Options: sparseUnique},
			{Keys: key("isSubscribed", "segments")},
		},
		"referrals": {
			{Keys: key("referrerUserId", "referredUserId"), Options: livePairUnique},
			{Keys: key("referredUserId", "status", "createdAt")},
			{Keys: key("status", "expiresAt")},
			{Keys: key("status", "credited")},
		},
		"affiliates": {
			{Keys: key("affiliateId"), Options: unique},
			{Keys: key("externalId"), Options: unique},
			{Keys: key("referralCode"), Options: unique},
			{Keys: key("referrals.userId", "referrals.status")},
		},
		"campaigns": {
			{Keys: key("campaignId"), Options: unique},
			{Keys: key("status", "scheduling.sendAt")},
			{Keys: key("discountCode.code"), Options: sparseUnique},
		},
		"discount_codes": {
			{Keys: key("code"), Options: unique},
			{Keys: key("isActive", "expiryDate")},
		},
		"analytics_events": {
			{Keys: key("type", "timestamp")},
			{Keys: key("userId")},
			{Keys: key("campaignId", "type")},
		},
		"experiments": {
			{Keys: key("name"), Options: unique},
		},
		"admin_users": {
			{Keys: key("email"), Options: unique},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}
