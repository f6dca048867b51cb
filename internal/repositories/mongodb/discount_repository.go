package mongodb

import (
	"context"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ repositories.DiscountRepository = (*DiscountRepository)(nil)

// DiscountRepository handles standalone discount codes
type DiscountRepository struct {
	collection *mongo.Collection
}

// NewDiscountRepository creates a new DiscountRepository
func NewDiscountRepository(db *mongo.Database) *DiscountRepository {
	return &DiscountRepository{
		collection: db.Collection("discount_codes"),
	}
}

// Create inserts a code; the unique index on code rejects duplicates
func (r *DiscountRepository) Create(ctx context.Context, d *models.DiscountCode) error {
	d.ID = primitive.NewObjectID()
	_, err := r.collection.InsertOne(ctx, d)
	return translate(err)
}

// CreateMany inserts codes unordered and reports how many were stored
func (r *DiscountRepository) CreateMany(ctx context.Context, codes []*models.DiscountCode) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, len(codes))
	for i, d := range codes {
		d.ID = primitive.NewObjectID()
		docs[i] = d
	}
	res, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if res != nil && mongo.IsDuplicateKeyError(err) {
		return len(res.InsertedIDs), nil
	}
	if err != nil {
		return 0, err
	}
	return len(res.InsertedIDs), nil
}

// FindByCode finds a code
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var d models.DiscountCode
	if err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&d); err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

// Redeem increments usedCount only while the code is active, unexpired,
// under its use limit and orderValue meets the minimum.
func (r *DiscountRepository) Redeem(ctx context.Context, code string, orderValue float64, now time.Time) (*models.DiscountCode, error) {
	filter := bson.M{
		"code":          code,
		"isActive":      true,
		"expiryDate":    bson.M{"$gte": now},
		"minOrderValue": bson.M{"$lte": orderValue},
		"$or": []bson.M{
			{"maxUses": nil},
			{"$expr": bson.M{"$lt": bson.A{"$usedCount", "$maxUses"}}},
		},
	}
	var d models.DiscountCode
	err := r.collection.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"usedCount": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, repositories.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeactivateExpired switches off codes past expiry
func (r *DiscountRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"isActive": true, "expiryDate": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"isActive": false}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
