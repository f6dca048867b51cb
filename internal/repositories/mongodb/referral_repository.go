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

var _ repositories.ReferralRepository = (*ReferralRepository)(nil)

// ReferralRepository handles MongoDB operations for user referrals
type ReferralRepository struct {
	collection *mongo.Collection
}

// NewReferralRepository creates a new ReferralRepository
func NewReferralRepository(db *mongo.Database) *ReferralRepository {
	return &ReferralRepository{
		collection: db.Collection("referrals"),
	}
}

// CreateIfAbsent upserts against the live (non-cancelled) record for the pair.
// Two racing upserts can both miss the filter; the partial unique index on the
// pair rejects the second, which is reported as an existing record.
func (r *ReferralRepository) CreateIfAbsent(ctx context.Context, ref *models.Referral) (bool, error) {
	filter := bson.M{
		"referrerUserId": ref.ReferrerUserID,
		"referredUserId": ref.ReferredUserID,
		"status":         bson.M{"$ne": models.ReferralCancelled},
	}
	update := bson.M{"$setOnInsert": bson.M{
		"referralCode":   ref.ReferralCode,
		"status":         ref.Status,
		"referrerReward": 0.0,
		"referredReward": 0.0,
		"orderValue":     0.0,
		"credited":       false,
		"expiresAt":      ref.ExpiresAt,
		"createdAt":      ref.CreatedAt,
		"updatedAt":      ref.UpdatedAt,
	}}
	res, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	if res.UpsertedCount == 0 {
		return false, nil
	}
	if id, ok := res.UpsertedID.(primitive.ObjectID); ok {
		ref.ID = id
	}
	return true, nil
}

// FindByID finds a referral by ID
func (r *ReferralRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Referral, error) {
	var ref models.Referral
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&ref); err != nil {
		return nil, translate(err)
	}
	return &ref, nil
}

// FindPendingByReferred returns the oldest pending referral for the referred user
func (r *ReferralRepository) FindPendingByReferred(ctx context.Context, referredUserID string) (*models.Referral, error) {
	var ref models.Referral
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	filter := bson.M{"referredUserId": referredUserID, "status": models.ReferralPending}
	if err := r.collection.FindOne(ctx, filter, opts).Decode(&ref); err != nil {
		return nil, translate(err)
	}
	return &ref, nil
}

// FindByReferrer lists a referrer's records, newest first
func (r *ReferralRepository) FindByReferrer(ctx context.Context, referrerUserID string) ([]*models.Referral, error) {
	return r.find(ctx, bson.M{"referrerUserId": referrerUserID}, options.Find().SetSort(bson.M{"createdAt": -1}))
}

// FindExpiredPending lists pending referrals whose window has closed
func (r *ReferralRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]*models.Referral, error) {
	return r.find(ctx, bson.M{
		"status":    models.ReferralPending,
		"expiresAt": bson.M{"$lt": now},
	}, options.Find())
}

// FindUncredited lists completed referrals whose rewards have not been applied
func (r *ReferralRepository) FindUncredited(ctx context.Context, referredUserID string) ([]*models.Referral, error) {
	filter := bson.M{
		"status":   models.ReferralCompleted,
		"credited": bson.M{"$ne": true},
	}
	if referredUserID != "" {
		filter["referredUserId"] = referredUserID
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.M{"completedAt": 1}))
}

// MarkCredited records that both rewards of a completed referral were applied
func (r *ReferralRepository) MarkCredited(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.ReferralCompleted},
		bson.M{"$set": bson.M{"credited": true, "updatedAt": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *ReferralRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Referral, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var refs []*models.Referral
	if err := cursor.All(ctx, &refs); err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []*models.Referral{}
	}
	return refs, nil
}

// CompleteIfPending stores the completed record if the stored one is still pending
func (r *ReferralRepository) CompleteIfPending(ctx context.Context, next *models.Referral) error {
	return r.updateIfPending(ctx, next.ID, bson.M{
		"status":         next.Status,
		"referrerReward": next.ReferrerReward,
		"referredReward": next.ReferredReward,
		"orderValue":     next.OrderValue,
		"orderId":        next.OrderID,
		"completedAt":    next.CompletedAt,
		"updatedAt":      next.UpdatedAt,
	})
}

// CancelIfPending stores the cancelled record if the stored one is still pending
func (r *ReferralRepository) CancelIfPending(ctx context.Context, next *models.Referral) error {
	return r.updateIfPending(ctx, next.ID, bson.M{
		"status":       next.Status,
		"cancelledAt":  next.CancelledAt,
		"cancelReason": next.CancelReason,
		"updatedAt":    next.UpdatedAt,
	})
}

func (r *ReferralRepository) updateIfPending(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.ReferralPending},
		bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrConflict
	}
	return nil
}

// DeleteByUser removes every referral the user took part in
func (r *ReferralRepository) DeleteByUser(ctx context.Context, externalID string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"$or": []bson.M{
		{"referrerUserId": externalID},
		{"referredUserId": externalID},
	}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
