package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check to ensure UserRepository implements the interface
var _ repositories.UserRepository = (*UserRepository)(nil)

// UserRepository handles MongoDB operations for subscribers
type UserRepository struct {
	collection *mongo.Collection
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

func (r *UserRepository) findOneAndUpdate(ctx context.Context, externalID string, update bson.M) (*models.User, error) {
	var user models.User
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"externalId": externalID}, update, opts).Decode(&user)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// Touch upserts the user and records the interaction
func (r *UserRepository) Touch(ctx context.Context, externalID string, profile models.UserProfile, referralCode string, now time.Time) (*models.User, bool, error) {
	set := bson.M{
		"lastInteraction":  now,
		"updatedAt":        now,
		"botBlocked":       false,
		"deliveryFailures": 0,
	}
	if profile.Username != "" {
		set["username"] = profile.Username
	}
	if profile.FirstName != "" {
		set["firstName"] = profile.FirstName
	}
	if profile.LastName != "" {
		set["lastName"] = profile.LastName
	}
	if profile.LanguageCode != "" {
		set["languageCode"] = profile.LanguageCode
	}

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"isSubscribed":   false,
			"consent":        models.Consent{},
			"preferences":    models.DefaultPreferences(),
			"segments":       []string{models.SegmentNewCustomer},
			"totalPurchases": 0,
			"totalSpent":     0.0,
			"credits":        0.0,
			"referralCode":   referralCode,
			"createdAt":      now,
		},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"externalId": externalID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, false, translate(err)
	}
	user, err := r.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, err
	}
	return user, res.UpsertedCount > 0, nil
}

// FindByExternalID finds a user by Telegram id
func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"externalId": externalID}).Decode(&user)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByReferralCode finds the owner of a user referral code
func (r *UserRepository) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"referralCode": code}).Decode(&user)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindAll retrieves users, newest first
func (r *UserRepository) FindAll(ctx context.Context, page, limit int) ([]*models.User, error) {
	opts := paginate(options.Find().SetSort(bson.M{"createdAt": -1}), page, limit)
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []*models.User
	if err = cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// Count returns the total number of users
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}

// SetSubscription flips the subscription flag and stamps the matching timestamp
func (r *UserRepository) SetSubscription(ctx context.Context, externalID string, subscribed bool, now time.Time) (*models.User, error) {
	set := bson.M{"isSubscribed": subscribed, "updatedAt": now}
	if subscribed {
		set["subscribedAt"] = now
		set["consent"] = models.Consent{Marketing: true, ConsentedAt: &now}
	} else {
		set["unsubscribedAt"] = now
	}
	return r.findOneAndUpdate(ctx, externalID, bson.M{"$set": set})
}

// SetPreference sets a single preference flag
func (r *UserRepository) SetPreference(ctx context.Context, externalID, key string, enabled bool) (*models.User, error) {
	return r.findOneAndUpdate(ctx, externalID, bson.M{"$set": bson.M{
		"preferences." + key: enabled,
		"updatedAt":          time.Now(),
	}})
}

// SetAffiliateCode stores code only if the user has none yet
func (r *UserRepository) SetAffiliateCode(ctx context.Context, externalID, code string) (bool, error) {
	filter := bson.M{
		"externalId": externalID,
		"$or": []bson.M{
			{"affiliateCode": bson.M{"$exists": false}},
			{"affiliateCode": ""},
		},
	}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"affiliateCode": code}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// recentOrderLimit bounds the order ids kept for replay detection
const recentOrderLimit = 50

// RecordPurchase increments purchase totals atomically. The order id is
// matched and pushed in the same update so a redelivered order is counted once.
func (r *UserRepository) RecordPurchase(ctx context.Context, externalID, orderID string, amount float64, now time.Time) (*models.User, bool, error) {
	filter := bson.M{"externalId": externalID}
	update := bson.M{
		"$inc": bson.M{"totalPurchases": 1, "totalSpent": amount},
		"$set": bson.M{"lastPurchaseDate": now, "updatedAt": now},
	}
	if orderID != "" {
		filter["recentOrders"] = bson.M{"$ne": orderID}
		update["$push"] = bson.M{"recentOrders": bson.M{"$each": []string{orderID}, "$slice": -recentOrderLimit}}
	}

	var user models.User
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) && orderID != "" {
		existing, ferr := r.FindByExternalID(ctx, externalID)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, translate(err)
	}
	return &user, true, nil
}

// SetTotals overwrites purchase totals, used by bulk import
func (r *UserRepository) SetTotals(ctx context.Context, externalID string, purchases int, spent float64) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"externalId": externalID}, bson.M{"$set": bson.M{
		"totalPurchases": purchases,
		"totalSpent":     spent,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// SetSegments replaces the computed segments
func (r *UserRepository) SetSegments(ctx context.Context, externalID string, segments []string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"externalId": externalID}, bson.M{"$set": bson.M{"segments": segments}})
	return err
}

// AddCredits atomically increments the user's credit balance and records key,
// unless key was already applied
func (r *UserRepository) AddCredits(ctx context.Context, externalID string, amount float64, key string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"externalId": externalID, "creditKeys": bson.M{"$ne": key}},
		bson.M{
			"$inc":      bson.M{"credits": amount},
			"$addToSet": bson.M{"creditKeys": key},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	// either the user is gone or the key was applied by an earlier attempt
	_, err = r.FindByExternalID(ctx, externalID)
	return err
}

// FindAudience returns the deliverable users for a campaign
func (r *UserRepository) FindAudience(ctx context.Context, segments []string, userIDs []string) ([]*models.User, error) {
	filter := bson.M{
		"isSubscribed": true,
		"botBlocked":   bson.M{"$ne": true},
	}
	if len(segments) > 0 {
		filter["segments"] = bson.M{"$in": segments}
	}
	if len(userIDs) > 0 {
		filter["externalId"] = bson.M{"$in": userIDs}
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []*models.User
	if err = cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// RecordDeliveryFailure increments and returns the consecutive failure count
func (r *UserRepository) RecordDeliveryFailure(ctx context.Context, externalID string) (int, error) {
	user, err := r.findOneAndUpdate(ctx, externalID, bson.M{"$inc": bson.M{"deliveryFailures": 1}})
	if err != nil {
		return 0, err
	}
	return user.DeliveryFailures, nil
}

// ResetDeliveryFailures clears the failure streak after a successful send
func (r *UserRepository) ResetDeliveryFailures(ctx context.Context, externalID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"externalId": externalID, "deliveryFailures": bson.M{"$gt": 0}},
		bson.M{"$set": bson.M{"deliveryFailures": 0}})
	return err
}

// MarkBotBlocked excludes the user from future deliveries until they interact again
func (r *UserRepository) MarkBotBlocked(ctx context.Context, externalID string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"externalId": externalID}, bson.M{"$set": bson.M{
		"botBlocked": true,
		"updatedAt":  time.Now(),
	}})
	return err
}

// Each streams every user through fn, stopping at the first error
func (r *UserRepository) Each(ctx context.Context, fn func(*models.User) error) error {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return err
		}
		if err := fn(&user); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// Delete removes a user
func (r *UserRepository) Delete(ctx context.Context, externalID string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"externalId": externalID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
