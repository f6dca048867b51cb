package mongodb

import (
	"context"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ repositories.AffiliateRepository = (*AffiliateRepository)(nil)

// AffiliateRepository stores one document per affiliate with embedded
// line items and payouts. Writes are whole-document replaces guarded by version.
type AffiliateRepository struct {
	collection *mongo.Collection
}

// NewAffiliateRepository creates a new AffiliateRepository
func NewAffiliateRepository(db *mongo.Database) *AffiliateRepository {
	return &AffiliateRepository{
		collection: db.Collection("affiliates"),
	}
}

// Create inserts a new affiliate at version 1
func (r *AffiliateRepository) Create(ctx context.Context, a *models.Affiliate) error {
	a.ID = primitive.NewObjectID()
	a.Version = 1
	if a.Referrals == nil {
		a.Referrals = []models.AffiliateReferral{}
	}
	if a.Payouts == nil {
		a.Payouts = []models.Payout{}
	}
	_, err := r.collection.InsertOne(ctx, a)
	return translate(err)
}

func (r *AffiliateRepository) findOne(ctx context.Context, filter bson.M) (*models.Affiliate, error) {
	var a models.Affiliate
	if err := r.collection.FindOne(ctx, filter).Decode(&a); err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// FindByAffiliateID finds an affiliate by its public id
func (r *AffiliateRepository) FindByAffiliateID(ctx context.Context, affiliateID string) (*models.Affiliate, error) {
	return r.findOne(ctx, bson.M{"affiliateId": affiliateID})
}

// FindByExternalID finds the affiliate account of a Telegram user
func (r *AffiliateRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Affiliate, error) {
	return r.findOne(ctx, bson.M{"externalId": externalID})
}

// FindByReferralCode finds the affiliate owning a DK code
func (r *AffiliateRepository) FindByReferralCode(ctx context.Context, code string) (*models.Affiliate, error) {
	return r.findOne(ctx, bson.M{"referralCode": code})
}

// FindByPendingReferral finds the affiliate holding a pending line item for
// userID, narrowed to orderID when given.
func (r *AffiliateRepository) FindByPendingReferral(ctx context.Context, userID, orderID string) (*models.Affiliate, error) {
	match := bson.M{"userId": userID, "status": models.AffiliateReferralPending}
	if orderID != "" {
		match["orderId"] = orderID
	}
	return r.findOne(ctx, bson.M{"referrals": bson.M{"$elemMatch": match}})
}

// FindAll lists affiliates, optionally by status
func (r *AffiliateRepository) FindAll(ctx context.Context, status models.AffiliateStatus, page, limit int) ([]*models.Affiliate, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := paginate(options.Find().SetSort(bson.M{"performance.totalEarnings": -1}), page, limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var affiliates []*models.Affiliate
	if err := cursor.All(ctx, &affiliates); err != nil {
		return nil, err
	}
	if affiliates == nil {
		affiliates = []*models.Affiliate{}
	}
	return affiliates, nil
}

// Replace writes a when the stored version matches, bumping a.Version on success
func (r *AffiliateRepository) Replace(ctx context.Context, a *models.Affiliate) error {
	expected := a.Version
	a.Version = expected + 1
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": a.ID, "version": expected}, a)
	if err != nil {
		a.Version = expected
		return err
	}
	if res.MatchedCount == 0 {
		a.Version = expected
		return repositories.ErrVersionConflict
	}
	return nil
}
