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

var _ repositories.CampaignRepository = (*CampaignRepository)(nil)

// CampaignRepository implements the repositories.CampaignRepository interface
type CampaignRepository struct {
	collection *mongo.Collection
}

// NewCampaignRepository creates a new CampaignRepository
func NewCampaignRepository(db *mongo.Database) *CampaignRepository {
	return &CampaignRepository{
		collection: db.Collection("campaigns"),
	}
}

// Create inserts a new campaign
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	c.ID = primitive.NewObjectID()
	if c.TargetSegments == nil {
		c.TargetSegments = []string{}
	}
	_, err := r.collection.InsertOne(ctx, c)
	return translate(err)
}

// FindByCampaignID finds a campaign by its public id
func (r *CampaignRepository) FindByCampaignID(ctx context.Context, campaignID string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.collection.FindOne(ctx, bson.M{"campaignId": campaignID}).Decode(&campaign); err != nil {
		return nil, translate(err)
	}
	return &campaign, nil
}

// FindAll lists campaigns, newest first, optionally filtered by status
func (r *CampaignRepository) FindAll(ctx context.Context, status models.CampaignStatus, page, limit int) ([]*models.Campaign, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	return r.find(ctx, filter, paginate(options.Find().SetSort(bson.M{"createdAt": -1}), page, limit))
}

func (r *CampaignRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Campaign, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var campaigns []*models.Campaign
	if err := cursor.All(ctx, &campaigns); err != nil {
		return nil, err
	}
	if campaigns == nil {
		campaigns = []*models.Campaign{}
	}
	return campaigns, nil
}

// UpdateDraft overwrites the editable fields while the campaign is a draft
func (r *CampaignRepository) UpdateDraft(ctx context.Context, c *models.Campaign) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"campaignId": c.CampaignID, "status": models.CampaignStatusDraft},
		bson.M{"$set": bson.M{
			"name":           c.Name,
			"description":    c.Description,
			"type":           c.Type,
			"targetSegments": c.TargetSegments,
			"targetUserIds":  c.TargetUserIDs,
			"message":        c.Message,
			"discountCode":   c.DiscountCode,
			"updatedAt":      c.UpdatedAt,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrConflict
	}
	return nil
}

// SetScheduling stores scheduling on a draft or paused campaign
func (r *CampaignRepository) SetScheduling(ctx context.Context, campaignID string, scheduling models.Scheduling) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{
			"campaignId": campaignID,
			"status": bson.M{"$in": []models.CampaignStatus{
				models.CampaignStatusDraft, models.CampaignStatusPaused, models.CampaignStatusScheduled,
			}},
		},
		bson.M{"$set": bson.M{"scheduling": scheduling, "updatedAt": time.Now()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrConflict
	}
	return nil
}

// Transition moves the campaign to t.To if its status is one of t.From
func (r *CampaignRepository) Transition(ctx context.Context, campaignID string, t repositories.CampaignTransition) (*models.Campaign, error) {
	set := bson.M{"status": t.To, "updatedAt": t.At}
	if t.StartedAt != nil {
		set["startedAt"] = t.StartedAt
	}
	if t.CompletedAt != nil {
		set["completedAt"] = t.CompletedAt
	}
	if t.LastRunAt != nil {
		set["lastRunAt"] = t.LastRunAt
	}
	if t.SendAt != nil {
		set["scheduling.sendAt"] = t.SendAt
	}

	var campaign models.Campaign
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"campaignId": campaignID, "status": bson.M{"$in": t.From}},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&campaign)
	if err == mongo.ErrNoDocuments {
		return nil, repositories.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// IncrementAnalytics adds delta to the campaign counters
func (r *CampaignRepository) IncrementAnalytics(ctx context.Context, campaignID string, delta models.CampaignAnalytics) error {
	inc := bson.M{}
	counters := map[string]int{
		"sent":        delta.Sent,
		"delivered":   delta.Delivered,
		"failed":      delta.Failed,
		"clicks":      delta.Clicks,
		"conversions": delta.Conversions,
	}
	for field, v := range counters {
		if v != 0 {
			inc["analytics."+field] = v
		}
	}
	if delta.Revenue != 0 {
		inc["analytics.revenue"] = delta.Revenue
	}
	if len(inc) == 0 {
		return nil
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"campaignId": campaignID}, bson.M{"$inc": inc})
	return err
}

// FindDue lists one-shot campaigns whose send time has passed
func (r *CampaignRepository) FindDue(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	return r.find(ctx, bson.M{
		"status":                       models.CampaignStatusScheduled,
		"scheduling.sendAt":            bson.M{"$lte": now},
		"scheduling.recurring.enabled": bson.M{"$ne": true},
	}, options.Find().SetSort(bson.M{"scheduling.sendAt": 1}))
}

// FindRecurring lists scheduled campaigns with an enabled recurrence
func (r *CampaignRepository) FindRecurring(ctx context.Context) ([]*models.Campaign, error) {
	return r.find(ctx, bson.M{
		"status":                       models.CampaignStatusScheduled,
		"scheduling.recurring.enabled": true,
	}, options.Find())
}

// TopByConversions lists the campaigns with most conversions
func (r *CampaignRepository) TopByConversions(ctx context.Context, limit int) ([]*models.Campaign, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "analytics.conversions", Value: -1},
		{Key: "analytics.revenue", Value: -1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{}, opts)
}

// FindByDiscountCode finds the campaign embedding code
func (r *CampaignRepository) FindByDiscountCode(ctx context.Context, code string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.collection.FindOne(ctx, bson.M{"discountCode.code": code}).Decode(&campaign); err != nil {
		return nil, translate(err)
	}
	return &campaign, nil
}

// RedeemDiscount counts one use of the embedded code and credits the conversion
func (r *CampaignRepository) RedeemDiscount(ctx context.Context, code string, orderValue float64, now time.Time) (*models.Campaign, error) {
	filter := bson.M{
		"discountCode.code":          code,
		"discountCode.isActive":      true,
		"discountCode.expiryDate":    bson.M{"$gte": now},
		"discountCode.minOrderValue": bson.M{"$lte": orderValue},
		"$or": []bson.M{
			{"discountCode.maxUses": nil},
			{"$expr": bson.M{"$lt": bson.A{"$discountCode.usedCount", "$discountCode.maxUses"}}},
		},
	}
	update := bson.M{"$inc": bson.M{
		"discountCode.usedCount": 1,
		"analytics.conversions":  1,
		"analytics.revenue":      orderValue,
	}}

	var campaign models.Campaign
	err := r.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&campaign)
	if err == mongo.ErrNoDocuments {
		return nil, repositories.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// DeactivateExpiredDiscounts switches off embedded codes past expiry
func (r *CampaignRepository) DeactivateExpiredDiscounts(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"discountCode.isActive": true, "discountCode.expiryDate": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"discountCode.isActive": false}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeleteCompletedBefore purges completed campaigns finished before cutoff
func (r *CampaignRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{
		"status":      models.CampaignStatusCompleted,
		"completedAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
