package mongodb

import (
	"context"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var _ repositories.EventRepository = (*EventRepository)(nil)

// EventRepository stores append-only analytics events
type EventRepository struct {
	collection *mongo.Collection
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db *mongo.Database) *EventRepository {
	return &EventRepository{
		collection: db.Collection("analytics_events"),
	}
}

// Append inserts an event
func (r *EventRepository) Append(ctx context.Context, e *models.AnalyticsEvent) error {
	e.ID = primitive.NewObjectID()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, e)
	return err
}

// AggregateVariants tallies ab_test events per test, variant and action
func (r *EventRepository) AggregateVariants(ctx context.Context, since time.Time) ([]models.VariantCounts, error) {
	countAction := func(action string) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$data.action", action}}, 1, 0}}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"type":      models.EventABTest,
			"timestamp": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":         bson.M{"testName": "$data.testName", "variant": "$data.variant"},
			"views":       countAction(models.ActionView),
			"clicks":      countAction(models.ActionClick),
			"conversions": countAction(models.ActionConversion),
			"total":       bson.M{"$sum": 1},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":         0,
			"testName":    "$_id.testName",
			"variant":     "$_id.variant",
			"views":       1,
			"clicks":      1,
			"conversions": 1,
			"total":       1,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "testName", Value: 1}, {Key: "variant", Value: 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.VariantCounts
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.VariantCounts{}
	}
	return rows, nil
}

// AggregateFunnel counts funnel_progression events and distinct users per stage
func (r *EventRepository) AggregateFunnel(ctx context.Context, since time.Time) ([]models.StageCounts, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"type":      models.EventFunnelProgression,
			"timestamp": bson.M{"$gte": since},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$data.stage",
			"events": bson.M{"$sum": 1},
			"users":  bson.M{"$addToSet": "$userId"},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":         0,
			"stage":       "$_id",
			"events":      1,
			"uniqueUsers": bson.M{"$size": "$users"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.StageCounts
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.StageCounts{}
	}
	return rows, nil
}

// CountByType counts events per type since the given time
func (r *EventRepository) CountByType(ctx context.Context, since time.Time) (map[models.EventType]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$type", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Type  models.EventType `bson:"_id"`
		Count int64            `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := make(map[models.EventType]int64, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}

// DeleteOlderThan removes events before cutoff
func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// FindRecipients returns the distinct users with a message_sent event for the campaign
func (r *EventRepository) FindRecipients(ctx context.Context, campaignID string) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "userId", bson.M{
		"type":       models.EventMessageSent,
		"campaignId": campaignID,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DeleteByUser removes a user's events
func (r *EventRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
