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

var _ repositories.ExperimentRepository = (*ExperimentRepository)(nil)

// ExperimentRepository stores A/B test configuration
type ExperimentRepository struct {
	collection *mongo.Collection
}

// NewExperimentRepository creates a new ExperimentRepository
func NewExperimentRepository(db *mongo.Database) *ExperimentRepository {
	return &ExperimentRepository{
		collection: db.Collection("experiments"),
	}
}

// FindByName finds an experiment by test name
func (r *ExperimentRepository) FindByName(ctx context.Context, name string) (*models.Experiment, error) {
	var e models.Experiment
	if err := r.collection.FindOne(ctx, bson.M{"name": name}).Decode(&e); err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

// FindAll lists experiments by name
func (r *ExperimentRepository) FindAll(ctx context.Context) ([]*models.Experiment, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var experiments []*models.Experiment
	if err := cursor.All(ctx, &experiments); err != nil {
		return nil, err
	}
	if experiments == nil {
		experiments = []*models.Experiment{}
	}
	return experiments, nil
}

// InsertIfAbsent seeds e unless an experiment with the same name exists
func (r *ExperimentRepository) InsertIfAbsent(ctx context.Context, e *models.Experiment) (bool, error) {
	update := bson.M{"$setOnInsert": bson.M{
		"description":  e.Description,
		"variants":     e.Variants,
		"active":       e.Active,
		"trafficSplit": e.TrafficSplit,
		"createdAt":    e.CreatedAt,
		"updatedAt":    e.UpdatedAt,
	}}
	res, err := r.collection.UpdateOne(ctx, bson.M{"name": e.Name}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, translate(err)
	}
	if id, ok := res.UpsertedID.(primitive.ObjectID); ok {
		e.ID = id
	}
	return res.UpsertedCount > 0, nil
}

// SetActive toggles assignment for the experiment
func (r *ExperimentRepository) SetActive(ctx context.Context, name string, active bool) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"name": name}, bson.M{"$set": bson.M{
		"active":    active,
		"updatedAt": time.Now(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// Promote records variant as the winner; a repeat promotion of the same
// variant is a no-op and returns false.
func (r *ExperimentRepository) Promote(ctx context.Context, name, variant string, split int, now time.Time) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"name": name, "promotedVariant": bson.M{"$ne": variant}},
		bson.M{"$set": bson.M{
			"promotedVariant": variant,
			"trafficSplit":    split,
			"promotedAt":      now,
			"updatedAt":       now,
		}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}
