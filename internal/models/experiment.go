package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExperimentVariant is one arm of an A/B test
type ExperimentVariant struct {
	ID       string  `bson:"id" json:"id"`
	Name     string  `bson:"name" json:"name"`
	Message  string  `bson:"message,omitempty" json:"message,omitempty"`
	Discount float64 `bson:"discount,omitempty" json:"discount,omitempty"`
}

// Experiment is the live configuration of an A/B test.
// TrafficSplit only applies once a variant has been promoted.
type Experiment struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	Name            string              `bson:"name" json:"name"`
	Description     string              `bson:"description,omitempty" json:"description,omitempty"`
	Variants        []ExperimentVariant `bson:"variants" json:"variants"`
	Active          bool                `bson:"active" json:"active"`
	TrafficSplit    int                 `bson:"trafficSplit" json:"trafficSplit"`
	PromotedVariant string              `bson:"promotedVariant,omitempty" json:"promotedVariant,omitempty"`
	PromotedAt      *time.Time          `bson:"promotedAt,omitempty" json:"promotedAt,omitempty"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// VariantIDs returns the variant ids in configuration order
func (e Experiment) VariantIDs() []string {
	ids := make([]string, len(e.Variants))
	for i, v := range e.Variants {
		ids[i] = v.ID
	}
	return ids
}

// Variant looks up a variant by id
func (e Experiment) Variant(id string) (ExperimentVariant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return ExperimentVariant{}, false
}
