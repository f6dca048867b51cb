package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DiscountCode is either embedded in a campaign or stored standalone.
// Exactly one of Percentage and FixedAmount is set.
type DiscountCode struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Code          string             `bson:"code" json:"code"`
	Percentage    *float64           `bson:"percentage" json:"percentage"`
	FixedAmount   *float64           `bson:"fixedAmount,omitempty" json:"fixedAmount,omitempty"`
	MinOrderValue float64            `bson:"minOrderValue" json:"minOrderValue"`
	MaxUses       *int               `bson:"maxUses" json:"maxUses"` // nil = unlimited
	UsedCount     int                `bson:"usedCount" json:"usedCount"`
	ExpiryDate    time.Time          `bson:"expiryDate" json:"expiryDate"`
	IsActive      bool               `bson:"isActive" json:"isActive"`
	Segments      []string           `bson:"segments,omitempty" json:"segments,omitempty"`
	CampaignID    string             `bson:"campaignId,omitempty" json:"campaignId,omitempty"`
	UserID        string             `bson:"userId,omitempty" json:"userId,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

// Expired reports whether the code is past its expiry date
func (d DiscountCode) Expired(now time.Time) bool {
	return now.After(d.ExpiryDate)
}

// Usable is true when the code is active, unexpired and has uses left
func (d DiscountCode) Usable(now time.Time) bool {
	if !d.IsActive || d.Expired(now) {
		return false
	}
	return d.MaxUses == nil || d.UsedCount < *d.MaxUses
}
