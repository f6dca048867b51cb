package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReferralStatus is the user-to-user referral state
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
	ReferralCancelled ReferralStatus = "cancelled"
)

// Referral links a referrer to a referred user until the first qualifying purchase.
// Rewards stay zero until the record is completed.
type Referral struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ReferralCode   string             `bson:"referralCode" json:"referralCode"`
	ReferrerUserID string             `bson:"referrerUserId" json:"referrerUserId"`
	ReferredUserID string             `bson:"referredUserId" json:"referredUserId"`
	Status         ReferralStatus     `bson:"status" json:"status"`
	ReferrerReward float64            `bson:"referrerReward" json:"referrerReward"`
	ReferredReward float64            `bson:"referredReward" json:"referredReward"`
	OrderValue     float64            `bson:"orderValue" json:"orderValue"`
	OrderID        string             `bson:"orderId,omitempty" json:"orderId,omitempty"`
	Credited       bool               `bson:"credited" json:"credited"` // both rewards applied to the users' balances
	ExpiresAt      time.Time          `bson:"expiresAt" json:"expiresAt"`
	CompletedAt    *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CancelledAt    *time.Time         `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	CancelReason   string             `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CreditKey identifies one side's reward so a retried credit is applied once
func (r Referral) CreditKey(side string) string {
	return "referral:" + r.ID.Hex() + ":" + side
}

// Expired reports whether the referral window has closed
func (r Referral) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ReferralStats summarises a referrer's records
type ReferralStats struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	Completed   int     `json:"completed"`
	Cancelled   int     `json:"cancelled"`
	TotalEarned float64 `json:"totalEarned"`
}
