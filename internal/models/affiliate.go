package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AffiliateStatus is the program membership state
type AffiliateStatus string

const (
	AffiliatePending    AffiliateStatus = "pending"
	AffiliateActive     AffiliateStatus = "active"
	AffiliateSuspended  AffiliateStatus = "suspended"
	AffiliateTerminated AffiliateStatus = "terminated"
)

// Valid reports whether s is a known affiliate status
func (s AffiliateStatus) Valid() bool {
	switch s {
	case AffiliatePending, AffiliateActive, AffiliateSuspended, AffiliateTerminated:
		return true
	}
	return false
}

// AffiliateTier is derived from cumulative earnings
type AffiliateTier string

const (
	TierBronze   AffiliateTier = "bronze"
	TierSilver   AffiliateTier = "silver"
	TierGold     AffiliateTier = "gold"
	TierPlatinum AffiliateTier = "platinum"
)

// AffiliateReferralStatus tracks a single attributed sale
type AffiliateReferralStatus string

const (
	AffiliateReferralPending   AffiliateReferralStatus = "pending"
	AffiliateReferralConfirmed AffiliateReferralStatus = "confirmed"
	AffiliateReferralPaid      AffiliateReferralStatus = "paid"
)

// PayoutStatus tracks a payout request
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// AffiliatePerformance holds the running counters
type AffiliatePerformance struct {
	TotalReferrals      int     `bson:"totalReferrals" json:"totalReferrals"`
	SuccessfulReferrals int     `bson:"successfulReferrals" json:"successfulReferrals"`
	TotalEarnings       float64 `bson:"totalEarnings" json:"totalEarnings"`
	PendingEarnings     float64 `bson:"pendingEarnings" json:"pendingEarnings"`
	PaidEarnings        float64 `bson:"paidEarnings" json:"paidEarnings"`
	ConversionRate      float64 `bson:"conversionRate" json:"conversionRate"`
}

// AffiliateReferral is one attributed sale. CommissionRate is captured when
// the line item is created.
type AffiliateReferral struct {
	UserID         string                  `bson:"userId" json:"userId"`
	OrderID        string                  `bson:"orderId,omitempty" json:"orderId,omitempty"`
	OrderValue     float64                 `bson:"orderValue" json:"orderValue"`
	CommissionRate float64                 `bson:"commissionRate" json:"commissionRate"`
	Commission     float64                 `bson:"commission" json:"commission"`
	Status         AffiliateReferralStatus `bson:"status" json:"status"`
	CreatedAt      time.Time               `bson:"createdAt" json:"createdAt"`
	ConfirmedAt    *time.Time              `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
}

// Payout is a request to pay out earnings
type Payout struct {
	PayoutID      string       `bson:"payoutId" json:"payoutId"`
	Amount        float64      `bson:"amount" json:"amount"`
	Method        string       `bson:"method" json:"method"`
	Status        PayoutStatus `bson:"status" json:"status"`
	RequestedAt   time.Time    `bson:"requestedAt" json:"requestedAt"`
	ProcessedAt   *time.Time   `bson:"processedAt,omitempty" json:"processedAt,omitempty"`
	TransactionID string       `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	FailureReason string       `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
}

// Affiliate is a partner earning commission on attributed sales.
// Version guards replace-style writes against lost updates.
type Affiliate struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id,omitempty"`
	AffiliateID    string               `bson:"affiliateId" json:"affiliateId"`
	ExternalID     string               `bson:"externalId" json:"externalId"`
	Name           string               `bson:"name,omitempty" json:"name,omitempty"`
	Email          string               `bson:"email,omitempty" json:"email,omitempty"`
	ReferralCode   string               `bson:"referralCode" json:"referralCode"`
	Status         AffiliateStatus      `bson:"status" json:"status"`
	Tier           AffiliateTier        `bson:"tier" json:"tier"`
	CommissionRate float64              `bson:"commissionRate" json:"commissionRate"`
	Performance    AffiliatePerformance `bson:"performance" json:"performance"`
	Referrals      []AffiliateReferral  `bson:"referrals" json:"referrals"`
	Payouts        []Payout             `bson:"payouts" json:"payouts"`
	Version        int64                `bson:"version" json:"-"`
	CreatedAt      time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// Clone returns a copy that shares no slices with a
func (a Affiliate) Clone() Affiliate {
	out := a
	out.Referrals = append([]AffiliateReferral(nil), a.Referrals...)
	out.Payouts = append([]Payout(nil), a.Payouts...)
	return out
}
