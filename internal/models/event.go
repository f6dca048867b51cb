package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventType classifies an analytics event
type EventType string

const (
	EventMessageSent         EventType = "message_sent"
	EventMessageDelivered    EventType = "message_delivered"
	EventMessageFailed       EventType = "message_failed"
	EventButtonClick         EventType = "button_click"
	EventDiscountUsed        EventType = "discount_used"
	EventSubscription        EventType = "subscription"
	EventUnsubscription      EventType = "unsubscription"
	EventUserInteraction     EventType = "user_interaction"
	EventReferralSignup      EventType = "referral_signup"
	EventReferralCompleted   EventType = "referral_completed"
	EventAffiliateCommission EventType = "affiliate_commission"
	EventABTest              EventType = "ab_test"
	EventFunnelProgression   EventType = "funnel_progression"
	EventCustom              EventType = "custom"
)

// Experiment actions carried in ab_test events
const (
	ActionView       = "view"
	ActionClick      = "click"
	ActionConversion = "conversion"
)

// Funnel stages in order
const (
	StageAwareness     = "awareness"
	StageInterest      = "interest"
	StageConsideration = "consideration"
	StagePurchase      = "purchase"
	StageRetention     = "retention"
	StageAdvocacy      = "advocacy"
)

// FunnelStages lists the stages in funnel order
var FunnelStages = []string{
	StageAwareness, StageInterest, StageConsideration, StagePurchase, StageRetention, StageAdvocacy,
}

// AnalyticsEvent is an append-only record of something a user or the system did
type AnalyticsEvent struct {
	ID         primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	Type       EventType              `bson:"type" json:"type"`
	UserID     string                 `bson:"userId" json:"userId"`
	CampaignID string                 `bson:"campaignId,omitempty" json:"campaignId,omitempty"`
	Data       map[string]interface{} `bson:"data,omitempty" json:"data,omitempty"`
	Source     string                 `bson:"source,omitempty" json:"source,omitempty"`
	Timestamp  time.Time              `bson:"timestamp" json:"timestamp"`
}

// VariantCounts is one row of the experiment aggregation: tallies for a
// test+variant pair within the window.
type VariantCounts struct {
	TestName    string `bson:"testName" json:"testName"`
	Variant     string `bson:"variant" json:"variant"`
	Views       int    `bson:"views" json:"views"`
	Clicks      int    `bson:"clicks" json:"clicks"`
	Conversions int    `bson:"conversions" json:"conversions"`
	Total       int    `bson:"total" json:"total"`
}

// StageCounts is one row of the funnel aggregation
type StageCounts struct {
	Stage       string `bson:"stage" json:"stage"`
	Events      int    `bson:"events" json:"events"`
	UniqueUsers int    `bson:"uniqueUsers" json:"uniqueUsers"`
}
