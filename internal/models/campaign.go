package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CampaignType selects which preference gates delivery
type CampaignType string

const (
	CampaignTypeDiscount     CampaignType = "discount"
	CampaignTypeNewProduct   CampaignType = "new_product"
	CampaignTypeNewsletter   CampaignType = "newsletter"
	CampaignTypeAnnouncement CampaignType = "announcement"
	CampaignTypePersonalized CampaignType = "personalized"
)

// Valid reports whether t is a known campaign type
func (t CampaignType) Valid() bool {
	switch t {
	case CampaignTypeDiscount, CampaignTypeNewProduct, CampaignTypeNewsletter,
		CampaignTypeAnnouncement, CampaignTypePersonalized:
		return true
	}
	return false
}

// CampaignStatus is the campaign lifecycle state
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled
}

// RecurrenceFrequency for recurring campaigns
type RecurrenceFrequency string

const (
	FrequencyDaily   RecurrenceFrequency = "daily"
	FrequencyWeekly  RecurrenceFrequency = "weekly"
	FrequencyMonthly RecurrenceFrequency = "monthly"
)

// MessageButton is an inline URL button attached to a campaign message
type MessageButton struct {
	Text string `bson:"text" json:"text"`
	URL  string `bson:"url" json:"url"`
}

// Message is the campaign payload
type Message struct {
	Text      string          `bson:"text" json:"text"`
	ParseMode string          `bson:"parseMode,omitempty" json:"parseMode,omitempty"` // HTML, Markdown
	Buttons   []MessageButton `bson:"buttons,omitempty" json:"buttons,omitempty"`
}

// Recurring describes a repeating trigger, e.g. weekly on day 1 at 09:30
type Recurring struct {
	Enabled    bool                `bson:"enabled" json:"enabled"`
	Frequency  RecurrenceFrequency `bson:"frequency" json:"frequency"`
	DayOfWeek  *int                `bson:"dayOfWeek,omitempty" json:"dayOfWeek,omitempty"`   // 0 = Sunday
	DayOfMonth *int                `bson:"dayOfMonth,omitempty" json:"dayOfMonth,omitempty"` // 1-31
	Time       string              `bson:"time" json:"time"`                                 // HH:MM
}

// Scheduling holds either a single send time or a recurrence
type Scheduling struct {
	SendAt    *time.Time `bson:"sendAt,omitempty" json:"sendAt,omitempty"`
	Timezone  string     `bson:"timezone,omitempty" json:"timezone,omitempty"`
	Recurring *Recurring `bson:"recurring,omitempty" json:"recurring,omitempty"`
}

// CampaignAnalytics are the aggregate delivery and engagement counters
type CampaignAnalytics struct {
	Sent        int     `bson:"sent" json:"sent"`
	Delivered   int     `bson:"delivered" json:"delivered"`
	Failed      int     `bson:"failed" json:"failed"`
	Clicks      int     `bson:"clicks" json:"clicks"`
	Conversions int     `bson:"conversions" json:"conversions"`
	Revenue     float64 `bson:"revenue" json:"revenue"`
}

// Campaign represents a broadcast to one or more segments
type Campaign struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CampaignID     string             `bson:"campaignId" json:"campaignId"`
	Name           string             `bson:"name" json:"name"`
	Description    string             `bson:"description,omitempty" json:"description,omitempty"`
	Type           CampaignType       `bson:"type" json:"type"`
	Status         CampaignStatus     `bson:"status" json:"status"`
	TargetSegments []string           `bson:"targetSegments" json:"targetSegments"`
	TargetUserIDs  []string           `bson:"targetUserIds,omitempty" json:"targetUserIds,omitempty"`
	Message        Message            `bson:"message" json:"message"`
	DiscountCode   *DiscountCode      `bson:"discountCode,omitempty" json:"discountCode,omitempty"`
	Scheduling     Scheduling         `bson:"scheduling" json:"scheduling"`
	Analytics      CampaignAnalytics  `bson:"analytics" json:"analytics"`
	CreatedBy      string             `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	StartedAt      *time.Time         `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt    *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	LastRunAt      *time.Time         `bson:"lastRunAt,omitempty" json:"lastRunAt,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CanSend is true while the campaign is scheduled or running
func (c Campaign) CanSend() bool {
	return c.Status == CampaignStatusActive || c.Status == CampaignStatusScheduled
}

// CanUseDiscount reports whether the embedded code may still be redeemed
func (c Campaign) CanUseDiscount(now time.Time) bool {
	return c.DiscountCode != nil && c.DiscountCode.Usable(now)
}

// IsRecurring reports whether the campaign fires on a recurrence rather than once
func (c Campaign) IsRecurring() bool {
	return c.Scheduling.Recurring != nil && c.Scheduling.Recurring.Enabled
}

// TargetsAll reports whether segment filtering is bypassed
func (c Campaign) TargetsAll() bool {
	for _, s := range c.TargetSegments {
		if s == SegmentAll {
			return true
		}
	}
	return len(c.TargetSegments) == 0
}
