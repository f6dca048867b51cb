package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Segment tags. Segments are derived from purchase totals and activity and are
// recomputed, never edited by hand.
const (
	SegmentAll               = "all"
	SegmentNewCustomer       = "new_customer"
	SegmentReturningCustomer = "returning_customer"
	SegmentVIP               = "vip"
	SegmentInactive          = "inactive"
)

const (
	vipSpendThreshold = 1000
	inactiveAfter     = 30 * 24 * time.Hour
)

// Preferences are the per-user delivery opt-ins
type Preferences struct {
	Notifications bool `bson:"notifications" json:"notifications"`
	Promotions    bool `bson:"promotions" json:"promotions"`
	NewProducts   bool `bson:"newProducts" json:"newProducts"`
}

// DefaultPreferences is what a user gets on first contact
func DefaultPreferences() Preferences {
	return Preferences{Notifications: true, Promotions: true, NewProducts: true}
}

// Consent records marketing consent given through the bot
type Consent struct {
	Marketing   bool       `bson:"marketing" json:"marketing"`
	ConsentedAt *time.Time `bson:"consentedAt,omitempty" json:"consentedAt,omitempty"`
}

// User represents a bot subscriber
type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	ExternalID       string             `bson:"externalId" json:"externalId"` // Telegram user id
	Username         string             `bson:"username,omitempty" json:"username,omitempty"`
	FirstName        string             `bson:"firstName,omitempty" json:"firstName,omitempty"`
	LastName         string             `bson:"lastName,omitempty" json:"lastName,omitempty"`
	LanguageCode     string             `bson:"languageCode,omitempty" json:"languageCode,omitempty"`
	IsSubscribed     bool               `bson:"isSubscribed" json:"isSubscribed"`
	SubscribedAt     *time.Time         `bson:"subscribedAt,omitempty" json:"subscribedAt,omitempty"`
	UnsubscribedAt   *time.Time         `bson:"unsubscribedAt,omitempty" json:"unsubscribedAt,omitempty"`
	Consent          Consent            `bson:"consent" json:"consent"`
	Preferences      Preferences        `bson:"preferences" json:"preferences"`
	Segments         []string           `bson:"segments" json:"segments"`
	TotalPurchases   int                `bson:"totalPurchases" json:"totalPurchases"`
	TotalSpent       float64            `bson:"totalSpent" json:"totalSpent"`
	LastPurchaseDate *time.Time         `bson:"lastPurchaseDate,omitempty" json:"lastPurchaseDate,omitempty"`
	Credits          float64            `bson:"credits" json:"credits"`
	CreditKeys       []string           `bson:"creditKeys,omitempty" json:"-"`   // rewards already applied to Credits
	RecentOrders     []string           `bson:"recentOrders,omitempty" json:"-"` // last order ids counted in the totals
	ReferralCode     string             `bson:"referralCode" json:"referralCode"`
	AffiliateCode    string             `bson:"affiliateCode,omitempty" json:"affiliateCode,omitempty"`
	BotBlocked       bool               `bson:"botBlocked" json:"botBlocked"`
	DeliveryFailures int                `bson:"deliveryFailures" json:"deliveryFailures"`
	LastInteraction  time.Time          `bson:"lastInteraction" json:"lastInteraction"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// UserProfile carries the identity fields reported with an interaction
type UserProfile struct {
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// ComputeSegments derives segment membership from the user's totals and activity.
func (u User) ComputeSegments(now time.Time) []string {
	segments := make([]string, 0, 3)
	if u.TotalPurchases == 0 {
		segments = append(segments, SegmentNewCustomer)
	} else {
		segments = append(segments, SegmentReturningCustomer)
	}
	if u.TotalSpent > vipSpendThreshold {
		segments = append(segments, SegmentVIP)
	}
	if !u.LastInteraction.IsZero() && now.Sub(u.LastInteraction) > inactiveAfter {
		segments = append(segments, SegmentInactive)
	}
	return segments
}

// HasSegment reports whether the user currently carries segment s
func (u User) HasSegment(s string) bool {
	for _, seg := range u.Segments {
		if seg == s {
			return true
		}
	}
	return false
}

// Deliverable reports whether campaign messages may be sent to the user at all.
func (u User) Deliverable() bool {
	return u.IsSubscribed && !u.BotBlocked
}

// AllowsCampaign applies the campaign-type to preference mapping.
func (u User) AllowsCampaign(t CampaignType) bool {
	switch t {
	case CampaignTypeDiscount, CampaignTypePersonalized:
		return u.Preferences.Promotions
	case CampaignTypeNewProduct:
		return u.Preferences.NewProducts
	case CampaignTypeNewsletter, CampaignTypeAnnouncement:
		return u.Preferences.Notifications
	default:
		return true
	}
}
