package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when a lookup matches nothing
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional update found the record in an unexpected state
	ErrConflict = errors.New("record is not in the expected state")
	// ErrVersionConflict is returned when a versioned replace lost a race
	ErrVersionConflict = errors.New("record was modified concurrently")
	// ErrDuplicate is returned on unique key violations
	ErrDuplicate = errors.New("record already exists")
)

// UserRepository defines the interface for subscriber data operations
type UserRepository interface {
	// Touch records an interaction, creating the user on first contact.
	// It clears the bot-blocked flag and the delivery failure streak.
	Touch(ctx context.Context, externalID string, profile models.UserProfile, referralCode string, now time.Time) (*models.User, bool, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	FindByReferralCode(ctx context.Context, code string) (*models.User, error)
	FindAll(ctx context.Context, page, limit int) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
	SetSubscription(ctx context.Context, externalID string, subscribed bool, now time.Time) (*models.User, error)
	SetPreference(ctx context.Context, externalID, key string, enabled bool) (*models.User, error)
	// SetAffiliateCode attributes the user to an affiliate unless already attributed
	SetAffiliateCode(ctx context.Context, externalID, code string) (bool, error)
	// RecordPurchase adds an order to the totals. A non-empty orderID already
	// among the user's recent orders is not counted again and false is returned.
	RecordPurchase(ctx context.Context, externalID, orderID string, amount float64, now time.Time) (*models.User, bool, error)
	SetTotals(ctx context.Context, externalID string, purchases int, spent float64) error
	SetSegments(ctx context.Context, externalID string, segments []string) error
	// AddCredits increments the credit balance once per key. A key already
	// applied is a no-op.
	AddCredits(ctx context.Context, externalID string, amount float64, key string) error
	// FindAudience returns subscribed, non-blocked users in any of segments
	// (nil = every segment), optionally restricted to userIDs.
	FindAudience(ctx context.Context, segments []string, userIDs []string) ([]*models.User, error)
	RecordDeliveryFailure(ctx context.Context, externalID string) (int, error)
	ResetDeliveryFailures(ctx context.Context, externalID string) error
	MarkBotBlocked(ctx context.Context, externalID string) error
	Each(ctx context.Context, fn func(*models.User) error) error
	Delete(ctx context.Context, externalID string) error
}

// ReferralRepository defines the interface for user-to-user referral records
type ReferralRepository interface {
	// CreateIfAbsent inserts r unless a non-cancelled record exists for the same pair.
	// A concurrent insert for the pair also reports false.
	CreateIfAbsent(ctx context.Context, r *models.Referral) (bool, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Referral, error)
	FindPendingByReferred(ctx context.Context, referredUserID string) (*models.Referral, error)
	FindByReferrer(ctx context.Context, referrerUserID string) ([]*models.Referral, error)
	FindExpiredPending(ctx context.Context, now time.Time) ([]*models.Referral, error)
	// CompleteIfPending and CancelIfPending write next only if the stored record is still pending
	CompleteIfPending(ctx context.Context, next *models.Referral) error
	CancelIfPending(ctx context.Context, next *models.Referral) error
	// FindUncredited lists completed referrals whose rewards are not applied yet,
	// restricted to referredUserID unless it is empty
	FindUncredited(ctx context.Context, referredUserID string) ([]*models.Referral, error)
	MarkCredited(ctx context.Context, id primitive.ObjectID) error
	DeleteByUser(ctx context.Context, externalID string) (int64, error)
}

// AffiliateRepository defines the interface for affiliate data operations
type AffiliateRepository interface {
	Create(ctx context.Context, a *models.Affiliate) error
	FindByAffiliateID(ctx context.Context, affiliateID string) (*models.Affiliate, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Affiliate, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Affiliate, error)
	FindByPendingReferral(ctx context.Context, userID, orderID string) (*models.Affiliate, error)
	FindAll(ctx context.Context, status models.AffiliateStatus, page, limit int) ([]*models.Affiliate, error)
	// Replace writes a if the stored version still equals a.Version, then bumps it
	Replace(ctx context.Context, a *models.Affiliate) error
}

// CampaignTransition moves a campaign between statuses if it is currently in one of From
type CampaignTransition struct {
	From        []models.CampaignStatus
	To          models.CampaignStatus
	At          time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastRunAt   *time.Time
	SendAt      *time.Time
}

// CampaignRepository defines the interface for campaign data operations
type CampaignRepository interface {
	Create(ctx context.Context, c *models.Campaign) error
	FindByCampaignID(ctx context.Context, campaignID string) (*models.Campaign, error)
	FindAll(ctx context.Context, status models.CampaignStatus, page, limit int) ([]*models.Campaign, error)
	// UpdateDraft replaces the editable fields of a campaign still in draft
	UpdateDraft(ctx context.Context, c *models.Campaign) error
	// SetScheduling stores scheduling on a draft or paused campaign
	SetScheduling(ctx context.Context, campaignID string, scheduling models.Scheduling) error
	Transition(ctx context.Context, campaignID string, t CampaignTransition) (*models.Campaign, error)
	IncrementAnalytics(ctx context.Context, campaignID string, delta models.CampaignAnalytics) error
	FindDue(ctx context.Context, now time.Time) ([]*models.Campaign, error)
	FindRecurring(ctx context.Context) ([]*models.Campaign, error)
	TopByConversions(ctx context.Context, limit int) ([]*models.Campaign, error)
	FindByDiscountCode(ctx context.Context, code string) (*models.Campaign, error)
	// RedeemDiscount counts one use of an embedded code if it is still usable
	RedeemDiscount(ctx context.Context, code string, orderValue float64, now time.Time) (*models.Campaign, error)
	DeactivateExpiredDiscounts(ctx context.Context, now time.Time) (int64, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DiscountRepository defines the interface for standalone discount codes
type DiscountRepository interface {
	Create(ctx context.Context, d *models.DiscountCode) error
	CreateMany(ctx context.Context, codes []*models.DiscountCode) (int, error)
	FindByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	// Redeem counts one use if the code is still usable for orderValue
	Redeem(ctx context.Context, code string, orderValue float64, now time.Time) (*models.DiscountCode, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// EventRepository defines the interface for analytics events
type EventRepository interface {
	Append(ctx context.Context, e *models.AnalyticsEvent) error
	AggregateVariants(ctx context.Context, since time.Time) ([]models.VariantCounts, error)
	AggregateFunnel(ctx context.Context, since time.Time) ([]models.StageCounts, error)
	CountByType(ctx context.Context, since time.Time) (map[models.EventType]int64, error)
	// FindRecipients lists the users a campaign message was sent to
	FindRecipients(ctx context.Context, campaignID string) ([]string, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// ExperimentRepository defines the interface for live A/B test configuration
type ExperimentRepository interface {
	FindByName(ctx context.Context, name string) (*models.Experiment, error)
	FindAll(ctx context.Context) ([]*models.Experiment, error)
	InsertIfAbsent(ctx context.Context, e *models.Experiment) (bool, error)
	SetActive(ctx context.Context, name string, active bool) error
	// Promote skews traffic to variant unless it is already the promoted one
	Promote(ctx context.Context, name, variant string, split int, now time.Time) (bool, error)
}

// AdminUserRepository defines the interface for admin user data operations
type AdminUserRepository interface {
	Create(ctx context.Context, adminUser *models.AdminUser) error
	FindByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.AdminUser, error)
}
