package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
)

// WelcomeCreator creates the welcome campaign for a first-time subscriber
type WelcomeCreator interface {
	CreateWelcome(ctx context.Context, user *models.User) (*models.Campaign, error)
}

var preferenceKeys = map[string]bool{
	"notifications": true,
	"promotions":    true,
	"newProducts":   true,
}

// referralCodeAttempts bounds the salted retries after a referral code collision
const referralCodeAttempts = 5

// UserReferralCode derives the personal referral code of a user: USER + 6 hex chars
func UserReferralCode(externalID string) string {
	sum := md5.Sum([]byte(externalID))
	return "USER" + strings.ToUpper(hex.EncodeToString(sum[:])[:6])
}

// referralCodeCandidate is the code tried on the given attempt. Attempts after
// the first salt the id and take 8 hex chars.
func referralCodeCandidate(externalID string, attempt int) string {
	if attempt == 0 {
		return UserReferralCode(externalID)
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%d", externalID, attempt)))
	return "USER" + strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}

// SubscriberService handles the subscriber lifecycle
type SubscriberService struct {
	users     repositories.UserRepository
	referrals repositories.ReferralRepository
	events    repositories.EventRepository
	welcome   WelcomeCreator
	recorder  eventRecorder
	logger    *observability.Logger
	now       func() time.Time
}

// NewSubscriberService creates a new SubscriberService. welcome may be nil.
func NewSubscriberService(
	users repositories.UserRepository,
	referrals repositories.ReferralRepository,
	events repositories.EventRepository,
	welcome WelcomeCreator,
	logger *observability.Logger,
) *SubscriberService {
	return &SubscriberService{
		users:     users,
		referrals: referrals,
		events:    events,
		welcome:   welcome,
		recorder:  eventRecorder{events: events, logger: logger, now: time.Now},
		logger:    logger,
		now:       time.Now,
	}
}

// Touch records an interaction, creating the user on first contact
func (s *SubscriberService) Touch(ctx context.Context, externalID string, profile models.UserProfile) (*models.User, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	}
	user, created, err := s.touch(ctx, externalID, profile, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to touch user: %w", err)
	}
	if created {
		s.logger.Info(observability.WithFields(ctx, observability.Field{Key: "user_id", Value: externalID}), "new user created")
	}
	s.recorder.record(ctx, models.EventUserInteraction, externalID, "", nil)
	return user, nil
}

// touch upserts the user. A duplicate key on insert means the derived referral
// code belongs to someone else, so the insert is retried with a salted code.
// An existing user keeps its stored code.
func (s *SubscriberService) touch(ctx context.Context, externalID string, profile models.UserProfile, now time.Time) (*models.User, bool, error) {
	var err error
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		var (
			user    *models.User
			created bool
		)
		user, created, err = s.users.Touch(ctx, externalID, profile, referralCodeCandidate(externalID, attempt), now)
		if !errors.Is(err, repositories.ErrDuplicate) {
			return user, created, err
		}
		s.logger.Warn(observability.WithFields(ctx,
			observability.Field{Key: "user_id", Value: externalID},
			observability.Field{Key: "attempt", Value: attempt},
		), "referral code already taken, retrying with a salted code")
	}
	return nil, false, err
}

// Subscribe opts the user in. The first subscription also creates the welcome campaign.
func (s *SubscriberService) Subscribe(ctx context.Context, externalID string, profile models.UserProfile) (*models.User, error) {
	user, err := s.Touch(ctx, externalID, profile)
	if err != nil {
		return nil, err
	}
	if user.IsSubscribed {
		return user, nil
	}
	firstTime := user.SubscribedAt == nil

	user, err = s.users.SetSubscription(ctx, externalID, true, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe user: %w", err)
	}
	s.recorder.record(ctx, models.EventSubscription, externalID, "", nil)
	s.recorder.record(ctx, models.EventFunnelProgression, externalID, "", map[string]interface{}{"stage": models.StageAwareness})

	if firstTime && s.welcome != nil {
		if _, err := s.welcome.CreateWelcome(ctx, user); err != nil {
			s.logger.Error(observability.WithFields(ctx, observability.Field{Key: "user_id", Value: externalID}),
				"failed to create welcome campaign", err)
		}
	}
	return user, nil
}

// Unsubscribe opts the user out of every campaign
func (s *SubscriberService) Unsubscribe(ctx context.Context, externalID string) (*models.User, error) {
	user, err := s.users.SetSubscription(ctx, externalID, false, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to unsubscribe user: %w", err)
	}
	s.recorder.record(ctx, models.EventUnsubscription, externalID, "", nil)
	return user, nil
}

// SetPreference toggles notifications, promotions or newProducts
func (s *SubscriberService) SetPreference(ctx context.Context, externalID, key string, enabled bool) (*models.User, error) {
	if !preferenceKeys[key] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPreference, key)
	}
	user, err := s.users.SetPreference(ctx, externalID, key, enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to update preference: %w", err)
	}
	return user, nil
}

// RecordPurchase adds a purchase to the user's totals and refreshes segments
func (s *SubscriberService) RecordPurchase(ctx context.Context, externalID string, amount float64) (*models.User, error) {
	user, _, err := s.RecordOrder(ctx, externalID, "", amount)
	return user, err
}

// RecordOrder is RecordPurchase keyed by order id. A redelivered order leaves
// the totals unchanged and reports false.
func (s *SubscriberService) RecordOrder(ctx context.Context, externalID, orderID string, amount float64) (*models.User, bool, error) {
	if amount <= 0 {
		return nil, false, ErrInvalidOrder
	}
	now := s.now()
	user, counted, err := s.users.RecordPurchase(ctx, externalID, orderID, amount, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record purchase: %w", err)
	}
	if !counted {
		return user, false, nil
	}
	user.Segments = user.ComputeSegments(now)
	if err := s.users.SetSegments(ctx, externalID, user.Segments); err != nil {
		return nil, false, fmt.Errorf("failed to update segments: %w", err)
	}
	s.recorder.record(ctx, models.EventFunnelProgression, externalID, "", map[string]interface{}{
		"stage":      models.StagePurchase,
		"orderValue": amount,
	})
	return user, true, nil
}

// Get returns a user
func (s *SubscriberService) Get(ctx context.Context, externalID string) (*models.User, error) {
	return s.users.FindByExternalID(ctx, externalID)
}

// List returns a page of users and the total count
func (s *SubscriberService) List(ctx context.Context, page, limit int) ([]*models.User, int64, error) {
	users, err := s.users.FindAll(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Erase deletes the user together with their events and referral records
func (s *SubscriberService) Erase(ctx context.Context, externalID string) error {
	if err := s.users.Delete(ctx, externalID); err != nil {
		return err
	}
	events, err := s.events.DeleteByUser(ctx, externalID)
	if err != nil {
		return fmt.Errorf("failed to erase events: %w", err)
	}
	referrals, err := s.referrals.DeleteByUser(ctx, externalID)
	if err != nil {
		return fmt.Errorf("failed to erase referrals: %w", err)
	}
	s.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "user_id", Value: externalID},
		observability.Field{Key: "events_deleted", Value: events},
		observability.Field{Key: "referrals_deleted", Value: referrals},
	), "user data erased")
	return nil
}

// ImportRecord is one subscriber row from a bulk import
type ImportRecord struct {
	ExternalID     string
	Username       string
	Subscribed     bool
	TotalPurchases int
	TotalSpent     float64
}

// Import upserts a subscriber from an import row. Imported users are not
// sent a welcome campaign.
func (s *SubscriberService) Import(ctx context.Context, rec ImportRecord) (bool, error) {
	if rec.ExternalID == "" {
		return false, fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	}
	now := s.now()
	user, created, err := s.touch(ctx, rec.ExternalID, models.UserProfile{Username: rec.Username}, now)
	if err != nil {
		return false, err
	}
	if rec.Subscribed != user.IsSubscribed {
		if user, err = s.users.SetSubscription(ctx, rec.ExternalID, rec.Subscribed, now); err != nil {
			return false, err
		}
	}
	if err := s.users.SetTotals(ctx, rec.ExternalID, rec.TotalPurchases, rec.TotalSpent); err != nil {
		return false, err
	}
	user.TotalPurchases = rec.TotalPurchases
	user.TotalSpent = rec.TotalSpent
	if err := s.users.SetSegments(ctx, rec.ExternalID, user.ComputeSegments(now)); err != nil {
		return false, err
	}
	return created, nil
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound)
}
