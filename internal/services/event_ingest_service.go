package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/ledger"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
)

// EnvelopeType names an inbound event
type EnvelopeType string

const (
	EnvelopeInteraction     EnvelopeType = "interaction"
	EnvelopeSubscribe       EnvelopeType = "subscribe"
	EnvelopeUnsubscribe     EnvelopeType = "unsubscribe"
	EnvelopePreference      EnvelopeType = "preference"
	EnvelopePurchase        EnvelopeType = "purchase"
	EnvelopeOrderConfirmed  EnvelopeType = "order_confirmed"
	EnvelopeTrack           EnvelopeType = "track"
	EnvelopeReferralSignup  EnvelopeType = "referral_signup"
	EnvelopeAffiliateSignup EnvelopeType = "affiliate_signup"
)

// Envelope is an inbound event from the bot or the shop, received over HTTP or Kafka
type Envelope struct {
	ID         string                 `json:"id,omitempty"`
	Type       EnvelopeType           `json:"type"`
	UserID     string                 `json:"userId"`
	Profile    models.UserProfile     `json:"profile,omitempty"`
	Key        string                 `json:"key,omitempty"`
	Enabled    *bool                  `json:"enabled,omitempty"`
	OrderID    string                 `json:"orderId,omitempty"`
	OrderValue float64                `json:"orderValue,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Event      models.EventType       `json:"event,omitempty"`
	TestName   string                 `json:"testName,omitempty"`
	Variant    string                 `json:"variant,omitempty"`
	Action     string                 `json:"action,omitempty"`
	CampaignID string                 `json:"campaignId,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// EventIngestService fans inbound events out to the owning services
type EventIngestService struct {
	subscribers *SubscriberService
	referrals   *ReferralService
	affiliates  *AffiliateService
	discounts   *DiscountService
	experiments *ExperimentService
	analytics   *AnalyticsService
	campaigns   *CampaignService
	logger      *observability.Logger
}

// NewEventIngestService creates a new EventIngestService
func NewEventIngestService(
	subscribers *SubscriberService,
	referrals *ReferralService,
	affiliates *AffiliateService,
	discounts *DiscountService,
	experimentService *ExperimentService,
	analytics *AnalyticsService,
	campaigns *CampaignService,
	logger *observability.Logger,
) *EventIngestService {
	return &EventIngestService{
		subscribers: subscribers,
		referrals:   referrals,
		affiliates:  affiliates,
		discounts:   discounts,
		experiments: experimentService,
		analytics:   analytics,
		campaigns:   campaigns,
		logger:      logger,
	}
}

// Handle applies one inbound event
func (s *EventIngestService) Handle(ctx context.Context, env Envelope) error {
	if env.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidEvent)
	}
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_type", Value: env.Type},
		observability.Field{Key: "user_id", Value: env.UserID},
	)

	switch env.Type {
	case EnvelopeInteraction:
		_, err := s.subscribers.Touch(ctx, env.UserID, env.Profile)
		return err
	case EnvelopeSubscribe:
		return s.subscribe(ctx, env)
	case EnvelopeUnsubscribe:
		_, err := s.subscribers.Unsubscribe(ctx, env.UserID)
		return err
	case EnvelopePreference:
		if env.Enabled == nil {
			return fmt.Errorf("%w: enabled is required", ErrInvalidEvent)
		}
		_, err := s.subscribers.SetPreference(ctx, env.UserID, env.Key, *env.Enabled)
		return err
	case EnvelopePurchase:
		return s.purchase(ctx, env)
	case EnvelopeOrderConfirmed:
		_, err := s.affiliates.ConfirmOrder(ctx, env.UserID, env.OrderID, env.OrderValue)
		return err
	case EnvelopeTrack:
		return s.track(ctx, env)
	case EnvelopeReferralSignup:
		if _, err := s.subscribers.Touch(ctx, env.UserID, env.Profile); err != nil {
			return err
		}
		return s.referralSignup(ctx, env.Code, env.UserID)
	case EnvelopeAffiliateSignup:
		if _, err := s.subscribers.Touch(ctx, env.UserID, env.Profile); err != nil {
			return err
		}
		_, err := s.affiliates.AttributeSignup(ctx, env.UserID, strings.ToUpper(strings.TrimSpace(env.Code)))
		return err
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, env.Type)
	}
}

// subscribe opts the user in and, when the start payload carried a code,
// attributes the signup to the referring user or affiliate.
func (s *EventIngestService) subscribe(ctx context.Context, env Envelope) error {
	if _, err := s.subscribers.Subscribe(ctx, env.UserID, env.Profile); err != nil {
		return err
	}
	code := strings.ToUpper(strings.TrimSpace(env.Code))
	switch {
	case code == "":
		return nil
	case strings.HasPrefix(code, affiliateCodePrefix):
		if _, err := s.affiliates.AttributeSignup(ctx, env.UserID, code); err != nil {
			s.logger.Warn(ctx, fmt.Sprintf("affiliate attribution skipped: %v", err))
		}
		return nil
	default:
		if err := s.referralSignup(ctx, code, env.UserID); err != nil {
			s.logger.Warn(ctx, fmt.Sprintf("referral attribution skipped: %v", err))
		}
		return nil
	}
}

// referralSignup opens a referral. A repeated signup for the same pair is only logged.
func (s *EventIngestService) referralSignup(ctx context.Context, code, userID string) error {
	_, err := s.referrals.Create(ctx, strings.ToUpper(strings.TrimSpace(code)), userID)
	if errors.Is(err, ErrDuplicateReferral) {
		return nil
	}
	return err
}

// purchase updates the buyer, redeems the discount code if any, and settles
// referral and affiliate attribution. A redelivered order skips the totals and
// the redemption but retries attribution, so failed referral credits or
// affiliate writes are returned for the caller to redeliver.
func (s *EventIngestService) purchase(ctx context.Context, env Envelope) error {
	_, counted, err := s.subscribers.RecordOrder(ctx, env.UserID, env.OrderID, env.OrderValue)
	if err != nil {
		return err
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "order_id", Value: env.OrderID})
	if !counted {
		s.logger.Info(ctx, "order already recorded, retrying attribution only")
	}

	if counted && env.Code != "" {
		if _, err := s.discounts.Redeem(ctx, env.Code, env.UserID, env.OrderValue); err != nil {
			s.logger.Warn(ctx, fmt.Sprintf("discount not redeemed: %v", err))
		}
	}

	var errs []error
	_, err = s.referrals.Complete(ctx, env.UserID, env.OrderValue, env.OrderID)
	switch {
	case err == nil, errors.Is(err, repositories.ErrNotFound):
	case errors.Is(err, ErrReferralExpired), errors.Is(err, ErrReferralNotPending):
		s.logger.Info(ctx, fmt.Sprintf("referral not completed: %v", err))
	default:
		errs = append(errs, fmt.Errorf("failed to complete referral: %w", err))
	}

	_, err = s.affiliates.RecordPurchase(ctx, env.UserID, env.OrderID, env.OrderValue)
	switch {
	case err == nil, errors.Is(err, ErrNotAttributed), errors.Is(err, repositories.ErrNotFound):
	case errors.Is(err, ledger.ErrAffiliateNotActive), errors.Is(err, ledger.ErrDuplicateOrder):
		s.logger.Info(ctx, fmt.Sprintf("affiliate purchase not recorded: %v", err))
	default:
		errs = append(errs, fmt.Errorf("failed to record affiliate purchase: %w", err))
	}
	return errors.Join(errs...)
}

func (s *EventIngestService) track(ctx context.Context, env Envelope) error {
	if env.TestName != "" {
		return s.experiments.Track(ctx, env.UserID, env.TestName, env.Variant, env.Action)
	}
	if env.Event == models.EventButtonClick && env.CampaignID != "" {
		button, _ := env.Data["button"].(string)
		return s.campaigns.TrackClick(ctx, env.CampaignID, env.UserID, button)
	}
	eventType := env.Event
	if eventType == "" {
		eventType = models.EventCustom
	}
	return s.analytics.Track(ctx, &models.AnalyticsEvent{
		Type:       eventType,
		UserID:     env.UserID,
		CampaignID: env.CampaignID,
		Data:       env.Data,
		Source:     "ingest",
		Timestamp:  env.Timestamp,
	})
}
