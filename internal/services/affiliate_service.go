package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/discount"
	"github.com/ArowuTest/telegram-marketing-backend/internal/ledger"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"github.com/google/uuid"
)

const (
	affiliateCodePrefix  = "DK"
	affiliateCodeLength  = 6
	maxVersionRetries    = 5
	maxCodeAttempts      = 5
	affiliateCodeProgram = "affiliate"
)

// AffiliateStats is the dashboard view of an affiliate
type AffiliateStats struct {
	AffiliateID        string                      `json:"affiliateId"`
	Status             models.AffiliateStatus      `json:"status"`
	Tier               models.AffiliateTier        `json:"tier"`
	CommissionRate     float64                     `json:"commissionRate"`
	Performance        models.AffiliatePerformance `json:"performance"`
	CanRequestPayout   bool                        `json:"canRequestPayout"`
	PayoutThreshold    float64                     `json:"payoutThreshold"`
	PendingReferrals   int                         `json:"pendingReferrals"`
	ConfirmedReferrals int                         `json:"confirmedReferrals"`
	RecentReferrals    []models.AffiliateReferral  `json:"recentReferrals"`
}

// AffiliateService runs the affiliate program. Every mutation is computed by
// the ledger on a snapshot and written with a versioned replace, retried on conflict.
type AffiliateService struct {
	affiliates repositories.AffiliateRepository
	users      repositories.UserRepository
	codes      *discount.Generator
	threshold  float64
	recorder   eventRecorder
	logger     *observability.Logger
	now        func() time.Time
}

// NewAffiliateService creates a new AffiliateService
func NewAffiliateService(
	affiliates repositories.AffiliateRepository,
	users repositories.UserRepository,
	events repositories.EventRepository,
	codes *discount.Generator,
	payoutThreshold float64,
	logger *observability.Logger,
) *AffiliateService {
	if payoutThreshold <= 0 {
		payoutThreshold = ledger.DefaultPayoutThreshold
	}
	return &AffiliateService{
		affiliates: affiliates,
		users:      users,
		codes:      codes,
		threshold:  payoutThreshold,
		recorder:   eventRecorder{events: events, logger: logger, now: time.Now},
		logger:     logger,
		now:        time.Now,
	}
}

// Register enrols a user as a pending affiliate with a fresh DK code
func (s *AffiliateService) Register(ctx context.Context, externalID, name, email string) (*models.Affiliate, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	}
	if _, err := s.affiliates.FindByExternalID(ctx, externalID); err == nil {
		return nil, ErrAffiliateExists
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes.GenerateCode(discount.CodeOptions{Prefix: affiliateCodePrefix, Length: affiliateCodeLength})
		if err != nil {
			return nil, err
		}
		a := ledger.NewAffiliate(uuid.NewString(), externalID, code, s.now())
		a.Name = name
		a.Email = email
		err = s.affiliates.Create(ctx, &a)
		if errors.Is(err, repositories.ErrDuplicate) {
			// either the code collided or a concurrent registration won
			if _, ferr := s.affiliates.FindByExternalID(ctx, externalID); ferr == nil {
				return nil, ErrAffiliateExists
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create affiliate: %w", err)
		}
		s.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "affiliate_id", Value: a.AffiliateID},
			observability.Field{Key: "user_id", Value: externalID},
		), "affiliate registered")
		return &a, nil
	}
	return nil, fmt.Errorf("failed to allocate a unique affiliate code after %d attempts", maxCodeAttempts)
}

// Get returns an affiliate by id
func (s *AffiliateService) Get(ctx context.Context, affiliateID string) (*models.Affiliate, error) {
	return s.affiliates.FindByAffiliateID(ctx, affiliateID)
}

// List returns affiliates, optionally filtered by status
func (s *AffiliateService) List(ctx context.Context, status models.AffiliateStatus, page, limit int) ([]*models.Affiliate, error) {
	return s.affiliates.FindAll(ctx, status, page, limit)
}

// mutate applies fn to the latest snapshot and writes it back, retrying on version conflicts
func (s *AffiliateService) mutate(ctx context.Context, load func(context.Context) (*models.Affiliate, error), fn func(models.Affiliate) (models.Affiliate, error)) (*models.Affiliate, error) {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		current, err := load(ctx)
		if err != nil {
			return nil, err
		}
		next, err := fn(current.Clone())
		if err != nil {
			return nil, err
		}
		next.ID = current.ID
		next.Version = current.Version
		err = s.affiliates.Replace(ctx, &next)
		if errors.Is(err, repositories.ErrVersionConflict) {
			s.logger.Debug(observability.WithFields(ctx, observability.Field{Key: "attempt", Value: attempt + 1}),
				"affiliate version conflict, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save affiliate: %w", err)
		}
		return &next, nil
	}
	return nil, repositories.ErrVersionConflict
}

func (s *AffiliateService) byID(affiliateID string) func(context.Context) (*models.Affiliate, error) {
	return func(ctx context.Context) (*models.Affiliate, error) {
		return s.affiliates.FindByAffiliateID(ctx, affiliateID)
	}
}

// SetStatus activates, suspends or terminates an affiliate
func (s *AffiliateService) SetStatus(ctx context.Context, affiliateID string, status models.AffiliateStatus) (*models.Affiliate, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown affiliate status %q", ErrInvalidEvent, status)
	}
	return s.mutate(ctx, s.byID(affiliateID), func(a models.Affiliate) (models.Affiliate, error) {
		if a.Status == models.AffiliateTerminated && status != models.AffiliateTerminated {
			return a, ErrAffiliateTerminated
		}
		a.Status = status
		a.UpdatedAt = s.now()
		return a, nil
	})
}

// AttributeSignup records that userID joined through an affiliate code
func (s *AffiliateService) AttributeSignup(ctx context.Context, userID, code string) (*models.Affiliate, error) {
	a, err := s.affiliates.FindByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AffiliateActive {
		return nil, ledger.ErrAffiliateNotActive
	}
	if a.ExternalID == userID {
		return nil, ErrSelfReferral
	}
	set, err := s.users.SetAffiliateCode(ctx, userID, code)
	if err != nil {
		return nil, fmt.Errorf("failed to attribute user: %w", err)
	}
	if !set {
		return nil, ErrDuplicateReferral
	}
	s.recorder.record(ctx, models.EventReferralSignup, userID, "", map[string]interface{}{
		"program":       affiliateCodeProgram,
		"affiliateId":   a.AffiliateID,
		"affiliateCode": code,
	})
	return a, nil
}

// RecordPurchase attributes an order by an affiliate-referred user as a pending line item
func (s *AffiliateService) RecordPurchase(ctx context.Context, userID, orderID string, orderValue float64) (*models.AffiliateReferral, error) {
	user, err := s.users.FindByExternalID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AffiliateCode == "" {
		return nil, ErrNotAttributed
	}

	var item models.AffiliateReferral
	load := func(ctx context.Context) (*models.Affiliate, error) {
		return s.affiliates.FindByReferralCode(ctx, user.AffiliateCode)
	}
	a, err := s.mutate(ctx, load, func(a models.Affiliate) (models.Affiliate, error) {
		next, li, err := ledger.AddReferral(a, userID, orderID, orderValue, s.now())
		item = li
		return next, err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "affiliate_id", Value: a.AffiliateID},
		observability.Field{Key: "order_id", Value: orderID},
	), fmt.Sprintf("affiliate referral recorded, commission %.2f pending", item.Commission))
	return &item, nil
}

// ConfirmOrder confirms the pending line item for the order and credits the commission
func (s *AffiliateService) ConfirmOrder(ctx context.Context, userID, orderID string, orderValue float64) (*models.AffiliateReferral, error) {
	var item models.AffiliateReferral
	load := func(ctx context.Context) (*models.Affiliate, error) {
		a, err := s.affiliates.FindByPendingReferral(ctx, userID, orderID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ledger.ErrNoMatchingReferral
		}
		return a, err
	}
	a, err := s.mutate(ctx, load, func(a models.Affiliate) (models.Affiliate, error) {
		next, li, err := ledger.ConfirmReferral(a, userID, orderID, orderValue, s.now())
		item = li
		return next, err
	})
	if err != nil {
		return nil, err
	}

	s.recorder.record(ctx, models.EventAffiliateCommission, userID, "", map[string]interface{}{
		"affiliateId": a.AffiliateID,
		"orderId":     item.OrderID,
		"orderValue":  item.OrderValue,
		"commission":  item.Commission,
		"tier":        string(a.Tier),
	})
	return &item, nil
}

// RequestPayout moves earnings into a pending payout
func (s *AffiliateService) RequestPayout(ctx context.Context, affiliateID string, amount float64, method string) (*models.Payout, error) {
	var payout models.Payout
	_, err := s.mutate(ctx, s.byID(affiliateID), func(a models.Affiliate) (models.Affiliate, error) {
		next, p, err := ledger.RequestPayout(a, uuid.NewString(), amount, method, s.threshold, s.now())
		payout = p
		return next, err
	})
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// CompletePayout marks a payout as paid
func (s *AffiliateService) CompletePayout(ctx context.Context, affiliateID, payoutID, transactionID string) (*models.Affiliate, error) {
	return s.mutate(ctx, s.byID(affiliateID), func(a models.Affiliate) (models.Affiliate, error) {
		return ledger.CompletePayout(a, payoutID, transactionID, s.now())
	})
}

// FailPayout returns a payout's amount to the affiliate's earnings
func (s *AffiliateService) FailPayout(ctx context.Context, affiliateID, payoutID, reason string) (*models.Affiliate, error) {
	return s.mutate(ctx, s.byID(affiliateID), func(a models.Affiliate) (models.Affiliate, error) {
		return ledger.FailPayout(a, payoutID, reason, s.now())
	})
}

// Stats returns the dashboard view of an affiliate
func (s *AffiliateService) Stats(ctx context.Context, affiliateID string) (*AffiliateStats, error) {
	a, err := s.affiliates.FindByAffiliateID(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	stats := &AffiliateStats{
		AffiliateID:      a.AffiliateID,
		Status:           a.Status,
		Tier:             a.Tier,
		CommissionRate:   a.CommissionRate,
		Performance:      a.Performance,
		CanRequestPayout: ledger.CanRequestPayout(*a, s.threshold),
		PayoutThreshold:  s.threshold,
	}
	for _, r := range a.Referrals {
		switch r.Status {
		case models.AffiliateReferralPending:
			stats.PendingReferrals++
		case models.AffiliateReferralConfirmed, models.AffiliateReferralPaid:
			stats.ConfirmedReferrals++
		}
	}
	recent := a.Referrals
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	stats.RecentReferrals = append([]models.AffiliateReferral{}, recent...)
	return stats, nil
}
