package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/ledger"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReferralService runs the user-to-user referral program
type ReferralService struct {
	referrals repositories.ReferralRepository
	users     repositories.UserRepository
	policy    ledger.RewardPolicy
	recorder  eventRecorder
	logger    *observability.Logger
	now       func() time.Time
}

// NewReferralService creates a new ReferralService
func NewReferralService(
	referrals repositories.ReferralRepository,
	users repositories.UserRepository,
	events repositories.EventRepository,
	policy ledger.RewardPolicy,
	logger *observability.Logger,
) *ReferralService {
	return &ReferralService{
		referrals: referrals,
		users:     users,
		policy:    policy,
		recorder:  eventRecorder{events: events, logger: logger, now: time.Now},
		logger:    logger,
		now:       time.Now,
	}
}

// Create opens a pending referral from the owner of code to referredUserID
func (s *ReferralService) Create(ctx context.Context, code, referredUserID string) (*models.Referral, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "referral_code", Value: code},
		observability.Field{Key: "referred_user_id", Value: referredUserID},
	)

	referrer, err := s.users.FindByReferralCode(ctx, code)
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && !referrer.IsSubscribed) {
		s.logger.Warn(ctx, "referrer not found or not subscribed")
		return nil, ErrReferrerIneligible
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up referrer: %w", err)
	}
	if referrer.ExternalID == referredUserID {
		return nil, ErrSelfReferral
	}

	ref := s.policy.NewReferral(code, referrer.ExternalID, referredUserID, s.now())
	created, err := s.referrals.CreateIfAbsent(ctx, &ref)
	if err != nil {
		return nil, fmt.Errorf("failed to create referral: %w", err)
	}
	if !created {
		s.logger.Info(ctx, "referral already exists for pair")
		return nil, ErrDuplicateReferral
	}

	s.recorder.record(ctx, models.EventReferralSignup, referredUserID, "", map[string]interface{}{
		"referrerUserId": referrer.ExternalID,
		"referralCode":   code,
	})
	s.logger.Info(ctx, "referral created")
	return &ref, nil
}

// Complete settles the oldest pending referral of referredUserID against a
// purchase. An expired referral is cancelled instead and ErrReferralExpired returned.
// When the rewards cannot be credited the referral stays completed but uncredited
// and the error is returned; calling Complete again, or SettleCredits, finishes it.
func (s *ReferralService) Complete(ctx context.Context, referredUserID string, orderValue float64, orderID string) (*models.Referral, error) {
	ref, err := s.referrals.FindPendingByReferred(ctx, referredUserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return s.resumeCredit(ctx, referredUserID)
	}
	if err != nil {
		return nil, err
	}
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "referral_id", Value: ref.ID.Hex()},
		observability.Field{Key: "referred_user_id", Value: referredUserID},
	)

	next, err := ledger.CompleteReferral(*ref, orderValue, orderID, s.now(), s.policy)
	switch {
	case errors.Is(err, ledger.ErrReferralExpired):
		if cerr := s.referrals.CancelIfPending(ctx, &next); cerr != nil && !errors.Is(cerr, repositories.ErrConflict) {
			return nil, fmt.Errorf("failed to cancel expired referral: %w", cerr)
		}
		s.logger.Info(ctx, "referral expired before completion")
		return &next, ErrReferralExpired
	case err != nil:
		return nil, err
	}

	if err := s.referrals.CompleteIfPending(ctx, &next); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, ErrReferralNotPending
		}
		return nil, fmt.Errorf("failed to complete referral: %w", err)
	}

	s.recorder.record(ctx, models.EventReferralCompleted, referredUserID, "", map[string]interface{}{
		"referrerUserId": next.ReferrerUserID,
		"orderValue":     next.OrderValue,
		"orderId":        next.OrderID,
		"referrerReward": next.ReferrerReward,
		"referredReward": next.ReferredReward,
	})
	s.recorder.record(ctx, models.EventFunnelProgression, next.ReferrerUserID, "", map[string]interface{}{"stage": models.StageAdvocacy})
	s.logger.Info(ctx, fmt.Sprintf("referral completed: referrer +%.2f, referred +%.2f", next.ReferrerReward, next.ReferredReward))

	if err := s.credit(ctx, &next); err != nil {
		s.logger.Error(ctx, "referral rewards not credited", err)
		return &next, err
	}
	return &next, nil
}

// resumeCredit finishes a completed referral of referredUserID whose rewards
// were not credited. It returns ErrNotFound when there is none.
func (s *ReferralService) resumeCredit(ctx context.Context, referredUserID string) (*models.Referral, error) {
	refs, err := s.referrals.FindUncredited(ctx, referredUserID)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, repositories.ErrNotFound
	}
	ref := refs[0]
	if err := s.credit(ctx, ref); err != nil {
		return ref, err
	}
	s.logger.Info(observability.WithFields(ctx, observability.Field{Key: "referral_id", Value: ref.ID.Hex()}),
		"referral rewards credited on retry")
	return ref, nil
}

// credit applies both rewards of a completed referral, then marks it credited.
// Each reward is keyed by referral and side, so a repeated call never pays twice.
func (s *ReferralService) credit(ctx context.Context, ref *models.Referral) error {
	rewards := []struct {
		side   string
		userID string
		amount float64
	}{
		{"referrer", ref.ReferrerUserID, ref.ReferrerReward},
		{"referred", ref.ReferredUserID, ref.ReferredReward},
	}
	for _, r := range rewards {
		err := s.users.AddCredits(ctx, r.userID, r.amount, ref.CreditKey(r.side))
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Warn(ctx, fmt.Sprintf("%s %s no longer exists, reward dropped", r.side, r.userID))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to credit %s: %w", r.side, err)
		}
	}
	if err := s.referrals.MarkCredited(ctx, ref.ID); err != nil {
		return fmt.Errorf("failed to mark referral credited: %w", err)
	}
	ref.Credited = true
	return nil
}

// SettleCredits credits every completed referral left uncredited by a failed completion
func (s *ReferralService) SettleCredits(ctx context.Context) (int, error) {
	refs, err := s.referrals.FindUncredited(ctx, "")
	if err != nil {
		return 0, err
	}
	settled := 0
	var errs []error
	for _, ref := range refs {
		refCtx := observability.WithFields(ctx, observability.Field{Key: "referral_id", Value: ref.ID.Hex()})
		if err := s.credit(refCtx, ref); err != nil {
			errs = append(errs, err)
			continue
		}
		settled++
	}
	return settled, errors.Join(errs...)
}

// Cancel voids a pending referral
func (s *ReferralService) Cancel(ctx context.Context, id primitive.ObjectID, reason string) (*models.Referral, error) {
	ref, err := s.referrals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := ledger.CancelReferral(*ref, reason, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.referrals.CancelIfPending(ctx, &next); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, ErrReferralNotPending
		}
		return nil, err
	}
	return &next, nil
}

// ExpirePending cancels every pending referral past its window
func (s *ReferralService) ExpirePending(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.referrals.FindExpiredPending(ctx, now)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, ref := range expired {
		next, err := ledger.CancelReferral(*ref, "expired", now)
		if err != nil {
			continue
		}
		if err := s.referrals.CancelIfPending(ctx, &next); err != nil {
			if !errors.Is(err, repositories.ErrConflict) {
				return cancelled, err
			}
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// Stats summarises a referrer's records
func (s *ReferralService) Stats(ctx context.Context, referrerUserID string) (*models.ReferralStats, []*models.Referral, error) {
	refs, err := s.referrals.FindByReferrer(ctx, referrerUserID)
	if err != nil {
		return nil, nil, err
	}
	stats := &models.ReferralStats{Total: len(refs)}
	for _, r := range refs {
		switch r.Status {
		case models.ReferralPending:
			stats.Pending++
		case models.ReferralCompleted:
			stats.Completed++
			stats.TotalEarned += r.ReferrerReward
		case models.ReferralCancelled:
			stats.Cancelled++
		}
	}
	return stats, refs, nil
}
